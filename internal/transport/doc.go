// Package transport carries sync envelopes between the authority and its
// replicas over websockets. The authority runs a Hub: one upgraded
// connection per replica, keyed by the entity id the replica owns, with a
// per-peer buffered send queue drained by a writer goroutine so no caller
// ever blocks on the network. A replica holds a single Link dialed at the
// authority's /sync endpoint.
//
// Websocket messages are binary frames and each frame is exactly one
// msgpack envelope; the protocol relies on websocket's ordered, reliable
// delivery per connection.
package transport
