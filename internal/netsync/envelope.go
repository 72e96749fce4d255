package netsync

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelope kinds. The transport delivers envelopes reliably and in order
// per destination, so the last sync frame for a (entity, module) pair
// always wins on the replica.
const (
	// KindSync carries one module's serialized record for the receiving
	// replica's entity. Authority to replica.
	KindSync = "sync"
	// KindResync asks the authority to re-push every module for the
	// requesting replica's entity. Replica to authority, no payload.
	KindResync = "resync"
)

// Envelope is the single wire message of the sync protocol.
type Envelope struct {
	Kind    string `msgpack:"kind"`
	Module  string `msgpack:"module,omitempty"`
	Payload string `msgpack:"payload,omitempty"`
}

// Encode renders the envelope as a msgpack frame.
func (e *Envelope) Encode() ([]byte, error) {
	frame, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Kind, err)
	}
	return frame, nil
}

// DecodeEnvelope parses a msgpack frame back into an envelope.
func DecodeEnvelope(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}
