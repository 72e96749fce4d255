package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vk/entitystorego/internal/ctxlog"
	"github.com/vk/entitystorego/internal/record"
)

// sendQueueSize bounds the per-peer outbound queue. A replica that stops
// draining its connection loses frames rather than stalling the authority;
// its next resync recovers the state.
const sendQueueSize = 64

// InboundFunc receives one raw frame from the identified peer.
type InboundFunc func(ctx context.Context, from record.EntityID, frame []byte)

// Hub is the authority-side transport: a websocket endpoint managing one
// connection per replica entity.
type Hub struct {
	upgrader websocket.Upgrader
	inbound  InboundFunc

	mu    sync.RWMutex
	peers map[record.EntityID]*peer
}

type peer struct {
	entity record.EntityID
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// close shuts the peer down exactly once, ending its writer goroutine. The
// send channel is left open so a concurrent Send can never hit a closed
// channel; frames enqueued during teardown are simply discarded.
func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// NewHub creates an empty hub. The inbound handler must be installed with
// SetInbound before the HTTP handler is mounted.
func NewHub() *Hub {
	return &Hub{
		peers: make(map[record.EntityID]*peer),
	}
}

// SetInbound installs the handler invoked for every frame read from a
// peer. Called once during session wiring.
func (h *Hub) SetInbound(fn InboundFunc) {
	h.inbound = fn
}

// Handler returns the HTTP handler for the sync endpoint. Replicas connect
// with their owning entity id in the query string; a second connection for
// the same entity supersedes the first.
func (h *Hub) Handler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.FromContext(ctx)

		entity, err := strconv.ParseInt(r.URL.Query().Get("entity"), 10, 64)
		if err != nil {
			http.Error(w, "missing or invalid entity id", http.StatusBadRequest)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
			return
		}

		p := &peer{
			entity: record.EntityID(entity),
			conn:   conn,
			send:   make(chan []byte, sendQueueSize),
			done:   make(chan struct{}),
		}
		h.addPeer(ctx, p)

		go p.writeLoop(ctx)
		go h.readLoop(ctx, p)
	})
}

// addPeer registers the peer, superseding any previous connection for the
// same entity.
func (h *Hub) addPeer(ctx context.Context, p *peer) {
	h.mu.Lock()
	prev := h.peers[p.entity]
	h.peers[p.entity] = p
	h.mu.Unlock()

	if prev != nil {
		ctxlog.FromContext(ctx).Info("Replica reconnected, superseding previous connection", "entity", p.entity)
		prev.close()
	} else {
		ctxlog.FromContext(ctx).Info("Replica connected", "entity", p.entity)
	}
}

// removePeer drops the peer unless a newer connection already replaced it.
func (h *Hub) removePeer(ctx context.Context, p *peer) {
	h.mu.Lock()
	if h.peers[p.entity] == p {
		delete(h.peers, p.entity)
	}
	h.mu.Unlock()

	p.close()
	ctxlog.FromContext(ctx).Info("Replica disconnected", "entity", p.entity)
}

func (p *peer) writeLoop(ctx context.Context) {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.send:
			if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				ctxlog.FromContext(ctx).Warn("Write to replica failed", "entity", p.entity, "error", err)
				p.close()
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, p *peer) {
	defer h.removePeer(ctx, p)

	for {
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if h.inbound != nil {
			h.inbound(ctx, p.entity, frame)
		}
	}
}

// Send enqueues a frame for the replica owning the entity. It never blocks
// on the network: a full queue or missing peer is an error the caller logs
// and drops.
func (h *Hub) Send(ctx context.Context, entity record.EntityID, frame []byte) error {
	h.mu.RLock()
	p, ok := h.peers[entity]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no replica connected for entity %d", entity)
	}
	select {
	case <-p.done:
		return fmt.Errorf("no replica connected for entity %d", entity)
	case p.send <- frame:
		return nil
	default:
		return fmt.Errorf("send queue full for entity %d", entity)
	}
}

// HasPeer reports whether a replica is connected for the entity.
func (h *Hub) HasPeer(entity record.EntityID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.peers[entity]
	return ok
}

// Peers returns a snapshot of the entity ids with a connected replica.
func (h *Hub) Peers() []record.EntityID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]record.EntityID, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	return ids
}

// Close drops every peer connection.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.peers = make(map[record.EntityID]*peer)
	h.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
}
