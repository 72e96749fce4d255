// Package netsync implements the sync broker: the component that pushes a
// module's serialized record for one entity to its connected replica, and
// on the replica side applies received data into the local registry.
//
// Pushes are fire-and-forget. Delivery failures are logged and dropped; a
// later MarkDirty or a replica-initiated resync is the recovery path, so
// there is no retry queue and no lock is ever held across a send.
package netsync

import (
	"context"
	"sync"

	"github.com/vk/entitystorego/internal/ctxlog"
	"github.com/vk/entitystorego/internal/record"
	"github.com/vk/entitystorego/internal/registry"
)

// PeerSender is the authority-side transport surface: one reliable,
// ordered, point-to-point link per connected replica, keyed by the entity
// id the replica owns.
type PeerSender interface {
	Send(ctx context.Context, entity record.EntityID, frame []byte) error
	HasPeer(entity record.EntityID) bool
	Peers() []record.EntityID
}

// Uplink is the replica-side transport surface: the single link back to
// the authority.
type Uplink interface {
	Send(ctx context.Context, frame []byte) error
}

// Broker routes sync traffic between the registry and the transport. The
// same type serves both roles; role-inappropriate operations are no-ops
// that log at debug level, mirroring the registry's role gate.
type Broker struct {
	reg   *registry.Registry
	peers PeerSender

	mu     sync.RWMutex
	uplink Uplink
}

// NewBroker creates a broker over the given registry. peers is nil on
// replicas; the uplink is installed per connection via SetUplink.
func NewBroker(reg *registry.Registry, peers PeerSender) *Broker {
	return &Broker{reg: reg, peers: peers}
}

// SetUplink installs (or replaces, after a reconnect) the replica's link
// to the authority.
func (b *Broker) SetUplink(l Uplink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uplink = l
}

func (b *Broker) currentUplink() Uplink {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.uplink
}

// Push sends the entity's serialized record for one module to the replica
// owning that entity. Authority-only. It is a silent no-op when the entity
// has no connected replica or the module serializes to absent; send
// failures are logged and dropped.
func (b *Broker) Push(ctx context.Context, entity record.EntityID, moduleID string) {
	if !b.reg.Authoritative() || b.peers == nil {
		return
	}
	if !b.peers.HasPeer(entity) {
		return
	}
	payload, ok := b.reg.SerializeModule(ctx, entity, moduleID)
	if !ok {
		return
	}

	env := Envelope{Kind: KindSync, Module: moduleID, Payload: payload}
	frame, err := env.Encode()
	if err != nil {
		ctxlog.FromContext(ctx).Error("Failed to encode sync envelope", "module", moduleID, "entity", entity, "error", err)
		return
	}
	if err := b.peers.Send(ctx, entity, frame); err != nil {
		ctxlog.FromContext(ctx).Warn("Sync push failed, will resend on next change or resync", "module", moduleID, "entity", entity, "error", err)
	}
}

// PushAllModules pushes every registered module for one entity. Used to
// answer a resync request and on reconnect, when the replica starts from
// an empty cache.
func (b *Broker) PushAllModules(ctx context.Context, entity record.EntityID) {
	for _, moduleID := range b.reg.ModuleIDs() {
		b.Push(ctx, entity, moduleID)
	}
}

// Broadcast pushes a single module to every currently connected replica,
// each receiving its own entity's record. Authority-only.
func (b *Broker) Broadcast(ctx context.Context, moduleID string) {
	if !b.reg.Authoritative() || b.peers == nil {
		return
	}
	for _, entity := range b.peers.Peers() {
		b.Push(ctx, entity, moduleID)
	}
}

// RequestResync asks the authority to re-push every module for this
// replica's entity. Replica-only; called on (re)connect.
func (b *Broker) RequestResync(ctx context.Context) error {
	if b.reg.Authoritative() {
		return nil
	}
	uplink := b.currentUplink()
	if uplink == nil {
		return nil
	}
	env := Envelope{Kind: KindResync}
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	return uplink.Send(ctx, frame)
}

// HandleFrame dispatches one inbound transport frame. On the authority,
// from identifies the remote peer's entity and only resync requests are
// meaningful; on a replica, self is the replica's own entity id and sync
// frames are applied through the registry's fail-safe deserialize path.
// Malformed frames are logged and dropped.
func (b *Broker) HandleFrame(ctx context.Context, self record.EntityID, from record.EntityID, frame []byte) {
	logger := ctxlog.FromContext(ctx)

	env, err := DecodeEnvelope(frame)
	if err != nil {
		logger.Warn("Dropping malformed sync frame", "from", from, "error", err)
		return
	}

	switch env.Kind {
	case KindSync:
		if b.reg.Authoritative() {
			logger.Warn("Authority received a sync frame, ignoring", "from", from, "module", env.Module)
			return
		}
		b.reg.DeserializeModule(ctx, self, env.Module, env.Payload)
		b.reg.NotifySynced(ctx, env.Module)
	case KindResync:
		if !b.reg.Authoritative() {
			logger.Warn("Replica received a resync request, ignoring", "from", from)
			return
		}
		logger.Debug("Resync requested", "entity", from)
		b.PushAllModules(ctx, from)
	default:
		logger.Warn("Unknown envelope kind", "kind", env.Kind, "from", from)
	}
}
