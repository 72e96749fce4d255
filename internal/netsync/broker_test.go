package netsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/entitystorego/internal/netsync"
	"github.com/vk/entitystorego/internal/record"
	"github.com/vk/entitystorego/internal/registry"
	"github.com/vk/entitystorego/internal/testutil"
)

type score struct {
	Points int `json:"points"`
}

func (s *score) Initialize()                   { s.Points = 0 }
func (s *score) Serialize() (string, error)    { b, err := json.Marshal(s); return string(b), err }
func (s *score) Deserialize(data string) error { return json.Unmarshal([]byte(data), s) }
func (s *score) Validate() bool                { return s.Points >= 0 }

func newScore() record.Record { return &score{} }

// fakePeers is an in-memory PeerSender capturing frames per entity.
type fakePeers struct {
	mu       sync.Mutex
	frames   map[record.EntityID][][]byte
	failSend bool
}

func newFakePeers(entities ...record.EntityID) *fakePeers {
	frames := make(map[record.EntityID][][]byte)
	for _, e := range entities {
		frames[e] = nil
	}
	return &fakePeers{frames: frames}
}

func (f *fakePeers) Send(ctx context.Context, entity record.EntityID, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("link down")
	}
	if _, ok := f.frames[entity]; !ok {
		return errors.New("no such peer")
	}
	f.frames[entity] = append(f.frames[entity], frame)
	return nil
}

func (f *fakePeers) HasPeer(entity record.EntityID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.frames[entity]
	return ok
}

func (f *fakePeers) Peers() []record.EntityID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]record.EntityID, 0, len(f.frames))
	for id := range f.frames {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakePeers) sent(entity record.EntityID) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames[entity]...)
}

// fakeUplink records frames a replica sends to the authority.
type fakeUplink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (u *fakeUplink) Send(ctx context.Context, frame []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.frames = append(u.frames, frame)
	return nil
}

func authorityFixture(t *testing.T, entities ...record.EntityID) (context.Context, *registry.Registry, *netsync.Broker, *fakePeers) {
	t.Helper()
	ctx, _ := testutil.Context(t)

	reg := registry.New(registry.RoleAuthority)
	require.NoError(t, reg.Register(ctx, "score", newScore))

	peers := newFakePeers(entities...)
	broker := netsync.NewBroker(reg, peers)
	reg.SetPusher(broker)
	return ctx, reg, broker, peers
}

func TestPush_SendsEnvelope(t *testing.T) {
	t.Parallel()
	ctx, reg, _, peers := authorityFixture(t, 42)

	require.NoError(t, reg.Set(ctx, 42, "score", &score{Points: 7}))

	frames := peers.sent(42)
	require.Len(t, frames, 1, "set must trigger exactly one push")

	env, err := netsync.DecodeEnvelope(frames[0])
	require.NoError(t, err)
	assert.Equal(t, netsync.KindSync, env.Kind)
	assert.Equal(t, "score", env.Module)

	var decoded score
	require.NoError(t, json.Unmarshal([]byte(env.Payload), &decoded))
	assert.Equal(t, 7, decoded.Points)
}

func TestPush_NoPeerIsNoop(t *testing.T) {
	t.Parallel()
	ctx, reg, _, peers := authorityFixture(t, 42)

	// Entity 99 has no connected replica.
	require.NoError(t, reg.Set(ctx, 99, "score", &score{Points: 1}))
	assert.Empty(t, peers.sent(99))
}

func TestPush_SendFailureIsLoggedAndDropped(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	reg := registry.New(registry.RoleAuthority)
	require.NoError(t, reg.Register(ctx, "score", newScore))
	peers := newFakePeers(42)
	peers.failSend = true
	broker := netsync.NewBroker(reg, peers)
	reg.SetPusher(broker)

	// The mutation itself must still succeed.
	require.NoError(t, reg.Set(ctx, 42, "score", &score{Points: 1}))
	assert.True(t, reg.Has(42, "score"))
}

func TestPushAllModules(t *testing.T) {
	t.Parallel()
	ctx, reg, broker, peers := authorityFixture(t, 42)
	require.NoError(t, reg.Register(ctx, "score2", newScore))

	require.NoError(t, reg.Set(ctx, 42, "score", &score{Points: 1}))
	require.NoError(t, reg.Set(ctx, 42, "score2", &score{Points: 2}))
	before := len(peers.sent(42))

	broker.PushAllModules(ctx, 42)
	assert.Equal(t, before+2, len(peers.sent(42)))
}

func TestPushAllModules_SkipsEmptyModules(t *testing.T) {
	t.Parallel()
	ctx, _, broker, peers := authorityFixture(t, 42)

	// No records at all: nothing to push.
	broker.PushAllModules(ctx, 42)
	assert.Empty(t, peers.sent(42))
}

func TestBroadcast_PerEntityPayloads(t *testing.T) {
	t.Parallel()
	ctx, reg, broker, peers := authorityFixture(t, 1, 2)

	require.NoError(t, reg.Set(ctx, 1, "score", &score{Points: 10}))
	require.NoError(t, reg.Set(ctx, 2, "score", &score{Points: 20}))

	broker.Broadcast(ctx, "score")

	// Each replica receives its own entity's record, not a shared frame.
	for entity, want := range map[record.EntityID]int{1: 10, 2: 20} {
		frames := peers.sent(entity)
		require.NotEmpty(t, frames)
		env, err := netsync.DecodeEnvelope(frames[len(frames)-1])
		require.NoError(t, err)
		var decoded score
		require.NoError(t, json.Unmarshal([]byte(env.Payload), &decoded))
		assert.Equal(t, want, decoded.Points)
	}
}

func TestHandleFrame_ReplicaAppliesSync(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	reg := registry.New(registry.RoleReplica)
	require.NoError(t, reg.Register(ctx, "score", newScore))
	broker := netsync.NewBroker(reg, nil)

	var synced []string
	reg.OnDataSynced(func(moduleID string) { synced = append(synced, moduleID) })

	env := netsync.Envelope{Kind: netsync.KindSync, Module: "score", Payload: `{"points": 33}`}
	frame, err := env.Encode()
	require.NoError(t, err)

	broker.HandleFrame(ctx, 42, 0, frame)

	got, err := registry.Get[*score](ctx, reg, 42, "score")
	require.NoError(t, err)
	assert.Equal(t, 33, got.Points)
	assert.Equal(t, []string{"score"}, synced)
}

func TestHandleFrame_ReplicaFailsSafeOnCorruptPayload(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	reg := registry.New(registry.RoleReplica)
	require.NoError(t, reg.Register(ctx, "score", newScore))
	broker := netsync.NewBroker(reg, nil)

	env := netsync.Envelope{Kind: netsync.KindSync, Module: "score", Payload: `{"points": -5}`}
	frame, err := env.Encode()
	require.NoError(t, err)

	broker.HandleFrame(ctx, 42, 0, frame)

	got, err := registry.Get[*score](ctx, reg, 42, "score")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Points, "invalid payload degrades to the default record")
}

func TestHandleFrame_UnknownModuleDropped(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	reg := registry.New(registry.RoleReplica)
	broker := netsync.NewBroker(reg, nil)

	env := netsync.Envelope{Kind: netsync.KindSync, Module: "retired", Payload: `{}`}
	frame, err := env.Encode()
	require.NoError(t, err)

	// Legacy data for a module this build no longer registers: silent drop.
	broker.HandleFrame(ctx, 42, 0, frame)
	assert.False(t, reg.Has(42, "retired"))
}

func TestHandleFrame_AuthorityAnswersResync(t *testing.T) {
	t.Parallel()
	ctx, reg, broker, peers := authorityFixture(t, 42)

	require.NoError(t, reg.Set(ctx, 42, "score", &score{Points: 3}))
	before := len(peers.sent(42))

	env := netsync.Envelope{Kind: netsync.KindResync}
	frame, err := env.Encode()
	require.NoError(t, err)

	broker.HandleFrame(ctx, 0, 42, frame)
	assert.Greater(t, len(peers.sent(42)), before, "resync must re-push the entity's modules")
}

func TestHandleFrame_MalformedFrameDropped(t *testing.T) {
	t.Parallel()
	ctx, logs := testutil.Context(t)

	reg := registry.New(registry.RoleReplica)
	broker := netsync.NewBroker(reg, nil)

	broker.HandleFrame(ctx, 42, 0, []byte{0xc1, 0xff, 0x00})
	assert.Contains(t, logs.String(), "malformed sync frame")
}

func TestRequestResync_SendsZeroPayloadEnvelope(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	reg := registry.New(registry.RoleReplica)
	broker := netsync.NewBroker(reg, nil)
	uplink := &fakeUplink{}
	broker.SetUplink(uplink)

	require.NoError(t, broker.RequestResync(ctx))

	require.Len(t, uplink.frames, 1)
	env, err := netsync.DecodeEnvelope(uplink.frames[0])
	require.NoError(t, err)
	assert.Equal(t, netsync.KindResync, env.Kind)
	assert.Empty(t, env.Payload)
}

func TestRequestResync_NoUplinkIsNoop(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	reg := registry.New(registry.RoleReplica)
	broker := netsync.NewBroker(reg, nil)
	assert.NoError(t, broker.RequestResync(ctx))
}
