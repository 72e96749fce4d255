package registry

import (
	"context"

	"github.com/vk/entitystorego/internal/ctxlog"
	"github.com/vk/entitystorego/internal/record"
)

// ChangeObserver is invoked after every authoritative mutation (Set or
// MarkDirty) for the affected entity and module.
type ChangeObserver func(entity record.EntityID, moduleID string)

// SyncObserver is invoked on a replica after inbound sync data has been
// applied to the named module.
type SyncObserver func(moduleID string)

// OnDataChanged registers an observer for authoritative mutations.
// Observers run synchronously, after the mutation and before the sync
// push; a panicking observer is recovered and logged so one bad handler
// cannot break the emitter or starve the others.
func (r *Registry) OnDataChanged(fn ChangeObserver) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.changeFns = append(r.changeFns, fn)
}

// OnDataSynced registers an observer for applied inbound sync data.
func (r *Registry) OnDataSynced(fn SyncObserver) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.syncFns = append(r.syncFns, fn)
}

func (r *Registry) notifyChanged(ctx context.Context, entity record.EntityID, moduleID string) {
	r.obsMu.RLock()
	observers := make([]ChangeObserver, len(r.changeFns))
	copy(observers, r.changeFns)
	r.obsMu.RUnlock()

	for _, fn := range observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					ctxlog.FromContext(ctx).Error("DataChanged observer panicked", "module", moduleID, "entity", entity, "panic", rec)
				}
			}()
			fn(entity, moduleID)
		}()
	}
}

// NotifySynced fires the DataSynced observers. The sync broker calls it
// after applying inbound data on a replica.
func (r *Registry) NotifySynced(ctx context.Context, moduleID string) {
	r.obsMu.RLock()
	observers := make([]SyncObserver, len(r.syncFns))
	copy(observers, r.syncFns)
	r.obsMu.RUnlock()

	for _, fn := range observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					ctxlog.FromContext(ctx).Error("DataSynced observer panicked", "module", moduleID, "panic", rec)
				}
			}()
			fn(moduleID)
		}()
	}
}
