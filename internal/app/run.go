package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/entitystorego/internal/ctxlog"
	"github.com/vk/entitystorego/internal/record"
	"github.com/vk/entitystorego/internal/transport"
)

// replicaMaxBackoff caps the reconnect delay after repeated dial failures.
const replicaMaxBackoff = 30 * time.Second

// Run executes the session until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "role", a.session.Role)

	if a.registry.Authoritative() {
		return a.runAuthority(ctx)
	}
	return a.runReplica(ctx)
}

// runAuthority loads persisted data, serves the sync endpoint and
// checkpoints on a timer. On shutdown it takes a final save, clears the
// in-memory state and closes the listener.
func (a *App) runAuthority(ctx context.Context) error {
	if err := a.engine.Load(ctx); err != nil {
		// Prior on-disk state is intact; an authority with defaults is
		// preferable to no authority at all.
		a.logger.Warn("Continuing with empty store after load failure", "error", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/sync", a.hub.Handler(ctx))
	mux.HandleFunc("/health", a.healthHandler)

	server := &http.Server{Addr: a.session.ListenAddr, Handler: mux}
	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("🚀 Authority listening", "address", a.session.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	ticker := time.NewTicker(a.session.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.engine.Save(ctx); err != nil {
				a.logger.Warn("Checkpoint save failed, previous file kept", "error", err)
			}
		case err := <-serverErr:
			return fmt.Errorf("sync listener failed: %w", err)
		case <-ctx.Done():
			a.logger.Info("🏁 Session ending, taking final save...")
			a.shutdownAuthority(server)
			return nil
		}
	}
}

// shutdownAuthority is the teardown sequence: final save, clear in-memory
// state, drop replicas, stop the listener. The saved file survives for the
// next session.
func (a *App) shutdownAuthority(server *http.Server) {
	// The run context is already canceled; build a fresh one for teardown.
	ctx := ctxlog.WithLogger(context.Background(), a.logger)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.engine.Save(ctx); err != nil {
		a.logger.Error("Final save failed, previous file kept", "error", err)
	}
	a.engine.Clear(ctx)
	a.hub.Close()

	if err := server.Shutdown(ctx); err != nil {
		a.logger.Error("Sync listener shutdown failed", "error", err)
	}
}

// healthHandler reports liveness, mirroring the store's module count.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK %d modules\n", len(a.registry.ModuleIDs()))
}

// runReplica keeps one link to the authority alive, requesting a full
// resync after every (re)connect and applying inbound frames until the
// context is canceled.
func (a *App) runReplica(ctx context.Context) error {
	entity := record.EntityID(a.session.EntityID)
	backoff := time.Second

	for {
		link, err := transport.Dial(ctx, a.session.AuthorityURL, entity)
		if err != nil {
			a.logger.Warn("Failed to reach authority, retrying", "url", a.session.AuthorityURL, "backoff", backoff, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, replicaMaxBackoff)
			continue
		}
		backoff = time.Second

		a.logger.Info("Connected to authority, requesting resync", "entity", entity)
		a.broker.SetUplink(link)
		if err := a.broker.RequestResync(ctx); err != nil {
			a.logger.Warn("Resync request failed", "error", err)
		}

		err = link.ReadLoop(ctx, func(frame []byte) {
			a.broker.HandleFrame(ctx, entity, 0, frame)
		})
		a.broker.SetUplink(nil)
		link.Close()

		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn("Lost connection to authority, reconnecting", "error", err)
	}
}
