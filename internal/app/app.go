package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/entitystorego/internal/config"
	"github.com/vk/entitystorego/internal/ctxlog"
	"github.com/vk/entitystorego/internal/netsync"
	"github.com/vk/entitystorego/internal/persist"
	"github.com/vk/entitystorego/internal/record"
	"github.com/vk/entitystorego/internal/registry"
	"github.com/vk/entitystorego/internal/transport"
)

// App encapsulates one store session: the registry, the sync broker, the
// persistence engine, and the transport for whichever role the session
// configuration selects.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	ctx     context.Context
	session *config.Config

	registry *registry.Registry
	broker   *netsync.Broker
	engine   *persist.Engine
	hub      *transport.Hub
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and registry.
// Failures to load configuration or to register a built-in module are
// fatal startup errors and panic; the entrypoint recovers them into a
// clean exit.
func NewApp(outW io.Writer, appConfig *Config, extensions ...registry.Extension) *App {
	session, err := config.Load(context.Background(), appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}

	// Entrypoint flags outrank the session file for log settings.
	logLevel := session.LogLevel
	if appConfig.LogLevel != "" {
		logLevel = appConfig.LogLevel
	}
	logFormat := session.LogFormat
	if appConfig.LogFormat != "" {
		logFormat = appConfig.LogFormat
	}

	logger := newLogger(logLevel, logFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	role := registry.RoleReplica
	if session.Role == config.RoleAuthority {
		role = registry.RoleAuthority
	}
	reg := registry.New(role)

	if len(extensions) == 0 {
		extensions = coreExtensions
	}
	for _, ext := range extensions {
		if err := ext.Register(ctx, reg); err != nil {
			// Duplicate or broken built-in registration is a programmer error.
			panic(fmt.Errorf("failed to register data module: %w", err))
		}
	}
	logger.Debug("All data modules registered.", "count", len(extensions), "modules", reg.ModuleIDs())

	app := &App{
		outW:     outW,
		logger:   logger,
		ctx:      ctx,
		session:  session,
		registry: reg,
		engine:   persist.NewEngine(reg, session.DataFile()),
	}

	if role == registry.RoleAuthority {
		app.hub = transport.NewHub()
		app.broker = netsync.NewBroker(reg, app.hub)
		app.hub.SetInbound(func(ctx context.Context, from record.EntityID, frame []byte) {
			app.broker.HandleFrame(ctx, 0, from, frame)
		})
	} else {
		app.broker = netsync.NewBroker(reg, nil)
	}
	reg.SetPusher(app.broker)

	return app
}

// Registry returns the application's registry. This is primarily for
// testing and for collaborating extensions registered at startup.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Broker returns the application's sync broker.
func (a *App) Broker() *netsync.Broker {
	return a.broker
}

// Engine returns the application's persistence engine.
func (a *App) Engine() *persist.Engine {
	return a.engine
}

// Session returns the loaded session configuration.
func (a *App) Session() *config.Config {
	return a.session
}
