package daemon

import (
	"context"
	"time"

	"github.com/matheus3301/wppsync/internal/api"
	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/config"
	"github.com/matheus3301/wppsync/internal/gateway"
	"github.com/matheus3301/wppsync/internal/lock"
	"github.com/matheus3301/wppsync/internal/logging"
	"github.com/matheus3301/wppsync/internal/normalize"
	"github.com/matheus3301/wppsync/internal/outbox"
	"github.com/matheus3301/wppsync/internal/roster"
	"github.com/matheus3301/wppsync/internal/session"
	"github.com/matheus3301/wppsync/internal/status"
	"github.com/matheus3301/wppsync/internal/store"
	intsync "github.com/matheus3301/wppsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	// Config skips loading ~/.wpp/config.toml when set.
	Config *config.Config
	// Logger replaces the session log file when set.
	Logger *zap.Logger
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideJournal,
			provideGateway,
			provideRoster,
			provideNormalizer,
			providePipeline,
			provideEngine,
			provideRecorder,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideJournal depends on the lock so only the lock holder migrates.
func provideJournal(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	path := session.JournalPath(p.SessionName)
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("journal migrations applied", zap.Uint("version", result.Version))
	}
	logger.Info("journal ready", zap.String("path", path), zap.Uint("version", result.Version))
	return db, nil
}

func provideGateway(cfg *config.Config, b *bus.Bus, m *status.Machine, logger *zap.Logger) *gateway.Client {
	g := cfg.Gateway
	return gateway.NewClient(gateway.Options{
		BaseURL:            g.URL,
		SocketPath:         g.SocketPath,
		Token:              g.Token,
		RequestTimeout:     g.RequestTimeout.Duration,
		ReconnectBaseDelay: g.ReconnectBaseDelay.Duration,
		ReconnectMaxDelay:  g.ReconnectMaxDelay.Duration,
	}, b, m, logger.Named("gateway"))
}

func provideRoster() *roster.Index {
	return roster.New()
}

func provideNormalizer(cfg *config.Config, idx *roster.Index) *normalize.Normalizer {
	id := normalize.DefaultIdentity()
	id.Canonical = cfg.Identity.LocalID
	id.Prefix = cfg.Identity.AddressPrefix
	id.PrefixFallback = cfg.Identity.PrefixFallback
	return normalize.New(id, idx)
}

func providePipeline(cfg *config.Config, gw *gateway.Client, b *bus.Bus, logger *zap.Logger) *outbox.Pipeline {
	return outbox.NewPipeline(gw, gw, outbox.BusReporter{Bus: b}, cfg.Sync.DurabilityTimeout.Duration, logger.Named("outbox"))
}

func provideEngine(cfg *config.Config, gw *gateway.Client, pl *outbox.Pipeline, idx *roster.Index,
	norm *normalize.Normalizer, m *status.Machine, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(gw, pl, idx, norm, m, b, intsync.Options{
		HistoryPageSize:   cfg.Sync.HistoryPageSize,
		HistoryMaxPages:   cfg.Sync.HistoryMaxPages,
		RosterPageSize:    cfg.Sync.RosterPageSize,
		ResyncOnReconnect: cfg.Sync.ResyncOnReconnect,
	}, logger.Named("sync"))
}

func provideRecorder(db *store.DB, b *bus.Bus, logger *zap.Logger) *outbox.Recorder {
	return outbox.NewRecorder(db, b, logger.Named("journal"))
}

func provideService(p Params, engine *intsync.Engine, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(p.SessionName, engine, db, b, logger.Named("api"))
}

// registerLifecycle takes the lock before the server so a second daemon
// never removes a live socket.
func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, srv *Server, db *store.DB, gw *gateway.Client,
	engine *intsync.Engine, recorder *outbox.Recorder, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribers first, so nothing the gateway publishes is missed.
			recorder.Start(context.Background())
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			_ = machine.Transition(status.Connecting)
			gw.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Watch streams never finish on their own.
			grace, cancel := context.WithTimeout(ctx, 2*time.Second)
			srv.Stop(grace)
			cancel()
			gw.Stop()
			// The engine waits for durability calls, whose results the
			// recorder still has to journal.
			engine.Stop()
			recorder.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing journal", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
