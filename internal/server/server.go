// Package server orchestrates all components: NATS client, DB store, analytics
// operations table, bridge dispatcher, HTTP health and status pages.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/analytics-bridge/internal/config"
	"github.com/morezero/analytics-bridge/pkg/analytics"
	"github.com/morezero/analytics-bridge/pkg/bootstrap"
	"github.com/morezero/analytics-bridge/pkg/bridge"
	"github.com/morezero/analytics-bridge/pkg/commsutil"
	"github.com/morezero/analytics-bridge/pkg/db"
	"github.com/morezero/analytics-bridge/pkg/events"
	"github.com/morezero/analytics-bridge/pkg/semver"
)

const logPrefix = "server:server"

var _ analytics.Backend = (*db.Store)(nil)

// storeForServer is the read side of the store used by the HTTP pages.
type storeForServer interface {
	Settings(ctx context.Context) (*db.Settings, error)
	RecentEvents(ctx context.Context, limit int) ([]db.Event, error)
	UserProperties(ctx context.Context) ([]db.UserProperty, error)
}

// pinger reports database reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server is the analytics-bridge orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	dispatcher *bridge.Dispatcher
	store      storeForServer
	db         pinger
	subject    string

	// calls dispatched whose reply has not been sent yet
	inflight atomic.Int64
}

// ChannelSubject derives the request subject for the analytics channel, e.g.
// "bridge.firebase.analytics.v1". A non-empty override wins.
func ChannelSubject(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	ref, err := semver.ParseChannelRef(analytics.Channel)
	if err != nil {
		return "", fmt.Errorf("%s - invalid channel %q: %w", logPrefix, analytics.Channel, err)
	}
	major, err := semver.Major(analytics.APIVersion)
	if err != nil {
		return "", fmt.Errorf("%s - invalid API version %q: %w", logPrefix, analytics.APIVersion, err)
	}
	return commsutil.BuildChannelSubject(ref.App, ref.Name, major), nil
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	logLevel, _ := config.ParseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info(fmt.Sprintf("%s - Starting analytics-bridge", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Resolve subjects
	subject, err := ChannelSubject(cfg.BridgeSubject)
	if err != nil {
		return err
	}
	s.subject = subject
	slog.Info(fmt.Sprintf("%s - Channel %s@%s on subject %s", logPrefix, analytics.Channel, analytics.APIVersion, subject))

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc

	// Step 3: Connect to database
	if cfg.EnsureDatabase {
		if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to ensure database: %w", logPrefix, err)
		}
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolLimits{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		nc.Close()
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool
	s.db = pool

	// Step 3b: Run migrations if enabled
	if cfg.RunMigrations {
		migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			nc.Close()
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			pool.Close()
			nc.Close()
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	// Step 4: Build the operations table over the store and event fan-out
	store := db.NewStore(pool)
	s.store = store
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.EventsEnabled {
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.EventSubject})
	}
	svc := analytics.NewService(store, publisher)
	s.dispatcher = bridge.NewDispatcher(svc.Registry(), bridge.NewForwarder(cfg.ReplyTimeout))

	// Step 4b: Replay startup defaults through the dispatcher
	bootCfg, err := bootstrap.LoadBootstrapConfig(cfg.BootstrapFile)
	if err != nil {
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to load bootstrap config: %w", logPrefix, err)
	}
	if err := bootstrap.Apply(ctx, s.dispatcher, bootCfg); err != nil {
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to apply bootstrap defaults: %w", logPrefix, err)
	}

	// Step 5: Subscribe to call and method-listing subjects
	subs, err := s.subscribe(ctx)
	if err != nil {
		pool.Close()
		nc.Close()
		return err
	}

	// Step 6: Start HTTP health server
	httpAddr := cfg.HTTPListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - analytics-bridge is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown: stop intake, wait for pending replies, then cancel what is left.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	s.drain(subs, cfg.ShutdownTimeout)
	cancel()
	if err := nc.Drain(); err != nil {
		slog.Warn(fmt.Sprintf("%s - NATS drain failed: %v", logPrefix, err))
		nc.Close()
	} else if !waitUntil(time.Now().Add(cfg.ShutdownTimeout), nc.IsClosed) {
		slog.Warn(fmt.Sprintf("%s - NATS connection did not close in %s", logPrefix, cfg.ShutdownTimeout))
		nc.Close()
	}
	pool.Close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// subscribe registers the call handler and the method-listing handler.
func (s *Server) subscribe(ctx context.Context) ([]*comms.Subscription, error) {
	sub, err := s.nc.Subscribe(s.subject, s.handleCall(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, s.subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, s.subject))

	methodsSubject := commsutil.BuildMethodsSubject(s.subject)
	methodsSub, err := s.nc.Subscribe(methodsSubject, s.handleMethods())
	if err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, methodsSubject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, methodsSubject))

	return []*comms.Subscription{sub, methodsSub}, nil
}

// drain stops intake on subs and waits up to timeout for every pending reply.
// It reports whether all replies were sent in time.
func (s *Server) drain(subs []*comms.Subscription, timeout time.Duration) bool {
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to drain %s: %v", logPrefix, sub.Subject, err))
		}
	}

	drained := waitUntil(time.Now().Add(timeout), func() bool {
		for _, sub := range subs {
			if sub.IsValid() {
				return false
			}
		}
		return s.inflight.Load() == 0
	})
	if !drained {
		slog.Warn(fmt.Sprintf("%s - %d calls still pending after %s", logPrefix, s.inflight.Load(), timeout))
	}
	return drained
}

func waitUntil(deadline time.Time, done func() bool) bool {
	for !done() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}
