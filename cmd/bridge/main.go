// Package main is the entrypoint for the analytics-bridge (binary name "bridge" in Docker).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/analytics-bridge/internal/config"
	"github.com/morezero/analytics-bridge/internal/server"
	"github.com/morezero/analytics-bridge/pkg/analytics"
	"github.com/morezero/analytics-bridge/pkg/bridge"
	"github.com/morezero/analytics-bridge/pkg/commsutil"
	"github.com/morezero/analytics-bridge/pkg/db"
)

const usage = `Usage: bridge [command]
       bridge serve                  Start the bridge (NATS, HTTP, analytics operations).
       bridge migrate up             Run database migrations.
       bridge migrate status         Show migration status.
       bridge ensure-db [name]       Create database if missing (default name: analytics_test). Uses DATABASE_URL host/user.
       bridge clear                  Delete collected events and user properties; reset settings.
       bridge methods                List the analytics methods and the subject they are served on.
       bridge events [limit]         Print the most recent recorded events (default 20).
       bridge call <method> [json]   Send one call to a running bridge and print the reply.

Commands:
  serve            (default) Start the analytics bridge.
  migrate up       Run database migrations only.
  migrate status   Show current migration status.
  ensure-db [name] Create database (e.g. analytics_test) on same host as DATABASE_URL; then run tests with that URL.
  clear            Clear analytics data; schema preserved.
  methods          Print the operations table.
  events [limit]   Print recent events as a table.
  call             e.g. bridge call logEvent '{"name":"purchase","parameters":{"value":9}}'

Environment: DATABASE_URL (required), COMMS_URL, MIGRATION_PATH, BRIDGE_SUBJECT, BRIDGE_HTTP_ADDR (default 0.0.0.0:8080). See README.
`

const callTimeout = 10 * time.Second

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("bridge migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("bridge migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("bridge migrate status: %v", err)
			}
		default:
			log.Fatalf("bridge migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("bridge clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "analytics_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("bridge ensure-db: %v", err)
		}
		return
	case "methods":
		if err := runMethods(); err != nil {
			log.Fatalf("bridge methods: %v", err)
		}
		return
	case "events":
		limit := 20
		if len(args) > 1 {
			n, err := parseLimit(args[1])
			if err != nil {
				log.Fatalf("bridge events: %v", err)
			}
			limit = n
		}
		if err := runEvents(limit); err != nil {
			log.Fatalf("bridge events: %v", err)
		}
		return
	case "call":
		if len(args) < 2 {
			log.Fatalf("bridge call: require method name")
		}
		rawArgs := ""
		if len(args) > 2 {
			rawArgs = args[2]
		}
		if err := runCall(args[1], rawArgs); err != nil {
			log.Fatalf("bridge call: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("bridge: %v", err)
	}
}

func parseLimit(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	return n, nil
}

// openPool loads config and connects to DATABASE_URL.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolLimits{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func runMigrateUp() error {
	ctx := context.Background()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	ctx := context.Background()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runClear() error {
	ctx := context.Background()
	_, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.ClearAnalytics(ctx, pool); err != nil {
		return fmt.Errorf("clear analytics: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	targetURL, err := db.WithDatabaseName(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

func runMethods() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	subject, err := server.ChannelSubject(cfg.BridgeSubject)
	if err != nil {
		return err
	}
	// Listing only; the nil backend is never invoked.
	reg := analytics.NewService(nil, nil).Registry()
	return renderMethods(os.Stdout, server.NewMethodsOutput(reg, subject))
}

func runEvents(limit int) error {
	ctx := context.Background()
	_, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	events, err := db.NewStore(pool).RecentEvents(ctx, limit)
	if err != nil {
		return err
	}
	return renderEvents(os.Stdout, events)
}

// buildCallPayload encodes a request envelope for method with optional JSON object arguments.
func buildCallPayload(method, rawArgs string) ([]byte, error) {
	req := bridge.Request{Method: method, Arguments: map[string]any{}}
	if rawArgs != "" {
		if err := commsutil.DecodePayload([]byte(rawArgs), &req.Arguments); err != nil {
			return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	return commsutil.EncodePayload(req)
}

func runCall(method, rawArgs string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	subject, err := server.ChannelSubject(cfg.BridgeSubject)
	if err != nil {
		return err
	}
	payload, err := buildCallPayload(method, rawArgs)
	if err != nil {
		return err
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-cli")
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	defer nc.Close()

	msg, err := nc.Request(subject, payload, callTimeout)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	var reply any
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return printJSON(reply)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
