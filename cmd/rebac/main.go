// Command rebac is a CLI front end for the relationship-based authorization
// engine: write/remove tuples, ask check questions, and list what a subject
// can reach, against a selectable storage backend.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/relguard/rebac/pkg/authz"
	"github.com/relguard/rebac/pkg/config"
	"github.com/relguard/rebac/pkg/observability"
	"github.com/relguard/rebac/pkg/schema"
	"github.com/relguard/rebac/pkg/schema/loader"
	"github.com/relguard/rebac/pkg/store"
	"github.com/relguard/rebac/pkg/store/memory"
	"github.com/relguard/rebac/pkg/store/ratelimit"
	"github.com/relguard/rebac/pkg/store/redisstore"
	"github.com/relguard/rebac/pkg/store/resiliency"
	"github.com/relguard/rebac/pkg/store/sqlstore"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint: it never calls os.Exit itself, so tests
// can assert on its return code and captured output.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "check":
		return runCheck(args[2:], stdout, stderr)
	case "allow":
		return runAllow(args[2:], stdout, stderr)
	case "disallow":
		return runDisallow(args[2:], stdout, stderr)
	case "add-member":
		return runAddMember(args[2:], stdout, stderr)
	case "remove-member":
		return runRemoveMember(args[2:], stdout, stderr)
	case "set-parent":
		return runSetParent(args[2:], stdout, stderr)
	case "remove-parent":
		return runRemoveParent(args[2:], stdout, stderr)
	case "list":
		return runList(args[2:], stdout, stderr)
	case "accessible":
		return runAccessible(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "rebac — relationship-based authorization engine CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "usage: rebac <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  check          ask whether a subject can perform an action on an object")
	fmt.Fprintln(w, "  allow          grant a direct relation tuple")
	fmt.Fprintln(w, "  disallow       remove tuples matching a filter")
	fmt.Fprintln(w, "  add-member     add a subject to a group")
	fmt.Fprintln(w, "  remove-member  remove a subject from a group")
	fmt.Fprintln(w, "  set-parent     link a child object to its parent")
	fmt.Fprintln(w, "  remove-parent  unlink a child object from its parent")
	fmt.Fprintln(w, "  list           list tuples matching a filter")
	fmt.Fprintln(w, "  accessible     list objects a subject can reach")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "backend selection and engine limits come from the environment — see pkg/config.")
}

// bootstrap constructs an Engine from process configuration: it loads the
// schema bundle, opens the selected storage backend, and wraps it with
// rate-limiting and circuit-breaking decorators when configured.
func bootstrap(ctx context.Context) (*authz.Engine, func() error, error) {
	cfg := config.Load()
	configureLogging(cfg.LogLevel)

	decl, err := loader.LoadFile(cfg.SchemaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load schema: %w", err)
	}
	sch, err := schema.Build(*decl)
	if err != nil {
		return nil, nil, fmt.Errorf("build schema: %w", err)
	}

	adapter, closer, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.RateLimitPerSecond > 0 {
		adapter = ratelimit.Wrap(adapter, cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}
	if cfg.CircuitBreakerThreshold > 0 {
		adapter = resiliency.Wrap(adapter, "storage", cfg.CircuitBreakerThreshold, secondsToDuration(cfg.CircuitBreakerResetSeconds))
	}

	var provider *observability.Provider
	shutdownObservability := func() error { return nil }
	if cfg.OTELEnabled {
		provider, err = observability.New(ctx, &observability.Config{
			ServiceName:  "rebac",
			OTLPEndpoint: cfg.OTLPEndpoint,
			SampleRate:   1.0,
			BatchTimeout: 5 * time.Second,
			Enabled:      true,
			Insecure:     true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init observability: %w", err)
		}
		shutdownObservability = func() error { return provider.Shutdown(context.Background()) }
	}

	engine, err := authz.New(authz.Config{
		Storage:           adapter,
		Schema:            sch,
		DefaultCheckDepth: cfg.CheckDepth,
		FieldSeparator:    cfg.FieldSeparator,
		ThrowOnMaxDepth:   cfg.ThrowOnMaxDepth,
		Observability:     provider,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("construct engine: %w", err)
	}

	return engine, func() error {
		closeErr := closer()
		if obsErr := shutdownObservability(); obsErr != nil && closeErr == nil {
			closeErr = obsErr
		}
		return closeErr
	}, nil
}

func configureLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func openStorage(ctx context.Context, cfg *config.Config) (store.Adapter, func() error, error) {
	switch cfg.StorageBackend {
	case "memory", "":
		return memory.New(func(msg string) { slog.Warn(msg) }), func() error { return nil }, nil
	case "sqlite":
		a, err := sqlstore.OpenSQLite(ctx, cfg.StorageDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return a, a.Close, nil
	case "postgres":
		a, err := sqlstore.OpenPostgres(ctx, cfg.StorageDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return a, a.Close, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.StorageDSN})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return redisstore.New(rdb), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
