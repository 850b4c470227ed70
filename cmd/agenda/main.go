// Command agenda books and inspects time slots from the terminal or serves
// them over HTTP. Every invocation is a separate context on the configured
// storage, so a running "agenda watch" or "agenda serve" sees bookings made
// by other invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/agenda/internal/application"
	"github.com/example/agenda/internal/calendar"
	"github.com/example/agenda/internal/config"
	"github.com/example/agenda/internal/logging"
	"github.com/example/agenda/internal/persistence"
	"github.com/example/agenda/internal/persistence/memory"
	"github.com/example/agenda/internal/persistence/redis"
	"github.com/example/agenda/internal/persistence/sqlite"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run loads configuration, opens one storage context and executes the
// subcommand in args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return exitError
	}

	logger := logging.New(stderr, logging.ParseLevel(cfg.LogLevel))
	ctx = logging.ContextWithLogger(ctx, logger)

	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.StorageDriver, "error", err, "error_kind", application.ErrorKind(err))
		return exitError
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	loc := calendar.Location(cfg.Timezone)
	tables := persistence.NewTableStore(backend,
		persistence.WithTableKey(cfg.StorageKey),
		persistence.WithLocation(loc),
		persistence.WithLogger(logger),
	)
	store := application.NewBookingStore(tables, backend,
		application.WithLatency(cfg.WriteLatency),
		application.WithStoreLogger(logger),
	)

	a := &app{
		store:  store,
		tables: tables,
		loc:    loc,
		now:    time.Now,
		stdout: stdout,
		stderr: stderr,
		logger: logger,

		httpAddr: cfg.HTTPAddr,
	}
	return a.dispatch(ctx, args)
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Backend, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		return memory.NewScope().Open(), nil
	case config.DriverSQLite:
		sqlCfg := sqlite.DefaultConfig(cfg.SQLitePath)
		sqlCfg.PollInterval = cfg.SQLitePollInterval
		medium, err := sqlite.Open(ctx, sqlCfg, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return medium, nil
	case config.DriverRedis:
		medium, err := redis.Open(ctx, redis.Config{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			ChannelPrefix: cfg.StorageKey,
		}, redis.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return medium, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
