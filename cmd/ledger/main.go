package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/inventory-ledger/cmd/ledger/cli"
	"github.com/odyssey-erp/inventory-ledger/internal/app"
	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/observability"
	"github.com/odyssey-erp/inventory-ledger/internal/platform/cache"
	"github.com/odyssey-erp/inventory-ledger/internal/platform/db"
	"github.com/odyssey-erp/inventory-ledger/internal/posting"
	"github.com/odyssey-erp/inventory-ledger/internal/procurement"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
	"github.com/odyssey-erp/inventory-ledger/jobs"
)

const usage = `usage: ledger [command]

commands:
  serve                      run the HTTP API (default)
  reconcile [-warehouses ids] [-json]
                             compare stock cells with the movement log
  jobs reconcile [-warehouses ids]
                             enqueue a reconciliation run on the worker
  jobs stats                 print queue statistics`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "reconcile":
		os.Exit(reconcile(ctx, cfg, logger, args))
	case "jobs":
		os.Exit(jobsCommand(ctx, cfg, args))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("ledger", slog.Any("error", err))
		os.Exit(1)
	}
}

func redisOptions(cfg *app.Config) cache.Options {
	return cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisOpts := redisOptions(cfg)
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	queue := jobs.NewClient(redisOpts.AsynqOpt())
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts.AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	service := posting.NewService(
		posting.NewStore(pool),
		inventory.NewLedger(cfg.LedgerPolicy()),
		cfg.PostingConfig(),
		posting.Dependencies{
			Locker:  posting.NewDocumentLocker(redisClient),
			Audit:   shared.NewAuditLogger(pool),
			Events:  queue,
			Metrics: posting.NewMetrics(metrics.Registerer()),
			Logger:  logger,
		},
	)
	queries := posting.Queries{
		Inventory:  inventory.NewRepository(pool),
		Purchasing: procurement.NewRepository(pool),
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		PostingHandler: posting.NewHandler(logger, service, queries),
		JobHandler:     jobs.NewHandler(inspector, queue, logger),
		Metrics:        metrics,
		Database:       pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func reconcile(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	warehouses := fs.String("warehouses", "", "comma separated warehouse ids (default all)")
	asJSON := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	return cli.NewReconcileCLI(inventory.NewRepository(pool), logger).Command(ctx, cli.ReconcileOptions{
		Warehouses: *warehouses,
		JSONOutput: *asJSON,
	})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	ops := cli.NewJobsCLI(redisOptions(cfg).AsynqOpt())
	defer func() { _ = ops.Close() }()

	switch args[0] {
	case "reconcile":
		fs := flag.NewFlagSet("jobs reconcile", flag.ContinueOnError)
		warehouses := fs.String("warehouses", "", "comma separated warehouse ids (default all)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		ids, err := cli.ParseIDs(*warehouses)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs reconcile: %v\n", err)
			return 1
		}
		info, err := ops.TriggerReconcile(ctx, ids)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs reconcile: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s (%s)\n", info.ID, info.Type)
		return 0
	case "stats":
		stats, err := ops.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		if err := json.NewEncoder(os.Stdout).Encode(stats); err != nil {
			return 1
		}
		return 0
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}
