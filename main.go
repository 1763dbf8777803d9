package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/example/drillcore/internal/ai"
	"github.com/example/drillcore/internal/api"
	"github.com/example/drillcore/internal/config"
	"github.com/example/drillcore/internal/core"
	"github.com/example/drillcore/internal/cron"
	"github.com/example/drillcore/internal/database"
	"github.com/example/drillcore/internal/excel"
	"github.com/example/drillcore/internal/fsrs"
	"github.com/example/drillcore/internal/generator"
	"github.com/example/drillcore/internal/inventory"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/internal/replenish"
	"github.com/example/drillcore/internal/selector"
	"github.com/example/drillcore/internal/session"
)

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logr.Sync()

	db, err := database.Connect(cfg.DBType, cfg.DBDSN)
	if err != nil {
		logr.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	records := database.NewMemoryRecordRepository(db)
	catalog := database.NewVocabRepository(db)
	drillCache := database.NewDrillCacheRepository(db)

	engine, err := fsrs.NewEngine(fsrs.Config{})
	if err != nil {
		logr.Fatal("failed to build scheduler", "error", err)
	}

	store := inventory.NewStore(rdb, cfg.Capacity, logr)
	sel := selector.New(records, catalog, selector.Config{
		ReviewRatio: cfg.ReviewRatio,
		SimpleRatio: cfg.SimpleRatio,
		HardRatio:   cfg.HardRatio,
	}, logr)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	coordinator := replenish.NewCoordinator(rdb, asynqClient, store, records, cfg, logr)

	var gen generator.ContentGenerator
	if cfg.OpenAIKey != "" {
		gen, err = ai.New(cfg.OpenAIKey, cfg.OpenAIURL, cfg.OpenAIModel)
		if err != nil {
			logr.Fatal("failed to build content generator", "error", err)
		}
	} else {
		logr.Warn("OPENAI_API_KEY not set, using deterministic drill generation")
		gen = generator.Static{}
	}
	worker := replenish.NewWorker(records, catalog, drillCache, store, gen, cfg, logr)

	buffer := session.NewBuffer(rdb, cfg, logr)
	flusher := session.NewBufferFlusher(buffer, engine, records)
	settler := session.NewSettler(rdb, flusher, cfg, logr)

	svc := core.NewService(sel, store, drillCache, catalog, records, engine, buffer, coordinator, inspector, cfg, logr)

	// One-shot catalog import, then exit.
	if len(os.Args) > 1 && os.Args[1] == "import" {
		if len(os.Args) < 3 {
			logr.Fatal("usage: drillcore import <file>")
		}
		importer := excel.NewImporter(catalog, logr)
		if _, err := importer.Import(context.Background(), excel.DefaultImportConfig(os.Args[2])); err != nil {
			logr.Fatal("import failed", "error", err)
		}
		return
	}

	// Background job server. Queue weights are strict priorities in effect:
	// emergency restocks preempt buffered batches, which preempt sweeps.
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			replenish.QueueCritical: 6,
			replenish.QueueDefault:  3,
			replenish.QueueLow:      1,
		},
	})
	mux := asynq.NewServeMux()
	worker.Register(mux)
	go func() {
		if err := srv.Run(mux); err != nil {
			logr.Fatal("job server failed", "error", err)
		}
	}()

	jobs := cron.New(settler, coordinator, drillCache, logr)
	jobs.Start()

	handler := api.NewHandler(svc, logr)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(handler, cfg.Env),
	}
	go func() {
		logr.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("http server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logr.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jobs.Stop()
	srv.Shutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", "error", err)
	}

	// Settle whatever sessions are still open so no buffered grades are lost.
	if _, err := settler.SettleInactive(shutdownCtx); err != nil {
		logr.Error("final settle failed", "error", err)
	}
	logr.Info("stopped")
}
