package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"medgate/internal/audit"
	auditkafka "medgate/internal/audit/kafka"
	auditmemory "medgate/internal/audit/store/memory"
	auditpostgres "medgate/internal/audit/store/postgres"
	"medgate/internal/pipeline"
	"medgate/internal/platform/config"
	"medgate/internal/platform/httpserver"
	"medgate/internal/platform/logger"
	"medgate/internal/platform/metrics"
	"medgate/internal/platform/redisclient"
	"medgate/internal/records"
	httptransport "medgate/internal/transport/http"
	"medgate/internal/verify"
	verifystore "medgate/internal/verify/store"
)

// main wires dependencies and owns process lifecycle. Business logic lives
// in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session persistence: Redis when configured, in-process otherwise.
	var sessions verify.SessionStore = verifystore.NewMemory()
	redisClient, err := redisclient.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = verifystore.NewRedis(redisClient.Client)
		log.Info("using redis session store")
	}

	// Audit stores: memory always, postgres and kafka when configured.
	stores := []audit.Store{auditmemory.NewInMemoryStore()}
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		archive := auditpostgres.New(db)
		if err := archive.Migrate(ctx); err != nil {
			log.Error("audit archive migration failed", "error", err)
			os.Exit(1)
		}
		stores = append(stores, archive)
		log.Info("audit archive enabled")
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := auditkafka.NewPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		stores = append(stores, publisher)
		log.Info("audit stream enabled", "topic", cfg.KafkaTopic)
	}

	recorder := audit.NewRecorder(log)
	worker := audit.NewWorker(recorder.Inbox(), log, stores...)

	solver := httptransport.NewRelaySolver(log)
	checker, err := verify.NewClient(cfg.AuthorityURL, sessions, solver,
		verify.WithLogger(log),
		verify.WithSolveTimeout(cfg.SolveTimeout),
	)
	if err != nil {
		log.Error("failed to build verification client", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	pipe, err := pipeline.New(records.NewFSSource(cfg.WorkDir), checker, recorder,
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
		pipeline.WithSessionReporter(checker),
		pipeline.WithMismatchGate(cfg.MismatchGate),
	)
	if err != nil {
		log.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	runner := httptransport.NewRunner(pipe, log, m)
	handler := httptransport.NewHandler(runner, solver, checker, cfg.OperatorKeyHash, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return worker.Run(groupCtx)
	})

	group.Go(func() error {
		log.Info("starting medgate", "addr", cfg.Addr, "work_dir", cfg.WorkDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
