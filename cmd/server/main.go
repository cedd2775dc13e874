package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"osce-simulator/internal/cases"
	"osce-simulator/internal/config"
	"osce-simulator/internal/core"
	"osce-simulator/internal/db"
	httpserver "osce-simulator/internal/http"
	"osce-simulator/internal/llm"
	"osce-simulator/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "osce-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	caseRepo, err := cases.Builtin()
	if err != nil {
		log.Fatal("failed to load cases", zap.Error(err))
	}

	deps := core.Deps{
		Cases:     caseRepo,
		Connector: llm.NewOpenAIConnector(cfg.LLMConfig()),
		Logger:    log,
		Budget:    cfg.EncounterBudget,
	}

	// The archive is optional; sessions run the same without it.
	var (
		encounters httpserver.EncounterStore
		events     httpserver.Subscriber
	)
	if cfg.Database.URL != "" {
		conn, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal("failed to open encounter archive", zap.Error(err))
		}
		defer conn.Close()
		repo := db.NewRepository(conn)
		notifier := db.NewNotifier(conn, cfg.Database.URL, cfg.Database.NotifyChannel)
		deps.Recorder = db.NewArchive(repo, notifier)
		encounters = repo
		events = notifier
		log.Info("encounter archive enabled", zap.String("channel", cfg.Database.NotifyChannel))
	} else {
		log.Info("DATABASE_URL not set, encounter archive disabled")
	}

	registry := core.NewRegistry(deps)
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     httpserver.NewServer(registry, caseRepo, encounters, events, log),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error stopping server", zap.Error(err))
	}
	log.Info("server stopped")
}
