package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/guessgrid/backend/internal/config"
	"github.com/guessgrid/backend/internal/db"
	"github.com/guessgrid/backend/internal/httpapi"
	"github.com/guessgrid/backend/internal/hub"
	"github.com/guessgrid/backend/internal/leaderboard"
	"github.com/guessgrid/backend/internal/session"
	"github.com/guessgrid/backend/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo *db.Repo
	if cfg.DatabaseURL != "" {
		repo, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database open failed", zap.Error(err))
		}
		logger.Info("session archive enabled")
	}

	st := store.NewMemory()

	// Build the hub *with* its collaborators injected
	h := hub.NewHub(ctx, hub.Deps{
		Store: st,
		Clock: clockwork.NewRealClock(),
		Log:   logger,
		Config: session.Config{
			GridSize: cfg.GridSize,
			Duration: cfg.GameDuration,
		},
		Repo: repo,
	})

	api := &httpapi.API{
		Hub:           h,
		Store:         st,
		Board:         leaderboard.New(st),
		Repo:          repo,
		Log:           logger,
		PublicBaseURL: cfg.PublicBaseURL,
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(api),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
