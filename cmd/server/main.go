package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/olympics-backend/internal/auth"
	"github.com/DoyleJ11/olympics-backend/internal/config"
	"github.com/DoyleJ11/olympics-backend/internal/engine"
	"github.com/DoyleJ11/olympics-backend/internal/httpapi"
	"github.com/DoyleJ11/olympics-backend/internal/hub"
	"github.com/DoyleJ11/olympics-backend/internal/lobby"
	"github.com/DoyleJ11/olympics-backend/internal/logging"
	"github.com/DoyleJ11/olympics-backend/internal/rooms"
	"github.com/DoyleJ11/olympics-backend/internal/store"
	"github.com/DoyleJ11/olympics-backend/internal/store/memory"
	"github.com/DoyleJ11/olympics-backend/internal/store/postgres"
	"github.com/DoyleJ11/olympics-backend/internal/ws"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	var st store.Store
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, keeping rooms in memory")
		st = memory.New()
	} else {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := pg.Close(); err != nil {
				log.Warn("closing database", zap.Error(err))
			}
		}()
		g.Go(func() error { return pg.Listen(ctx) })
		st = pg
	}

	identity := auth.ContextIdentity{}
	mgr := rooms.NewManager(st, identity, log)
	h := hub.NewHub(ctx, func(ctx context.Context, roomID string) (engine.State, error) {
		return lobby.LoadState(ctx, st, roomID)
	}, lobby.Options{
		Store:        st,
		Members:      mgr,
		Log:          log,
		TickInterval: cfg.TickInterval,
		StoreTimeout: cfg.StoreTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	})

	// Build the router *with* the hub injected
	api := &httpapi.API{Rooms: mgr, Hub: h, Identity: identity, Log: log}
	handler := httpapi.SetupRoutes(api, httpapi.RouteOptions{
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		WS:       ws.Options{OriginPatterns: cfg.AllowedOrigins},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		h.Inbox() <- hub.ShutdownHub{}

		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
