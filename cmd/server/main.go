package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/OnAir/internal/adapters/http"
	"github.com/dkeye/OnAir/internal/app"
	"github.com/dkeye/OnAir/internal/app/orch"
	"github.com/dkeye/OnAir/internal/config"
	"github.com/dkeye/OnAir/internal/logging"
	"github.com/dkeye/OnAir/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	logging.Init(cfg.Log)

	policy := app.SimplePolicy{Kick: cfg.Session.KickSlowClients}
	o := orch.New(app.NewRegistry(), policy, orch.Options{
		DefaultCountdown: cfg.Session.CountdownSeconds,
		MaxCountdown:     cfg.Session.MaxCountdownSeconds,
		TickInterval:     cfg.Session.TickInterval,
	})
	var dir router.ChannelLister
	if cfg.Media.WHEPGatewayURL != "" {
		dir = &media.Directory{Gateway: cfg.Media.WHEPGatewayURL, AuthKey: cfg.Media.WHEPAuthKey}
	}

	r := router.SetupRouter(ctx, cfg, o, dir)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("OnAir server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
