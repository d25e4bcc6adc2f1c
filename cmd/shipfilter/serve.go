package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shipfilter/internal/api"
	"shipfilter/internal/audit"
	"shipfilter/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger, "")
	if err != nil {
		return err
	}
	defer b.Close()

	sessions, err := session.NewManager(cfg.Token.Secret, cfg.Token.SessionTTL)
	if err != nil {
		return err
	}
	h := api.NewHandler(b.svc, sessions, b.db)
	app := api.NewApp(h, session.Middleware(sessions), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("starting server", zap.String("addr", addr))
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})
	if cfg.Audit.Enabled {
		g.Go(func() error {
			return audit.RunCleanup(gctx, b.db, cfg.Audit.RetentionDays, time.Hour, logger)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
