package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fmueller/voxserve/internal/api"
	"github.com/fmueller/voxserve/internal/audio"
	"github.com/fmueller/voxserve/internal/metrics"
	"github.com/fmueller/voxserve/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP transcription service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	bindLoggingFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindResourceFlags(cmd, app)
	bindServeFlags(cmd, app)

	return cmd
}

func (a *appState) runServe(ctx context.Context) error {
	serveFn := a.serveFn
	if serveFn == nil {
		serveFn = a.serve
	}
	return serveFn(ctx)
}

func (a *appState) serve(ctx context.Context) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	logger := a.log()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload directory %s: %w", cfg.UploadDir, err)
	}

	st, err := newStack(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	st.locator.Warm(ctx)

	if err := prometheus.Register(metrics.NewPoolCollector(st.pool)); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return fmt.Errorf("register pool metrics: %w", err)
		}
	}

	srv := api.NewServer(api.Options{
		Addr:           cfg.HTTPAddr,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		UploadDir:      cfg.UploadDir,
		ModelDir:       cfg.ModelDir,
		Language:       cfg.Language,
		KeepUploads:    cfg.KeepUploads,
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
		Version:        version.Resolve(),
		Transcriber:    st.orchestrator,
		Resources:      st.locator,
		Validator:      audio.NewValidator(logger.Named("validator")),
		Logger:         logger.Named("http"),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("voxserve starting",
		zap.String("version", version.Detailed()),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("model_dir", cfg.ModelDir),
		zap.String("upload_dir", cfg.UploadDir),
		zap.Any("strategies", st.orchestrator.Strategies()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	stats := st.pool.Stats()
	logger.Info("voxserve stopped",
		zap.Int64("engine_runs_completed", stats.Completed),
		zap.Int64("engine_runs_failed", stats.Failed),
	)
	return nil
}
