package cli

import (
	"github.com/fmueller/voxserve/internal/config"
	"github.com/fmueller/voxserve/internal/download"
	"github.com/fmueller/voxserve/internal/locator"
	"github.com/fmueller/voxserve/internal/metrics"
	"github.com/fmueller/voxserve/internal/platform"
	"github.com/fmueller/voxserve/internal/transcribe"
	"go.uber.org/zap"
)

// stack is the transcription pipeline shared by the server and the local
// transcribe command.
type stack struct {
	locator      *locator.Locator
	pool         *transcribe.Pool
	orchestrator *transcribe.Orchestrator
	hostExe      string
}

// newStack builds the pipeline. observe, when set, sees every attempt after
// it has been recorded in the metrics.
func newStack(cfg *config.Config, logger *zap.Logger, observe func(transcribe.Attempt)) (*stack, error) {
	hostExe, err := platform.ResolveHostExecutable(cfg.HostExecutable)
	if err != nil {
		logger.Warn("host executable unknown; bundled engine lookup limited", zap.Error(err))
	}

	loc, err := newLocator(cfg, hostExe, logger)
	if err != nil {
		return nil, err
	}

	pool := transcribe.NewPool(cfg.SimpleWorkers, cfg.SimpleQueue, logger.Named("pool"))
	orchestrator := transcribe.New(transcribe.Options{
		Strategies: []transcribe.Strategy{
			transcribe.NewDirect(loc, logger.Named("direct")),
			transcribe.NewSimple(loc, pool, logger.Named("simple")),
			transcribe.NewManaged(transcribe.ManagedOptions{
				HostExecutable: hostExe,
				Model:          cfg.Model,
				ModelDir:       cfg.ModelDir,
				AutoDownload:   cfg.AutoDownload,
				Downloader:     download.New(logger.Named("download")),
				Logger:         logger.Named("managed"),
			}),
		},
		AttemptTimeout: cfg.AttemptTimeout,
		Logger:         logger.Named("orchestrator"),
		Observer: func(attempt transcribe.Attempt) {
			metrics.ObserveAttempt(string(attempt.Strategy), string(attempt.Status), attempt.Elapsed)
			if observe != nil {
				observe(attempt)
			}
		},
	})

	pool.Start()
	return &stack{
		locator:      loc,
		pool:         pool,
		orchestrator: orchestrator,
		hostExe:      hostExe,
	}, nil
}

func (s *stack) Close() {
	s.pool.Stop()
}

func newLocator(cfg *config.Config, hostExe string, logger *zap.Logger) (*locator.Locator, error) {
	return locator.New(locator.Options{
		ModelDir:         cfg.ModelDir,
		Model:            cfg.Model,
		ResourcesDir:     cfg.ResourcesDir,
		AppDir:           cfg.AppDir,
		HostExecutable:   hostExe,
		BinaryOverride:   cfg.WhisperPath,
		BinaryCandidates: cfg.BinaryCandidates,
		ModelCandidates:  cfg.ModelCandidates,
		Logger:           logger.Named("locator"),
	})
}
