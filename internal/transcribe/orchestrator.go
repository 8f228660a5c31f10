package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmueller/voxserve/internal/whisper"
	"go.uber.org/zap"
)

const DefaultAttemptTimeout = 10 * time.Minute

type Options struct {
	Strategies     []Strategy
	AttemptTimeout time.Duration
	Logger         *zap.Logger
	// Observer is told about every finished attempt.
	Observer func(Attempt)
}

// Orchestrator tries its strategies in order, once each, and returns the
// first success.
type Orchestrator struct {
	strategies []Strategy
	timeout    time.Duration
	logger     *zap.Logger
	observe    func(Attempt)
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	observe := opts.Observer
	if observe == nil {
		observe = func(Attempt) {}
	}
	return &Orchestrator{
		strategies: opts.Strategies,
		timeout:    timeout,
		logger:     logger,
		observe:    observe,
	}
}

func (o *Orchestrator) Strategies() []Name {
	names := make([]Name, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Transcribe runs the chain. A cancelled ctx stops it between attempts and
// is returned as is. When every strategy fails the error is *ExhaustedError.
func (o *Orchestrator) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if len(o.strategies) == 0 {
		return nil, ErrNoStrategy
	}

	attempts := make([]Attempt, 0, len(o.strategies))
	for _, strategy := range o.strategies {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("transcription cancelled: %w", err)
		}

		attempt := o.attempt(ctx, strategy, req)
		attempts = append(attempts, attempt)
		o.observe(attempt)

		if attempt.Status == StatusSuccess {
			result := &Result{
				Text:     Normalize(attempt.Output),
				Strategy: attempt.Strategy,
				Attempts: attempts,
			}
			if transcript, ok := attempt.Output.(whisper.Transcript); ok {
				result.Segments = transcript.Segments
			}
			o.logger.Info("transcription succeeded",
				zap.String("strategy", string(attempt.Strategy)),
				zap.Duration("elapsed", attempt.Elapsed),
				zap.Int("attempts", len(attempts)),
			)
			return result, nil
		}

		o.logFailure(attempt)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("transcription cancelled: %w", errors.Join(err, &ExhaustedError{Attempts: attempts}))
		}
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

func (o *Orchestrator) attempt(ctx context.Context, strategy Strategy, req Request) Attempt {
	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	output, err := strategy.Run(attemptCtx, req)
	attempt := Attempt{
		Strategy: strategy.Name(),
		Elapsed:  time.Since(start),
	}

	if err == nil {
		attempt.Status = StatusSuccess
		attempt.Output = output
		return attempt
	}

	failure := asStrategyError(strategy.Name(), err)
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		failure = &StrategyError{
			Strategy:   failure.Strategy,
			Message:    fmt.Sprintf("timed out after %s: %s", o.timeout, failure.Message),
			CommandLog: failure.CommandLog,
			Err:        errors.Join(context.DeadlineExceeded, failure.Err),
		}
	}

	attempt.Status = StatusFailure
	attempt.Err = failure
	return attempt
}

func (o *Orchestrator) logFailure(attempt Attempt) {
	fields := []zap.Field{
		zap.String("strategy", string(attempt.Strategy)),
		zap.Duration("elapsed", attempt.Elapsed),
		zap.Error(attempt.Err),
	}
	if log := attempt.Err.CommandLog; log != nil {
		fields = append(fields,
			zap.String("command", log.CommandLine()),
			zap.Int("exit_code", log.ExitCode),
			zap.String("stdout", log.Stdout),
			zap.String("stderr", log.Stderr),
		)
	}
	o.logger.Warn("transcription strategy failed", fields...)
}
