package transcribe

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Simple runs the engine to completion and takes whatever it printed. The
// blocking call happens on the pool so it cannot stall unrelated requests.
type Simple struct {
	resources Resources
	pool      *Pool
	logger    *zap.Logger
}

func NewSimple(resources Resources, pool *Pool, logger *zap.Logger) *Simple {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simple{resources: resources, pool: pool, logger: logger}
}

func (s *Simple) Name() Name { return NameSimple }

func (s *Simple) Run(ctx context.Context, req Request) (any, error) {
	binary, model, err := resolveEngine(ctx, NameSimple, s.resources)
	if err != nil {
		return nil, err
	}

	args := []string{"-m", model, "-f", req.AudioPath}
	log := CommandLog{Command: binary, Args: args}

	var out []byte
	runErr := s.pool.Do(ctx, func(ctx context.Context) error {
		s.logger.Debug("running engine", zap.String("strategy", string(NameSimple)), zap.String("command", log.CommandLine()))
		var err error
		out, err = exec.CommandContext(ctx, binary, args...).Output()
		return err
	})

	if errors.Is(runErr, ErrPoolFull) || errors.Is(runErr, ErrPoolStopped) {
		return nil, &StrategyError{Strategy: NameSimple, Message: runErr.Error(), Err: runErr}
	}

	log.ExitCode = exitCode(runErr)
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			log.Stderr = string(exitErr.Stderr)
		}
		return nil, commandFailure(NameSimple, log, runErr)
	}

	log.Stdout = string(out)
	text := strings.TrimSpace(log.Stdout)
	if text == "" {
		return nil, &StrategyError{Strategy: NameSimple, Message: ErrNoOutput.Error(), CommandLog: &log, Err: ErrNoOutput}
	}
	return text, nil
}
