package transcribe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/fmueller/voxserve/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxEngineLine = 1 << 20

// Direct spawns the located engine and streams its output while it runs.
type Direct struct {
	resources Resources
	logger    *zap.Logger
}

func NewDirect(resources Resources, logger *zap.Logger) *Direct {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Direct{resources: resources, logger: logger}
}

func (d *Direct) Name() Name { return NameDirect }

func (d *Direct) Run(ctx context.Context, req Request) (any, error) {
	binary, model, err := resolveEngine(ctx, NameDirect, d.resources)
	if err != nil {
		return nil, err
	}

	args := []string{"-m", model, "-f", req.AudioPath, "-l", req.language(), "-otxt"}
	cmd := exec.CommandContext(ctx, binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &StrategyError{Strategy: NameDirect, Message: "attach stdout", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &StrategyError{Strategy: NameDirect, Message: "attach stderr", Err: err}
	}

	log := CommandLog{Command: binary, Args: args}
	d.logger.Debug("starting engine", zap.String("strategy", string(NameDirect)), zap.String("command", log.CommandLine()))

	if err := cmd.Start(); err != nil {
		log.ExitCode = -1
		return nil, commandFailure(NameDirect, log, fmt.Errorf("start engine: %w", err))
	}

	var outText, errText strings.Builder
	var streams errgroup.Group
	streams.Go(func() error { return d.stream(stdout, &outText, "stdout") })
	streams.Go(func() error { return d.stream(stderr, &errText, "stderr") })

	streamErr := streams.Wait()
	waitErr := cmd.Wait()

	log.Stdout = outText.String()
	log.Stderr = errText.String()
	log.ExitCode = exitCode(waitErr)

	if waitErr != nil {
		return nil, commandFailure(NameDirect, log, waitErr)
	}
	if streamErr != nil {
		d.logger.Warn("engine output stream broke", zap.Error(streamErr))
	}

	return directOutput(req.AudioPath, log.Stdout, d.logger), nil
}

// stream copies r line by line into sink, logging each line as it arrives.
func (d *Direct) stream(r io.Reader, sink *strings.Builder, name string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEngineLine)

	for scanner.Scan() {
		line := scanner.Text()
		sink.WriteString(line)
		sink.WriteByte('\n')
		d.logger.Debug("engine output", zap.String("stream", name), zap.String("line", line))
	}
	if err := scanner.Err(); err != nil {
		// Drain so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return fmt.Errorf("read engine %s: %w", name, err)
	}
	return nil
}

// directOutput prefers the <input>.txt file the engine writes with -otxt,
// then stdout, then the placeholder.
func directOutput(audioPath, stdout string, logger *zap.Logger) string {
	txtPath := audioPath + ".txt"
	if content, err := os.ReadFile(txtPath); err == nil {
		if err := os.Remove(txtPath); err != nil {
			logger.Debug("could not remove engine text output", zap.String("path", txtPath), zap.Error(err))
		}
		if text := strings.TrimSpace(string(content)); text != "" {
			return text
		}
	}

	if text := strings.TrimSpace(stdout); text != "" {
		return text
	}
	return whisper.NoOutputPlaceholder
}
