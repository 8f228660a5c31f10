package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fmueller/voxserve/internal/download"
	"github.com/fmueller/voxserve/internal/locator"
	"github.com/fmueller/voxserve/internal/platform"
	"github.com/fmueller/voxserve/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// HostExecutableEnv carries the path of the running voxserve binary to the
// managed strategy.
const HostExecutableEnv = "VOXSERVE_HOST_EXECUTABLE"

type ManagedOptions struct {
	HostExecutable string
	Model          string
	ModelDir       string
	AutoDownload   bool
	Downloader     *download.Downloader
	Logger         *zap.Logger
}

// Managed resolves its own engine and model independently of the locator: the
// engine from the release layout around the host executable or PATH, the
// model from the registry, downloading it when allowed. It asks for JSON
// output and returns a whisper.Transcript.
type Managed struct {
	opts        ManagedOptions
	logger      *zap.Logger
	downloads   singleflight.Group
	lookupModel func(string) (whisper.Model, error)
	lookPath    func(string) (string, error)
}

func NewManaged(opts ManagedOptions) *Managed {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Downloader == nil {
		opts.Downloader = download.New(logger)
	}
	return &Managed{
		opts:        opts,
		logger:      logger,
		lookupModel: whisper.LookupModel,
		lookPath:    exec.LookPath,
	}
}

func (m *Managed) Name() Name { return NameManaged }

func (m *Managed) Run(ctx context.Context, req Request) (any, error) {
	binary, err := m.engine()
	if err != nil {
		return nil, &StrategyError{Strategy: NameManaged, Message: err.Error(), Err: err}
	}

	model, err := m.model(ctx, req)
	if err != nil {
		return nil, &StrategyError{Strategy: NameManaged, Message: err.Error(), Err: err}
	}

	// The engine runs inside the work directory, so every path it is handed
	// must be absolute.
	audioPath, err := filepath.Abs(req.AudioPath)
	if err != nil {
		return nil, &StrategyError{Strategy: NameManaged, Message: "resolve audio path", Err: err}
	}

	workDir, err := os.MkdirTemp("", "voxserve-managed-*")
	if err != nil {
		return nil, &StrategyError{Strategy: NameManaged, Message: "create work directory", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			m.logger.Warn("could not remove work directory", zap.String("path", workDir), zap.Error(err))
		}
	}()

	outBase := filepath.Join(workDir, "transcript")
	args := []string{"-m", model, "-f", audioPath, "-l", req.language(), "-oj", "-of", outBase}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log := CommandLog{Command: binary, Args: args}
	m.logger.Debug("running engine", zap.String("strategy", string(NameManaged)), zap.String("command", log.CommandLine()))

	runErr := cmd.Run()
	log.Stdout = stdout.String()
	log.Stderr = stderr.String()
	log.ExitCode = exitCode(runErr)
	if runErr != nil {
		return nil, commandFailure(NameManaged, log, runErr)
	}

	data, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, &StrategyError{Strategy: NameManaged, Message: "read engine json output", CommandLog: &log, Err: err}
	}

	transcript, err := whisper.ParseJSONOutput(data)
	if err != nil {
		return nil, &StrategyError{Strategy: NameManaged, Message: err.Error(), CommandLog: &log, Err: err}
	}
	if transcript.Text == "" {
		return nil, &StrategyError{Strategy: NameManaged, Message: ErrNoOutput.Error(), CommandLog: &log, Err: ErrNoOutput}
	}

	return transcript, nil
}

func (m *Managed) engine() (string, error) {
	override := m.opts.HostExecutable
	if override == "" {
		override = os.Getenv(HostExecutableEnv)
	}

	if host, err := platform.ResolveHostExecutable(override); err == nil {
		if path, ok := whisper.FirstExecutable(whisper.BundledCandidates(host)); ok {
			return path, nil
		}
	} else {
		m.logger.Debug("host executable unknown", zap.Error(err))
	}

	path, err := m.lookPath(whisper.BinaryName())
	if err != nil {
		return "", fmt.Errorf("%w: %s not bundled and not on PATH", locator.ErrResourceMissing, whisper.BinaryName())
	}
	return path, nil
}

func (m *Managed) model(ctx context.Context, req Request) (string, error) {
	modelDir := req.ModelDir
	if modelDir == "" {
		modelDir = m.opts.ModelDir
	}
	if strings.TrimSpace(modelDir) == "" {
		return "", errors.New("model directory is not configured")
	}
	modelDir, err := filepath.Abs(modelDir)
	if err != nil {
		return "", fmt.Errorf("resolve model directory: %w", err)
	}

	model, err := m.lookupModel(m.opts.Model)
	if err != nil {
		return "", err
	}

	path := filepath.Join(modelDir, model.FileName)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, nil
	}

	if !m.opts.AutoDownload {
		return "", fmt.Errorf("%w: model %s not present in %s and auto-download is disabled", locator.ErrResourceMissing, model.FileName, modelDir)
	}

	_, err, _ = m.downloads.Do(path, func() (any, error) {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return nil, nil
		}
		m.logger.Info("downloading model", zap.String("model", model.Name), zap.String("destination", path))
		return nil, m.opts.Downloader.Fetch(ctx, download.Request{
			URL:            model.URL,
			Destination:    path,
			ExpectedSHA256: model.SHA256,
		})
	})
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", model.Name, err)
	}
	return path, nil
}
