package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/voxserve/internal/config"
	"github.com/fmueller/voxserve/internal/download"
	"github.com/fmueller/voxserve/internal/logging"
	"github.com/fmueller/voxserve/internal/transcribe"
	"github.com/fmueller/voxserve/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	overrides  config.Overrides

	cfg    *config.Config
	logger *zap.Logger

	serveFn      func(ctx context.Context) error
	transcribeFn func(ctx context.Context, audioPath string) (*transcribe.Result, error)
	fetchFn      func(ctx context.Context, req download.Request) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{}
	app.serveFn = app.serve
	app.transcribeFn = app.transcribeFile

	cmd := &cobra.Command{
		Use:           "voxserve",
		Short:         "Serve whisper transcription over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			_, err := app.config()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindResourceFlags(cmd, app)
	bindServeFlags(cmd, app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newDoctorCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.Flags().StringVar(&app.overrides.LogLevel, "log-level", app.overrides.LogLevel, "Log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&app.overrides.EnvFile, "env-file", app.overrides.EnvFile, "Read settings from this .env file")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.overrides.Model, "model", app.overrides.Model, "Model name or model file name")
	cmd.Flags().StringVar(&app.overrides.ModelDir, "model-dir", app.overrides.ModelDir, "Canonical directory where models are stored")
}

func bindResourceFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.overrides.ResourcesDir, "resources-dir", app.overrides.ResourcesDir, "Directory holding packaged engine and model resources")
	cmd.Flags().StringVar(&app.overrides.Language, "language", app.overrides.Language, "Default language code (auto|en|de|...)")
}

func bindServeFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.overrides.HTTPAddr, "addr", app.overrides.HTTPAddr, "HTTP listen address")
	cmd.Flags().StringVar(&app.overrides.UploadDir, "upload-dir", app.overrides.UploadDir, "Directory where uploads are stored")
}

// config loads settings and the logger once per process.
func (a *appState) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	cfg, err := config.Load(a.overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Verbose: a.verbose,
		JSON:    a.jsonLogs || cfg.LogJSON,
		Level:   cfg.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return cfg, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
