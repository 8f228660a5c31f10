package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/voxserve/internal/download"
	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download and verify speech model assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
				return fmt.Errorf("create model directory %s: %w", cfg.ModelDir, err)
			}

			model, err := whisper.LocateModel(cfg.Model, cfg.ModelDir)
			if err != nil {
				return err
			}

			needsDownload := !model.Present
			if model.Present && model.SHA256 != "" {
				if err := download.VerifyFileChecksum(model.Path, model.SHA256); err != nil {
					app.log().Warn("model checksum verification failed; downloading fresh copy", zap.String("model", model.Name), zap.Error(err))
					needsDownload = true
				}
			}

			if !needsDownload {
				app.log().Info("model already present", zap.String("model", model.Name), zap.String("path", model.Path))
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", model.Name, model.Path)
				return nil
			}

			app.log().Info("downloading model", zap.String("model", model.Name), zap.String("path", model.Path))
			if err := app.fetch(cmd.Context(), download.Request{
				URL:            model.URL,
				Destination:    model.Path,
				ExpectedSHA256: model.SHA256,
			}); err != nil {
				return fmt.Errorf("download model %s: %w", model.Name, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", model.Name, model.Path)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)

	return cmd
}

func (a *appState) fetch(ctx context.Context, req download.Request) error {
	if a.fetchFn != nil {
		return a.fetchFn(ctx, req)
	}
	d := download.New(a.log().Named("download"))
	d.Progress = a.progressEnabled()
	return d.Fetch(ctx, req)
}
