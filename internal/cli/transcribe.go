package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxserve/internal/audio"
	"github.com/fmueller/voxserve/internal/transcribe"
	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	formatText = "text"
	formatJSON = "json"
)

type transcriptOutput struct {
	Transcription string            `json:"transcription"`
	Strategy      string            `json:"strategy"`
	Segments      []whisper.Segment `json:"segments,omitempty"`
}

func newTranscribeCmd(app *appState) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a local audio file with the same fallback chain as the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != formatText && format != formatJSON {
				return fmt.Errorf("invalid --format %q; want text or json", format)
			}

			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeFile
			}

			result, err := transcribeFn(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if isBlankTranscript(result.Text) {
				app.log().Warn(noSpeechHint())
			}

			if format == formatJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(transcriptOutput{
					Transcription: result.Text,
					Strategy:      string(result.Strategy),
					Segments:      result.Segments,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Text)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindResourceFlags(cmd, app)
	cmd.Flags().StringVar(&format, "format", formatText, "Output format: text|json")
	return cmd
}

// transcribeFile runs the orchestrator against a file the caller owns. The
// file is inspected but never quarantined.
func (a *appState) transcribeFile(ctx context.Context, audioPath string) (*transcribe.Result, error) {
	audioPath = filepath.Clean(audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger := a.log()

	if strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		a.inspect(audioPath)
	}

	spin := startSpinner(a.progressEnabled(), "Transcribing")
	defer spin.Stop()

	st, err := newStack(cfg, logger, func(attempt transcribe.Attempt) {
		if attempt.Status == transcribe.StatusFailure {
			spin.Describe(fmt.Sprintf("Transcribing (%s failed)", attempt.Strategy))
		}
	})
	if err != nil {
		return nil, err
	}
	defer st.Close()

	logger.Info("transcribing...", zap.String("audio", audioPath), zap.String("language", cfg.Language))
	started := time.Now()

	result, err := st.orchestrator.Transcribe(ctx, transcribe.Request{
		AudioPath: audioPath,
		ModelDir:  cfg.ModelDir,
		Language:  transcribe.NormalizeLanguage(cfg.Language),
	})
	spin.Stop()
	if err != nil {
		logger.Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return nil, err
	}
	logger.Info("transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("strategy", string(result.Strategy)),
	)

	return result, nil
}

func (a *appState) inspect(audioPath string) {
	info, err := audio.Inspect(audioPath)
	if err != nil {
		a.log().Warn("could not inspect audio; continuing", zap.String("audio", audioPath), zap.Error(err))
		return
	}
	a.log().Debug("audio format",
		zap.Int("sample_rate", info.SampleRate),
		zap.Int("channels", info.Channels),
		zap.Int("bit_depth", info.BitDepth),
		zap.Duration("duration", info.Duration),
	)
	if info.Silent(audio.SilenceThresholdDBFS) {
		a.log().Warn("audio looks silent", zap.Float64("peak_dbfs", info.PeakdBFS))
	}
}
