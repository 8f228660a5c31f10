package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/voxserve/internal/download"
	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/stretchr/testify/require"
)

func TestSetupDownloadsMissingModel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	var got []download.Request
	app := &appState{
		cfg: cfg,
		fetchFn: func(_ context.Context, req download.Request) error {
			got = append(got, req)
			return os.WriteFile(req.Destination, []byte("weights"), 0o644)
		},
	}

	out := new(bytes.Buffer)
	cmd := newSetupCmd(app)
	cmd.SetOut(out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	model, err := whisper.LookupModel("tiny")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.URL, got[0].URL)
	require.Equal(t, model.SHA256, got[0].ExpectedSHA256)
	require.Equal(t, filepath.Join(cfg.ModelDir, model.FileName), got[0].Destination)
	require.Contains(t, out.String(), "Model tiny installed at")
}

func TestSetupReplacesCorruptModel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	installModel(t, cfg)

	calls := 0
	app := &appState{
		cfg: cfg,
		fetchFn: func(context.Context, download.Request) error {
			calls++
			return nil
		},
	}

	cmd := newSetupCmd(app)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	require.Equal(t, 1, calls, "checksum mismatch triggers a fresh download")
}

func TestSetupWrapsDownloadError(t *testing.T) {
	t.Parallel()

	app := &appState{
		cfg: testConfig(t),
		fetchFn: func(context.Context, download.Request) error {
			return download.ErrChecksumMismatch
		},
	}

	cmd := newSetupCmd(app)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs(nil)
	err := cmd.Execute()
	require.Error(t, err)
	require.True(t, errors.Is(err, download.ErrChecksumMismatch))
	require.Contains(t, err.Error(), "download model tiny")
}

func TestSetupRejectsUnknownModel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Model = "gigantic"
	app := &appState{cfg: cfg}

	cmd := newSetupCmd(app)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs(nil)
	require.ErrorIs(t, cmd.Execute(), whisper.ErrUnknownModel)
}
