package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/fmueller/voxserve/internal/config"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// testConfig mirrors the defaults with every directory under t.TempDir().
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	return &config.Config{
		HTTPAddr:       "127.0.0.1:0",
		UploadDir:      filepath.Join(root, "uploads"),
		KeepUploads:    true,
		ModelDir:       filepath.Join(root, "models"),
		Model:          "tiny",
		ResourcesDir:   filepath.Join(root, "resources"),
		AppDir:         filepath.Join(root, "app"),
		HostExecutable: filepath.Join(root, "bin", "voxserve"),
		Language:       "auto",
		AutoDownload:   false,
		AttemptTimeout: 10 * time.Second,
		SimpleWorkers:  1,
		SimpleQueue:    1,
		LogLevel:       "info",
	}
}

// installEngine writes a shell script standing in for whisper-cli and points
// the config at it.
func installEngine(t *testing.T, cfg *config.Config, body string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell engine stubs need a POSIX shell")
	}

	path := filepath.Join(cfg.ResourcesDir, "engine", "whisper-cli")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	cfg.WhisperPath = path
}

func installModel(t *testing.T, cfg *config.Config) string {
	t.Helper()

	path := filepath.Join(cfg.ModelDir, "ggml-tiny.bin")
	require.NoError(t, os.MkdirAll(cfg.ModelDir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

// writeWAV encodes 16-bit mono PCM at 16 kHz.
func writeWAV(t *testing.T, path string, samples []int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}
