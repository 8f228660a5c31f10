package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/fmueller/voxserve/internal/locator"
	"github.com/stretchr/testify/require"
)

const parseArgs = `argc=$#; args="$*"
input=""; of=""
while [ $# -gt 0 ]; do
  case "$1" in
    -f) input="$2"; shift ;;
    -of) of="$2"; shift ;;
  esac
  shift
done
`

type staticResources struct {
	binary string
	model  string
}

func (r staticResources) ResolveBinary(context.Context) locator.ResourceLocation {
	return locator.ResourceLocation{Kind: locator.KindBinary, Name: "whisper-cli", Resolved: r.binary, Exists: r.binary != ""}
}

func (r staticResources) ResolveModel(context.Context) locator.ResourceLocation {
	return locator.ResourceLocation{Kind: locator.KindModel, Name: "ggml-tiny.bin", Resolved: r.model, Exists: r.model != ""}
}

// fakeEngine writes a shell script standing in for whisper-cli.
func fakeEngine(t *testing.T, path, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell engine stubs need a POSIX shell")
	}
	if path == "" {
		path = filepath.Join(t.TempDir(), "whisper-cli")
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+parseArgs+body+"\n"), 0o755))
	return path
}

// fixture returns resources backed by a fake engine plus an audio file.
func fixture(t *testing.T, body string) (staticResources, string) {
	t.Helper()

	dir := t.TempDir()
	model := filepath.Join(dir, "ggml-tiny.bin")
	require.NoError(t, os.WriteFile(model, []byte("weights"), 0o644))

	audioPath := filepath.Join(dir, "1700000000000-clip.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF....WAVE"), 0o644))

	return staticResources{binary: fakeEngine(t, "", body), model: model}, audioPath
}
