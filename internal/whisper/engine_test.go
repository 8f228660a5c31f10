package whisper

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/fmueller/voxserve/internal/platform"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
}

func TestBundledCandidatesFindLibexecSibling(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	host := filepath.Join(root, "bin", "voxserve")
	writeExecutable(t, host)

	engine := filepath.Join(root, "libexec", "whisper", BinaryName())
	writeExecutable(t, engine)

	resolved, ok := FirstExecutable(BundledCandidates(host))
	require.True(t, ok)
	require.Equal(t, engine, resolved)
}

func TestBundledCandidatesFindPackagingLayout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	host := filepath.Join(root, "voxserve")
	writeExecutable(t, host)

	engine := filepath.Join(root, "packaging", "whisper", platform.CurrentRuntime().Target(), BinaryName())
	writeExecutable(t, engine)

	resolved, ok := FirstExecutable(BundledCandidates(host))
	require.True(t, ok)
	require.Equal(t, engine, resolved)
}

func TestBundledCandidatesEmptyHost(t *testing.T) {
	t.Parallel()

	require.Empty(t, BundledCandidates(""))
}

func TestFirstExecutableSkipsDirectoriesAndPlainFiles(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}

	root := t.TempDir()
	dir := filepath.Join(root, "dir")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	plain := filepath.Join(root, "plain")
	require.NoError(t, os.WriteFile(plain, nil, 0o644))

	_, ok := FirstExecutable([]string{dir, plain, filepath.Join(root, "missing")})
	require.False(t, ok)
}

func TestBinaryNameFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "whisper-cli.exe", binaryNameFor("windows"))
	require.Equal(t, "whisper-cli", binaryNameFor("linux"))
}

func TestDiagnose(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Diagnose("error while loading shared libraries: libwhisper.so.1: cannot open shared object file", nil), ErrSharedLibraryMissing)
	require.ErrorIs(t, Diagnose("dyld: Library not loaded: @rpath/libwhisper.dylib", nil), ErrSharedLibraryMissing)
	require.ErrorIs(t, Diagnose("", errors.New("signal: illegal instruction (core dumped)")), ErrIllegalInstruction)
	require.NoError(t, Diagnose("some other runtime error", errors.New("exit status 1")))
}

func TestParseJSONOutput(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"result": {"language": "en"},
		"transcription": [
			{"offsets": {"from": 0, "to": 1200}, "text": " Hello"},
			{"offsets": {"from": 1200, "to": 2000}, "text": "   "},
			{"offsets": {"from": 2000, "to": 3100}, "text": " world."}
		]
	}`)

	transcript, err := ParseJSONOutput(data)
	require.NoError(t, err)
	require.Equal(t, "Hello world.", transcript.Text)
	require.Equal(t, "en", transcript.Language)
	require.Equal(t, []Segment{{Start: 0, End: 1200, Text: "Hello"}, {Start: 2000, End: 3100, Text: "world."}}, transcript.Segments)
}

func TestParseJSONOutputInvalid(t *testing.T) {
	t.Parallel()

	_, err := ParseJSONOutput([]byte("not json"))
	require.Error(t, err)
}
