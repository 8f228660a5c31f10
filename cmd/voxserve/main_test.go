package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fmueller/voxserve/internal/cli"
	"github.com/stretchr/testify/require"
)

func TestIsUsageError(t *testing.T) {
	t.Parallel()

	require.True(t, isUsageError(errors.New("unknown command \"bad\" for \"voxserve\"")))
	require.True(t, isUsageError(errors.New("unknown flag: --oops")))
	require.True(t, isUsageError(errors.New("accepts 1 arg(s), received 0")))
	require.True(t, isUsageError(errors.New("flag needs an argument: --format")))
	require.False(t, isUsageError(errors.New("all 3 transcription strategies failed; last error: exit status 1")))
	require.False(t, isUsageError(errors.New("one or more checks failed")))
	require.False(t, isUsageError(nil))
}

func TestHelpHintTarget(t *testing.T) {
	t.Parallel()

	root := cli.NewRootCmd()
	require.Equal(t, "voxserve", helpHintTarget(root, []string{"--badflag"}))
	require.Equal(t, "voxserve", helpHintTarget(root, []string{"badcmd"}))
	require.Equal(t, "voxserve transcribe", helpHintTarget(root, []string{"transcribe"}))
	require.Equal(t, "voxserve transcribe", helpHintTarget(root, []string{"transcribe", "--format", "json"}))
	require.Equal(t, "voxserve serve", helpHintTarget(root, []string{"serve", "--addr", ":8080"}))
	require.Equal(t, "voxserve", helpHintTarget(nil, nil))
}

func TestRunExitCodes(t *testing.T) {
	t.Parallel()

	stderr := new(bytes.Buffer)
	require.Equal(t, exitUsage, run(cli.NewRootCmd(), []string{"transcribe"}, stderr))
	require.Contains(t, stderr.String(), "Run 'voxserve transcribe --help' for usage.")

	stderr.Reset()
	root := cli.NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	require.Equal(t, exitOK, run(root, []string{"--help"}, stderr))
	require.Empty(t, stderr.String())
}
