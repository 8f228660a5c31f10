package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersCoreSubcommands(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	require.Subset(t, names, []string{"serve", "transcribe", "setup", "doctor", "version"})

	for _, flag := range []string{"addr", "upload-dir", "model", "model-dir", "resources-dir", "language", "env-file", "log-level", "verbose", "json"} {
		require.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
	require.Equal(t, "", cmd.Flags().Lookup("addr").DefValue)
	require.Equal(t, "false", cmd.Flags().Lookup("no-progress").DefValue)
}

func TestRootHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"--help"})
	require.NoError(t, err)
	for _, sub := range []string{"serve", "transcribe", "setup", "doctor", "version"} {
		require.Contains(t, stdout, sub)
	}
}

func TestSubcommandHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{name: "serve", args: []string{"serve", "--help"}, contains: "Run the HTTP transcription service"},
		{name: "transcribe", args: []string{"transcribe", "--help"}, contains: "Transcribe a local audio file"},
		{name: "setup", args: []string{"setup", "--help"}, contains: "Download and verify speech model assets"},
		{name: "doctor", args: []string{"doctor", "--help"}, contains: "Check that the engine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stdout, _, err := runCommand(t, tt.args)
			require.NoError(t, err)
			require.Contains(t, stdout, tt.contains)
		})
	}
}

func TestServeCommandRunsServer(t *testing.T) {
	t.Parallel()

	called := 0
	app := &appState{
		cfg: testConfig(t),
		serveFn: func(ctx context.Context) error {
			require.NotNil(t, ctx)
			called++
			return nil
		},
	}

	cmd := newServeCmd(app)
	cmd.SetArgs([]string{"--addr", "127.0.0.1:9999"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, 1, called)
	require.Equal(t, "127.0.0.1:9999", app.overrides.HTTPAddr)
}

func TestServeCommandPropagatesServerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("listen tcp: address already in use")
	app := &appState{serveFn: func(context.Context) error { return boom }}

	cmd := newServeCmd(app)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(nil)
	require.ErrorIs(t, cmd.Execute(), boom)
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"version"})
	require.NoError(t, err)
	require.Regexp(t, `^voxserve v\S+`, stdout)
}

func TestCLIErrorCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{name: "unknown command", args: []string{"badcmd"}, errContains: "unknown command"},
		{name: "unknown root flag", args: []string{"--badflag"}, errContains: "unknown flag"},
		{name: "unknown subcommand flag", args: []string{"transcribe", "--bogus", "f.wav"}, errContains: "unknown flag"},
		{name: "transcribe missing arg", args: []string{"transcribe"}, errContains: "accepts 1 arg(s)"},
		{name: "transcribe too many args", args: []string{"transcribe", "a.wav", "b.wav"}, errContains: "accepts 1 arg(s)"},
		{name: "serve takes no args", args: []string{"serve", "extra"}, errContains: "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := runCommand(t, tt.args)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestExplicitEnvFileMustExist(t *testing.T) {
	t.Parallel()

	_, _, err := runCommand(t, []string{"doctor", "--env-file", "/no/such/voxserve.env", "--model-dir", t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "load config")
}

func TestServeStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	installEngine(t, cfg, `echo "served"`)
	installModel(t, cfg)
	app := &appState{cfg: cfg}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(shutdownTimeout + 5*time.Second):
		t.Fatal("server did not stop")
	}

	_, err := os.Stat(cfg.UploadDir)
	require.NoError(t, err, "upload directory created at startup")
}
