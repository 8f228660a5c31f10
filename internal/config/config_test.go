package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnviron(t *testing.T) []string {
	t.Helper()
	return []string{"VOXSERVE_UPLOAD_DIR=" + filepath.Join(t.TempDir(), "uploads")}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(Overrides{}, []string{"VOXSERVE_MODEL_DIR=/var/lib/voxserve/models"})
	require.NoError(t, err)

	require.Equal(t, ":3001", cfg.HTTPAddr)
	require.Equal(t, "./uploads", cfg.UploadDir)
		require.Equal(t, "./resources", cfg.ResourcesDir)
	require.Equal(t, "base", cfg.Model)
	require.Equal(t, "auto", cfg.Language)
	require.Equal(t, 10*time.Minute, cfg.AttemptTimeout)
	require.Equal(t, 2, cfg.SimpleWorkers)
	require.Equal(t, 8, cfg.SimpleQueue)
	require.Equal(t, int64(100<<20), cfg.MaxUploadBytes)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
	require.True(t, cfg.KeepUploads)
	require.True(t, cfg.AutoDownload)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, filepath.Clean("/var/lib/voxserve/models"), cfg.ModelDir)
}

func TestLoadDefaultModelDirFollowsPlatform(t *testing.T) {
	t.Parallel()

	cfg, err := load(Overrides{}, baseEnviron(t))
	require.NoError(t, err)
	require.Equal(t, "models", filepath.Base(cfg.ModelDir))
	require.Contains(t, cfg.ModelDir, "voxserve")
}

func TestLoadEnvironmentLists(t *testing.T) {
	t.Parallel()

	cfg, err := load(Overrides{}, append(baseEnviron(t),
		"VOXSERVE_BINARY_CANDIDATES=/opt/a/whisper-cli,/opt/b/whisper-cli",
		"VOXSERVE_MODEL_CANDIDATES=/data/ggml-base.bin",
		"VOXSERVE_ATTEMPT_TIMEOUT=90s",
		"VOXSERVE_KEEP_UPLOADS=false",
	))
	require.NoError(t, err)

	require.Equal(t, []string{"/opt/a/whisper-cli", "/opt/b/whisper-cli"}, cfg.BinaryCandidates)
	require.Equal(t, []string{"/data/ggml-base.bin"}, cfg.ModelCandidates)
	require.Equal(t, 90*time.Second, cfg.AttemptTimeout)
	require.False(t, cfg.KeepUploads)
}

func TestLoadPriority(t *testing.T) {
	t.Parallel()

	envFile := filepath.Join(t.TempDir(), "voxserve.env")
	require.NoError(t, os.WriteFile(envFile, []byte("VOXSERVE_ADDR=:4000\nVOXSERVE_MODEL=tiny\nVOXSERVE_LANGUAGE=de\n"), 0o644))

	cfg, err := load(Overrides{EnvFile: envFile, Language: "fr"}, append(baseEnviron(t), "VOXSERVE_MODEL=small"))
	require.NoError(t, err)

	require.Equal(t, ":4000", cfg.HTTPAddr, ".env beats defaults")
	require.Equal(t, "small", cfg.Model, "environment beats .env")
	require.Equal(t, "fr", cfg.Language, "flags beat everything")
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	t.Parallel()

	_, err := load(Overrides{EnvFile: filepath.Join(t.TempDir(), "absent.env")}, baseEnviron(t))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	_, err := load(Overrides{}, append(baseEnviron(t), "VOXSERVE_SIMPLE_WORKERS=0", "VOXSERVE_ATTEMPT_TIMEOUT=0s"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "VOXSERVE_SIMPLE_WORKERS")
	require.Contains(t, err.Error(), "VOXSERVE_ATTEMPT_TIMEOUT")

	_, err = load(Overrides{}, append(baseEnviron(t), "VOXSERVE_SIMPLE_QUEUE=lots"))
	require.Error(t, err)
}
