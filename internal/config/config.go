// Package config loads voxserve settings from the environment, an optional
// .env file, and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fmueller/voxserve/internal/platform"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string        `env:"VOXSERVE_ADDR" envDefault:":3001"`
	ReadTimeout    time.Duration `env:"VOXSERVE_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout   time.Duration `env:"VOXSERVE_WRITE_TIMEOUT" envDefault:"35m"`
	IdleTimeout    time.Duration `env:"VOXSERVE_IDLE_TIMEOUT" envDefault:"120s"`
	MaxUploadBytes int64         `env:"VOXSERVE_MAX_UPLOAD_BYTES" envDefault:"104857600"`
	CORSOrigins    []string      `env:"VOXSERVE_CORS_ORIGINS" envDefault:"*" envSeparator:","`

	UploadDir   string `env:"VOXSERVE_UPLOAD_DIR" envDefault:"./uploads"`
	KeepUploads bool   `env:"VOXSERVE_KEEP_UPLOADS" envDefault:"true"`

	// ModelDir defaults to the per-user data directory when empty.
	ModelDir         string   `env:"VOXSERVE_MODEL_DIR"`
	Model            string   `env:"VOXSERVE_MODEL" envDefault:"base"`
	ResourcesDir     string   `env:"VOXSERVE_RESOURCES_DIR" envDefault:"./resources"`
	AppDir           string   `env:"VOXSERVE_APP_DIR" envDefault:"."`
	HostExecutable   string   `env:"VOXSERVE_HOST_EXECUTABLE"`
	WhisperPath      string   `env:"VOXSERVE_WHISPER_PATH"`
	BinaryCandidates []string `env:"VOXSERVE_BINARY_CANDIDATES" envSeparator:","`
	ModelCandidates  []string `env:"VOXSERVE_MODEL_CANDIDATES" envSeparator:","`

	Language       string        `env:"VOXSERVE_LANGUAGE" envDefault:"auto"`
	AutoDownload   bool          `env:"VOXSERVE_AUTO_DOWNLOAD" envDefault:"true"`
	AttemptTimeout time.Duration `env:"VOXSERVE_ATTEMPT_TIMEOUT" envDefault:"10m"`
	SimpleWorkers  int           `env:"VOXSERVE_SIMPLE_WORKERS" envDefault:"2"`
	SimpleQueue    int           `env:"VOXSERVE_SIMPLE_QUEUE" envDefault:"8"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

// Overrides holds CLI flag values that take priority over everything else.
type Overrides struct {
	EnvFile      string
	HTTPAddr     string
	LogLevel     string
	UploadDir    string
	ModelDir     string
	Model        string
	ResourcesDir string
	Language     string
}

// Load resolves configuration with priority: CLI flags > environment
// variables > .env file > defaults.
func Load(overrides Overrides) (*Config, error) {
	return load(overrides, os.Environ())
}

func load(overrides Overrides, environ []string) (*Config, error) {
	vars, err := environment(overrides.EnvFile, environ)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	apply(&cfg.HTTPAddr, overrides.HTTPAddr)
	apply(&cfg.LogLevel, overrides.LogLevel)
	apply(&cfg.UploadDir, overrides.UploadDir)
	apply(&cfg.ModelDir, overrides.ModelDir)
	apply(&cfg.Model, overrides.Model)
	apply(&cfg.ResourcesDir, overrides.ResourcesDir)
	apply(&cfg.Language, overrides.Language)

	modelDir, err := platform.ResolveModelDir(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("resolve model directory: %w", err)
	}
	cfg.ModelDir = modelDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("VOXSERVE_ADDR must not be empty"))
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		errs = append(errs, errors.New("VOXSERVE_UPLOAD_DIR must not be empty"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("VOXSERVE_MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	if c.AttemptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("VOXSERVE_ATTEMPT_TIMEOUT must be positive, got %s", c.AttemptTimeout))
	}
	if c.SimpleWorkers <= 0 {
		errs = append(errs, fmt.Errorf("VOXSERVE_SIMPLE_WORKERS must be positive, got %d", c.SimpleWorkers))
	}
	if c.SimpleQueue < 0 {
		errs = append(errs, fmt.Errorf("VOXSERVE_SIMPLE_QUEUE must not be negative, got %d", c.SimpleQueue))
	}
	return errors.Join(errs...)
}

// environment merges the .env file under the process environment. A missing
// default .env is fine; a missing explicitly named one is not.
func environment(envFile string, environ []string) (map[string]string, error) {
	vars := map[string]string{}

	path := envFile
	if path == "" {
		path = ".env"
	}
	fileVars, err := godotenv.Read(path)
	switch {
	case err == nil:
		for k, v := range fileVars {
			vars[k] = v
		}
	case envFile != "" || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}

	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars, nil
}

func apply(dst *string, override string) {
	if override != "" {
		*dst = override
	}
}
