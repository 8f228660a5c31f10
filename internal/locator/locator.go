// Package locator finds the whisper engine binary and model file across the
// deployment layouts voxserve ships in, and materializes the model into the
// canonical models directory the first time it is found elsewhere.
package locator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fmueller/voxserve/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Kind string

const (
	KindBinary Kind = "binary"
	KindModel  Kind = "model"
)

// ErrResourceMissing reports that no candidate location held the resource.
var ErrResourceMissing = errors.New("resource missing")

type Candidate struct {
	Label string
	Path  string
}

type ResourceLocation struct {
	Kind       Kind
	Name       string
	Candidates []Candidate
	Resolved   string
	Exists     bool
}

// Err returns nil when the resource was found and a wrapped
// ErrResourceMissing otherwise.
func (l ResourceLocation) Err() error {
	if l.Exists {
		return nil
	}
	return fmt.Errorf("%w: %s %s not found in %d locations", ErrResourceMissing, l.Kind, l.Name, len(l.Candidates))
}

type ResourceStatus struct {
	Kind       Kind     `json:"kind"`
	Name       string   `json:"name"`
	Found      bool     `json:"found"`
	Path       string   `json:"path,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

type Options struct {
	// ModelDir is the canonical models directory.
	ModelDir string
	// Model is a registry name or model file name.
	Model string

	ResourcesDir   string
	AppDir         string
	HostExecutable string

	BinaryOverride   string
	BinaryCandidates []string
	ModelCandidates  []string

	Logger *zap.Logger
}

type Locator struct {
	logger        *zap.Logger
	modelDir      string
	modelFile     string
	binaries      []Candidate
	models        []Candidate
	copyFile      func(src, dst string) error
	materializing singleflight.Group

	mu    sync.RWMutex
	model *ResourceLocation
}

func New(opts Options) (*Locator, error) {
	if strings.TrimSpace(opts.ModelDir) == "" {
		return nil, errors.New("model directory is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	modelFile := filepath.Base(strings.TrimSpace(opts.Model))
	if model, err := whisper.LookupModel(opts.Model); err == nil {
		modelFile = model.FileName
	} else if !strings.HasSuffix(strings.ToLower(modelFile), ".bin") {
		return nil, err
	}

	return &Locator{
		logger:    logger,
		modelDir:  absPath(opts.ModelDir),
		modelFile: modelFile,
		binaries:  BinaryCandidates(opts),
		models:    ModelCandidates(opts, modelFile),
		copyFile:  copyFileAtomic,
	}, nil
}

// BinaryCandidates lists engine locations, most specific first.
func BinaryCandidates(opts Options) []Candidate {
	name := whisper.BinaryName()
	var out []Candidate

	if override := strings.TrimSpace(opts.BinaryOverride); override != "" {
		out = append(out, Candidate{Label: whisper.OverrideEnv, Path: absPath(override)})
	}
	for _, path := range opts.BinaryCandidates {
		out = appendCandidate(out, "configured", path)
	}
	if opts.ResourcesDir != "" {
		out = appendCandidate(out, "resources", filepath.Join(opts.ResourcesDir, "whisper", name))
		out = appendCandidate(out, "resources", filepath.Join(opts.ResourcesDir, name))
	}
	for _, path := range whisper.BundledCandidates(opts.HostExecutable) {
		out = appendCandidate(out, "bundled", path)
	}
	if opts.AppDir != "" {
		out = appendCandidate(out, "application", filepath.Join(opts.AppDir, "bin", name))
		out = appendCandidate(out, "application", filepath.Join(opts.AppDir, name))
		out = appendCandidate(out, "source", filepath.Join(opts.AppDir, "whisper.cpp", "build", "bin", name))
		out = appendCandidate(out, "source", filepath.Join(opts.AppDir, "whisper.cpp", "build", "bin", "Release", name))
	}

	return out
}

// ModelCandidates lists places a model file may have been shipped to. The
// canonical models directory is checked separately before these.
func ModelCandidates(opts Options, fileName string) []Candidate {
	var out []Candidate

	for _, path := range opts.ModelCandidates {
		out = appendCandidate(out, "configured", path)
	}
	if opts.ResourcesDir != "" {
		out = appendCandidate(out, "resources", filepath.Join(opts.ResourcesDir, "models", fileName))
	}
	if opts.AppDir != "" {
		out = appendCandidate(out, "application", filepath.Join(opts.AppDir, "models", fileName))
		out = appendCandidate(out, "source", filepath.Join(opts.AppDir, "whisper.cpp", "models", fileName))
	}

	return out
}

func appendCandidate(list []Candidate, label, path string) []Candidate {
	path = strings.TrimSpace(path)
	if path == "" {
		return list
	}
	return append(list, Candidate{Label: label, Path: absPath(path)})
}

// absPath anchors path at the working directory so exec never falls back to a
// PATH lookup for a bare engine name.
func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// ModelPath is the canonical destination of the model file.
func (l *Locator) ModelPath() string {
	return filepath.Join(l.modelDir, l.modelFile)
}

// ResolveBinary scans the engine candidates in order. Nothing is cached
// because a binary is only located, never copied.
func (l *Locator) ResolveBinary(ctx context.Context) ResourceLocation {
	loc := ResourceLocation{
		Kind:       KindBinary,
		Name:       whisper.BinaryName(),
		Candidates: l.binaries,
	}

	if path, ok := firstExisting(ctx, l.binaries); ok {
		loc.Resolved = path
		loc.Exists = true
	}
	return loc
}

// ResolveModel returns the canonical model path when the file is already
// there. Otherwise it scans the candidates and copies the first hit into the
// models directory. Concurrent callers share one scan and one copy. A model
// that cannot be copied is used in place and remembered until the canonical
// file appears.
func (l *Locator) ResolveModel(ctx context.Context) ResourceLocation {
	canonical := l.ModelPath()
	cached, ok := l.cachedModel()
	if isFile(canonical) {
		if ok && cached.Resolved == canonical {
			return cached
		}
		return l.storeModel(canonical)
	}
	if ok {
		return cached
	}

	// The scan is shared, so one caller giving up must not fail the others.
	scanCtx := context.WithoutCancel(ctx)
	v, _, _ := l.materializing.Do(canonical, func() (any, error) {
		if isFile(canonical) {
			return l.storeModel(canonical), nil
		}

		source, ok := firstExisting(scanCtx, l.models)
		if !ok {
			return l.modelLocation(""), nil
		}

		if err := l.copyFile(source, canonical); err != nil {
			l.logger.Warn("could not copy model into models directory; using it in place",
				zap.String("source", source),
				zap.String("destination", canonical),
				zap.Error(err),
			)
			return l.storeModel(source), nil
		}

		l.logger.Info("model copied into models directory", zap.String("source", source), zap.String("destination", canonical))
		return l.storeModel(canonical), nil
	})

	return v.(ResourceLocation)
}

// Health reports every tracked resource. It never fails.
func (l *Locator) Health(ctx context.Context) []ResourceStatus {
	locations := []ResourceLocation{l.ResolveBinary(ctx), l.ResolveModel(ctx)}
	statuses := make([]ResourceStatus, 0, len(locations))

	for _, loc := range locations {
		status := ResourceStatus{
			Kind:  loc.Kind,
			Name:  loc.Name,
			Found: loc.Exists,
			Path:  loc.Resolved,
		}
		if !loc.Exists {
			for _, c := range loc.Candidates {
				status.Candidates = append(status.Candidates, c.Path)
			}
		}
		statuses = append(statuses, status)
	}

	return statuses
}

// Warm resolves everything once at startup and logs what is missing.
func (l *Locator) Warm(ctx context.Context) []ResourceStatus {
	statuses := l.Health(ctx)
	for _, status := range statuses {
		if status.Found {
			l.logger.Info("resource found", zap.String("kind", string(status.Kind)), zap.String("path", status.Path))
			continue
		}
		l.logger.Warn("resource missing; transcription will degrade",
			zap.String("kind", string(status.Kind)),
			zap.String("name", status.Name),
			zap.Strings("searched", status.Candidates),
		)
	}
	return statuses
}

func (l *Locator) cachedModel() (ResourceLocation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.model == nil || !isFile(l.model.Resolved) {
		return ResourceLocation{}, false
	}
	return *l.model, true
}

func (l *Locator) storeModel(path string) ResourceLocation {
	loc := l.modelLocation(path)

	l.mu.Lock()
	l.model = &loc
	l.mu.Unlock()

	return loc
}

func (l *Locator) modelLocation(path string) ResourceLocation {
	return ResourceLocation{
		Kind:       KindModel,
		Name:       l.modelFile,
		Candidates: l.models,
		Resolved:   path,
		Exists:     path != "",
	}
}

func firstExisting(ctx context.Context, candidates []Candidate) (string, bool) {
	for _, c := range candidates {
		if ctx.Err() != nil {
			return "", false
		}
		if isFile(c.Path) {
			return c.Path, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFileAtomic(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source model: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("copy model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move model into place: %w", err)
	}
	return nil
}
