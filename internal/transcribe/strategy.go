// Package transcribe runs the whisper engine through an ordered chain of
// execution strategies and reduces whatever the winning strategy produced to
// plain text.
package transcribe

import (
	"context"
	"strings"
	"time"

	"github.com/fmueller/voxserve/internal/locator"
	"github.com/fmueller/voxserve/internal/whisper"
)

type Name string

const (
	NameDirect  Name = "direct"
	NameSimple  Name = "simple"
	NameManaged Name = "managed"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// DefaultLanguage lets the engine detect the spoken language.
const DefaultLanguage = "auto"

type Request struct {
	AudioPath string
	ModelDir  string
	Language  string
}

func (r Request) language() string {
	return NormalizeLanguage(r.Language)
}

// NormalizeLanguage trims and lowercases a language code. Blank means
// DefaultLanguage.
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return DefaultLanguage
	}
	return code
}

// Strategy is one way of getting a transcript out of the engine. Run returns
// a raw value that Normalize can turn into text.
type Strategy interface {
	Name() Name
	Run(ctx context.Context, req Request) (any, error)
}

// Resources is the part of the locator the strategies need.
type Resources interface {
	ResolveBinary(ctx context.Context) locator.ResourceLocation
	ResolveModel(ctx context.Context) locator.ResourceLocation
}

type Attempt struct {
	Strategy Name
	Status   Status
	Output   any
	Err      *StrategyError
	Elapsed  time.Duration
}

type Result struct {
	Text     string
	Strategy Name
	Segments []whisper.Segment
	Attempts []Attempt
}
