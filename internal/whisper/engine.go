// Package whisper knows the whisper.cpp command-line engine: its binary name,
// where release layouts place it, how it reports failure, and the model
// registry it consumes.
package whisper

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fmueller/voxserve/internal/platform"
)

// OverrideEnv names the variable that pins the engine binary regardless of
// any other candidate.
const OverrideEnv = "VOXSERVE_WHISPER_PATH"

// NoOutputPlaceholder is reported when the engine exits cleanly without
// producing any text.
const NoOutputPlaceholder = "[no transcription output]"

var (
	ErrSharedLibraryMissing = errors.New("whisper engine is missing required shared libraries")
	ErrIllegalInstruction   = errors.New("whisper engine crashed with an illegal CPU instruction")
)

func BinaryName() string {
	return binaryNameFor(runtime.GOOS)
}

func binaryNameFor(goos string) string {
	if goos == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

// BundledCandidates lists the release layouts relative to the directory of
// hostExecutable, most specific first.
func BundledCandidates(hostExecutable string) []string {
	if strings.TrimSpace(hostExecutable) == "" {
		return nil
	}

	binDir := filepath.Dir(hostExecutable)
	name := BinaryName()

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", name),
		filepath.Join(binDir, "libexec", "whisper", name),
		filepath.Join(binDir, "packaging", "whisper", platform.CurrentRuntime().Target(), name),
		filepath.Join(binDir, name),
	}
}

// FirstExecutable returns the first candidate that is a regular executable file.
func FirstExecutable(candidates []string) (string, bool) {
	for _, candidate := range candidates {
		if EnsureExecutable(candidate) == nil {
			return candidate, true
		}
	}
	return "", false
}

func EnsureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

// Diagnose maps engine stderr and the exec error to a known failure category.
// It returns nil when the failure is not recognised.
func Diagnose(stderr string, runErr error) error {
	text := strings.ToLower(strings.TrimSpace(stderr))

	for _, pattern := range []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	} {
		if text != "" && strings.Contains(text, pattern) {
			return fmt.Errorf("%w; rebuild whisper-cli with BUILD_SHARED_LIBS=OFF or set %s", ErrSharedLibraryMissing, OverrideEnv)
		}
	}

	if strings.Contains(text, "illegal instruction") || (runErr != nil && strings.Contains(strings.ToLower(runErr.Error()), "illegal instruction")) {
		return fmt.Errorf("%w; set %s to a whisper-cli binary built for this CPU", ErrIllegalInstruction, OverrideEnv)
	}

	return nil
}

// Segment is one timed span of a whisper JSON transcript. Offsets are in
// milliseconds.
type Segment struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// Transcript is the structured form of an engine run with -oj output.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

type jsonOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// ParseJSONOutput decodes the file whisper-cli writes with -oj.
func ParseJSONOutput(data []byte) (Transcript, error) {
	var out jsonOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Transcript{}, fmt.Errorf("decode whisper json output: %w", err)
	}

	transcript := Transcript{Language: out.Result.Language}
	parts := make([]string, 0, len(out.Transcription))
	for _, item := range out.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		transcript.Segments = append(transcript.Segments, Segment{
			Start: item.Offsets.From,
			End:   item.Offsets.To,
			Text:  text,
		})
	}
	transcript.Text = strings.Join(parts, " ")

	return transcript, nil
}
