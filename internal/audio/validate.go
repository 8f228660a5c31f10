// Package audio checks uploaded audio before it reaches the engine.
package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// QuarantineSuffix is appended to files whose header does not match their
// declared container.
const QuarantineSuffix = ".invalid"

// SilenceThresholdDBFS is the level under which an upload is logged as silent.
const SilenceThresholdDBFS = -50.0

var (
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
)

// Report is the outcome of validating one file. Path is where the file lives
// after validation and is what callers must hand to the engine.
type Report struct {
	Path        string
	Checked     bool
	Quarantined bool
	Reason      string
	Info        *Info
}

type Validator struct {
	Logger *zap.Logger
}

func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{Logger: logger}
}

// Validate checks path against the container its own extension declares.
func (v *Validator) Validate(path string) Report {
	return v.ValidateAs(path, filepath.Ext(path))
}

// ValidateAs header-checks files whose declared extension is .wav and renames
// the ones that do not carry a RIFF/WAVE header. Other extensions pass
// through untouched. Problems are logged and reflected in the report only.
func (v *Validator) ValidateAs(path, declaredExt string) Report {
	report := Report{Path: path}
	if !strings.EqualFold(strings.TrimSpace(declaredExt), ".wav") {
		return report
	}
	report.Checked = true

	reason, err := headerMismatch(path)
	if err != nil {
		v.log().Warn("wav header check skipped", zap.String("path", path), zap.Error(err))
		return report
	}

	if reason != "" {
		report.Reason = reason
		quarantined := path + QuarantineSuffix
		if err := os.Rename(path, quarantined); err != nil {
			v.log().Warn("could not quarantine invalid wav", zap.String("path", path), zap.String("reason", reason), zap.Error(err))
			return report
		}
		report.Path = quarantined
		report.Quarantined = true
		v.log().Warn("invalid wav quarantined", zap.String("path", quarantined), zap.String("reason", reason))
		return report
	}

	info, err := Inspect(path)
	if err != nil {
		v.log().Debug("wav format inspection failed", zap.String("path", path), zap.Error(err))
		return report
	}
	report.Info = &info

	fields := []zap.Field{
		zap.String("path", path),
		zap.Int("sample_rate", info.SampleRate),
		zap.Int("channels", info.Channels),
		zap.Int("bit_depth", info.BitDepth),
		zap.Duration("duration", info.Duration),
	}
	if info.Silent(SilenceThresholdDBFS) {
		v.log().Warn("uploaded wav appears silent", append(fields, zap.Float64("rms_dbfs", info.RMSdBFS))...)
		return report
	}
	v.log().Debug("wav validated", fields...)

	return report
}

// headerMismatch returns a non-empty reason when the first twelve bytes are
// not a RIFF/WAVE header. Short files are a mismatch, not an error.
func headerMismatch(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := make([]byte, 12)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read header: %w", err)
	}
	if n < len(header) {
		return fmt.Sprintf("file too short for a wav header (%d bytes)", n), nil
	}

	if !bytes.Equal(header[0:4], riffMagic) {
		return fmt.Sprintf("missing RIFF marker, found %q", header[0:4]), nil
	}
	if !bytes.Equal(header[8:12], waveMagic) {
		return fmt.Sprintf("missing WAVE marker, found %q", header[8:12]), nil
	}
	return "", nil
}

func (v *Validator) log() *zap.Logger {
	if v == nil || v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}
