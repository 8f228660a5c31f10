// Package download fetches model artifacts over HTTP with checksum
// verification and atomic placement into their destination.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fmueller/voxserve/internal/version"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var checksumPattern = regexp.MustCompile(`(?i)\b([a-f0-9]{64})\b`)

// ErrChecksumMismatch is returned when downloaded or on-disk content does not
// hash to the expected sha256.
var ErrChecksumMismatch = errors.New("checksum mismatch")

type Request struct {
	URL            string
	Destination    string
	ExpectedSHA256 string
	ChecksumURL    string
}

type Downloader struct {
	Client   *http.Client
	Logger   *zap.Logger
	Retries  int
	Progress bool
	// ProgressOut receives the progress bar; it is only drawn for terminals.
	ProgressOut *os.File

	backoff func(attempt int) time.Duration
}

func New(logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		Client:      &http.Client{Timeout: 10 * time.Minute},
		Logger:      logger,
		Retries:     3,
		ProgressOut: os.Stderr,
	}
}

// Fetch downloads req.URL into req.Destination. The body is written to a
// sibling ".part" file and renamed into place only after the checksum matched,
// so concurrent readers never observe a partial artifact.
func (d *Downloader) Fetch(ctx context.Context, req Request) error {
	if req.URL == "" {
		return errors.New("download URL is required")
	}
	if req.Destination == "" {
		return errors.New("destination path is required")
	}

	expected := strings.ToLower(strings.TrimSpace(req.ExpectedSHA256))
	if expected == "" && req.ChecksumURL != "" {
		resolved, err := ResolveExpectedChecksum(ctx, d.client(), req.ChecksumURL, filepath.Base(req.Destination))
		if err != nil {
			return fmt.Errorf("fetch checksum: %w", err)
		}
		expected = resolved
	}

	if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	retries := d.Retries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			d.log().Warn("retrying download", zap.Int("attempt", attempt), zap.Int("max", retries), zap.String("url", req.URL), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.wait(attempt)):
			}
		}

		lastErr = d.fetchOnce(ctx, req, expected)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
	}

	return lastErr
}

// ResolveExpectedChecksum reads a checksum listing and returns the sha256
// belonging to fileName, or the first checksum when no line names it.
func ResolveExpectedChecksum(ctx context.Context, client *http.Client, checksumURL, fileName string) (string, error) {
	if strings.TrimSpace(checksumURL) == "" {
		return "", errors.New("checksum URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, checksumURL, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return ParseChecksum(content, fileName)
}

func ParseChecksum(content []byte, fileName string) (string, error) {
	lines := strings.Split(string(content), "\n")

	if fileName != "" {
		for _, line := range lines {
			if !strings.Contains(line, fileName) {
				continue
			}
			if sum := checksumFromLine(line); sum != "" {
				return sum, nil
			}
		}
	}

	for _, line := range lines {
		if sum := checksumFromLine(line); sum != "" {
			return sum, nil
		}
	}

	return "", errors.New("sha256 checksum not found")
}

// VerifyFileChecksum hashes path and compares it with expectedSHA256. An empty
// expectation always passes.
func VerifyFileChecksum(path, expectedSHA256 string) error {
	expected := strings.ToLower(strings.TrimSpace(expectedSHA256))
	if expected == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}

	if actual := hex.EncodeToString(h.Sum(nil)); actual != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, actual)
	}
	return nil
}

func checksumFromLine(line string) string {
	match := checksumPattern.FindStringSubmatch(line)
	if len(match) < 2 {
		return ""
	}
	return strings.ToLower(match[1])
}

func (d *Downloader) fetchOnce(ctx context.Context, req Request, expected string) error {
	partPath := req.Destination + ".part"
	_ = os.Remove(partPath)

	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	placed := false
	defer func() {
		_ = out.Close()
		if !placed {
			_ = os.Remove(partPath)
		}
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := d.client().Do(httpReq)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	hash := sha256.New()
	writer := io.MultiWriter(out, hash)

	bar := d.progressBar(resp.ContentLength)
	if bar != nil {
		writer = io.MultiWriter(out, hash, bar)
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if actual := hex.EncodeToString(hash.Sum(nil)); expected != "" && actual != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, actual)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(partPath, req.Destination); err != nil {
		return fmt.Errorf("move temp file into destination: %w", err)
	}

	placed = true
	d.log().Info("download complete", zap.String("destination", req.Destination))
	return nil
}

func (d *Downloader) progressBar(contentLength int64) *progressbar.ProgressBar {
	if !d.Progress || contentLength <= 0 || d.ProgressOut == nil {
		return nil
	}
	if !term.IsTerminal(int(d.ProgressOut.Fd())) {
		return nil
	}

	return progressbar.NewOptions64(
		contentLength,
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(d.ProgressOut),
		progressbar.OptionClearOnFinish(),
	)
}

func (d *Downloader) client() *http.Client {
	if d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

func (d *Downloader) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Downloader) wait(attempt int) time.Duration {
	if d.backoff != nil {
		return d.backoff(attempt)
	}
	return time.Duration(attempt) * 300 * time.Millisecond
}
