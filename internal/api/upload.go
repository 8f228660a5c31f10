package api

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadedAudio is a received file stored in the uploads directory.
type UploadedAudio struct {
	Path              string
	DeclaredExtension string
	OriginalName      string
	StoredName        string
}

// storeUpload copies src into dir as <unix-millis>-<originalName>. The
// returned Path is absolute.
func storeUpload(dir, originalName string, src io.Reader, now time.Time) (UploadedAudio, error) {
	name := safeName(originalName)
	stored := fmt.Sprintf("%d-%s", now.UnixMilli(), name)

	dir, err := filepath.Abs(dir)
	if err != nil {
		return UploadedAudio{}, fmt.Errorf("resolve uploads directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return UploadedAudio{}, fmt.Errorf("create uploads directory: %w", err)
	}

	dest := filepath.Join(dir, stored)
	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		stored = fmt.Sprintf("%d-%s-%s", now.UnixMilli(), uuid.NewString()[:8], name)
		dest = filepath.Join(dir, stored)
		dst, err = os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	}
	if err != nil {
		return UploadedAudio{}, fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dest)
		return UploadedAudio{}, fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dest)
		return UploadedAudio{}, fmt.Errorf("close upload file: %w", err)
	}

	return UploadedAudio{
		Path:              dest,
		DeclaredExtension: strings.ToLower(filepath.Ext(name)),
		OriginalName:      originalName,
		StoredName:        stored,
	}, nil
}

// safeName strips any directory part a client put into the file name.
func safeName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return "upload"
	}
	return base
}
