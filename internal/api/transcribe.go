package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxserve/internal/audio"
	"github.com/fmueller/voxserve/internal/locator"
	"github.com/fmueller/voxserve/internal/metrics"
	"github.com/fmueller/voxserve/internal/transcribe"
	"github.com/fmueller/voxserve/internal/whisper"
	"go.uber.org/zap"
)

const audioField = "audio"

// multipart parts beyond this stay on disk.
const maxFormMemory = 32 << 20

type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error)
}

type ModelResolver interface {
	ResolveModel(ctx context.Context) locator.ResourceLocation
}

type TranscribeResponse struct {
	Transcription string            `json:"transcription"`
	AudioFile     string            `json:"audioFile"`
	Strategy      string            `json:"strategy"`
	Segments      []whisper.Segment `json:"segments,omitempty"`
	Quarantined   bool              `json:"quarantined,omitempty"`
}

type TranscribeHandler struct {
	transcriber Transcriber
	models      ModelResolver
	validator   *audio.Validator
	uploadDir   string
	modelDir    string
	language    string
	keepUploads bool
	maxUpload   int64
	log         *zap.Logger
	now         func() time.Time
}

// ServeHTTP handles POST /api/transcribe: store the "audio" part, validate
// it, make sure the model is in place, run the strategy chain, and answer
// with the normalized text.
func (h *TranscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "Audio file too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "No audio file provided")
		return
	}

	file, header, err := r.FormFile(audioField)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	log := h.log.With(zap.String("request_id", RequestIDFrom(r.Context())))

	upload, err := storeUpload(h.uploadDir, header.Filename, file, h.now())
	if err != nil {
		log.Error("storing upload failed", zap.Error(err))
		WriteErrorDetails(w, http.StatusInternalServerError, "Failed to store audio", err.Error())
		return
	}
	log.Info("audio received",
		zap.String("original_name", upload.OriginalName),
		zap.String("stored_as", upload.StoredName),
		zap.String("declared_extension", upload.DeclaredExtension),
		zap.Int64("bytes", header.Size),
	)

	report := h.validator.ValidateAs(upload.Path, upload.DeclaredExtension)
	if report.Quarantined {
		metrics.UploadsQuarantinedTotal.Inc()
	}
	if !h.keepUploads {
		defer func() {
			if err := os.Remove(report.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn("could not remove upload", zap.String("path", report.Path), zap.Error(err))
			}
		}()
	}

	if model := h.models.ResolveModel(r.Context()); !model.Exists {
		log.Warn("model not found before transcription", zap.Error(model.Err()))
	}

	language := strings.TrimSpace(r.FormValue("language"))
	if language == "" {
		language = h.language
	}

	result, err := h.transcriber.Transcribe(r.Context(), transcribe.Request{
		AudioPath: report.Path,
		ModelDir:  h.modelDir,
		Language:  transcribe.NormalizeLanguage(language),
	})
	if err != nil {
		metrics.TranscriptionsTotal.WithLabelValues("failure").Inc()
		log.Error("transcription failed", zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:    "Failed to transcribe audio",
			Details:  err.Error(),
			Attempts: attemptViews(err),
		})
		return
	}

	metrics.TranscriptionsTotal.WithLabelValues("success").Inc()
	WriteJSON(w, http.StatusOK, TranscribeResponse{
		Transcription: result.Text,
		AudioFile:     filepath.Base(report.Path),
		Strategy:      string(result.Strategy),
		Segments:      result.Segments,
		Quarantined:   report.Quarantined,
	})
}

func attemptViews(err error) []AttemptView {
	var exhausted *transcribe.ExhaustedError
	if !errors.As(err, &exhausted) {
		return nil
	}

	views := make([]AttemptView, 0, len(exhausted.Attempts))
	for _, a := range exhausted.Attempts {
		view := AttemptView{
			Strategy:  string(a.Strategy),
			Status:    string(a.Status),
			ElapsedMS: a.Elapsed.Milliseconds(),
		}
		if a.Err != nil {
			view.Error = a.Err.Error()
		}
		views = append(views, view)
	}
	return views
}
