package cli

import (
	"strings"

	"github.com/fmueller/voxserve/internal/whisper"
)

const blankAudioToken = "[BLANK_AUDIO]"

func isBlankTranscript(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, blankAudioToken) || trimmed == whisper.NoOutputPlaceholder
}

func noSpeechHint() string {
	return "No speech detected. Check that the file contains audible speech and that the model matches its language."
}
