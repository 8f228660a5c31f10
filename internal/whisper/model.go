package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const DefaultModel = "base"

type Model struct {
	Name     string
	FileName string
	URL      string
	SHA256   string
}

// ModelFile is a registry model bound to a concrete models directory.
type ModelFile struct {
	Model
	Path    string
	Present bool
}

var registry = map[string]Model{
	"tiny": {
		Name:     "tiny",
		FileName: "ggml-tiny.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin",
		SHA256:   "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21",
	},
	"base": {
		Name:     "base",
		FileName: "ggml-base.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
		SHA256:   "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
	},
	"small": {
		Name:     "small",
		FileName: "ggml-small.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
		SHA256:   "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
	},
	"medium": {
		Name:     "medium",
		FileName: "ggml-medium.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin",
		SHA256:   "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208",
	},
	"large-v3": {
		Name:     "large-v3",
		FileName: "ggml-large-v3.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin",
		SHA256:   "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2",
	},
}

var ErrUnknownModel = errors.New("unknown model")

func ModelNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupModel accepts a registry name or its file name ("ggml-base.bin").
func LookupModel(ref string) (Model, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultModel
	}
	if model, ok := registry[ref]; ok {
		return model, nil
	}
	for _, model := range registry {
		if model.FileName == ref {
			return model, nil
		}
	}
	return Model{}, fmt.Errorf("%w %q (known models: %s)", ErrUnknownModel, ref, strings.Join(ModelNames(), ", "))
}

// LocateModel binds the named model to modelDir and reports whether the file
// is already there.
func LocateModel(ref, modelDir string) (ModelFile, error) {
	model, err := LookupModel(ref)
	if err != nil {
		return ModelFile{}, err
	}
	if strings.TrimSpace(modelDir) == "" {
		return ModelFile{}, errors.New("model directory must not be empty")
	}

	path := filepath.Join(modelDir, model.FileName)
	info, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		return ModelFile{Model: model, Path: path, Present: !info.IsDir()}, nil
	case errors.Is(statErr, os.ErrNotExist):
		return ModelFile{Model: model, Path: path}, nil
	default:
		return ModelFile{}, fmt.Errorf("stat model path: %w", statErr)
	}
}
