package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrUnsupportedWAV = errors.New("unsupported wav format")

// Info describes the PCM content of a WAV file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
	Samples    int64
	RMSdBFS    float64
	PeakdBFS   float64
}

// Silent reports whether the signal stays below thresholdDBFS, allowing the
// peak a 6 dB margin over the same threshold.
func (i Info) Silent(thresholdDBFS float64) bool {
	if i.Samples == 0 {
		return true
	}
	if math.IsInf(i.RMSdBFS, -1) && math.IsInf(i.PeakdBFS, -1) {
		return true
	}
	return i.RMSdBFS <= thresholdDBFS && i.PeakdBFS <= thresholdDBFS+6
}

// Inspect decodes the format chunk and streams the PCM data once to measure
// duration and levels. Only integer PCM of 16, 24 or 32 bits is measured.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("read wav chunks: %w", err)
	}

	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}

	if dec.WavAudioFormat != 1 {
		return info, fmt.Errorf("%w: audio format %d", ErrUnsupportedWAV, dec.WavAudioFormat)
	}
	switch info.BitDepth {
	case 16, 24, 32:
	default:
		return info, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedWAV, info.BitDepth)
	}
	if info.SampleRate <= 0 || info.Channels <= 0 {
		return info, fmt.Errorf("%w: missing format chunk", ErrUnsupportedWAV)
	}

	fullScale := float64(int64(1) << (info.BitDepth - 1))
	buf := &goaudio.IntBuffer{Format: dec.Format(), Data: make([]int, 4096), SourceBitDepth: info.BitDepth}

	var peak, sumSquares float64
	for {
		n, err := dec.PCMBuffer(buf)
		for _, sample := range buf.Data[:n] {
			value := math.Abs(float64(sample) / fullScale)
			peak = math.Max(peak, value)
			sumSquares += value * value
		}
		info.Samples += int64(n)

		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return info, fmt.Errorf("read wav samples: %w", err)
		}
		if n == 0 || err != nil {
			break
		}
	}

	frames := info.Samples / int64(info.Channels)
	info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)

	if info.Samples == 0 {
		info.RMSdBFS = math.Inf(-1)
		info.PeakdBFS = math.Inf(-1)
		return info, nil
	}
	info.RMSdBFS = toDBFS(math.Sqrt(sumSquares / float64(info.Samples)))
	info.PeakdBFS = toDBFS(peak)

	return info, nil
}

func toDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amplitude)
}
