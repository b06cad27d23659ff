// Package wavio reads and writes PCM WAV files as float samples.
package wavio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidFile is returned for files that are not decodable PCM WAV.
var ErrInvalidFile = errors.New("invalid wav file")

// Clip is a decoded mono signal.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ReadMono decodes path and averages its channels into one signal in
// [-1, 1].
func ReadMono(path string) (Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decode wav %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: %s: missing format", ErrInvalidFile, path)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))
	// 8-bit PCM is unsigned.
	offset := 0.0
	if bitDepth == 8 {
		offset = 128
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += (float64(buf.Data[i*channels+ch]) - offset) / scale
		}
		samples[i] = sum / float64(channels)
	}
	return Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// Resample converts c to rate using linear interpolation.
func Resample(c Clip, rate int) Clip {
	if rate <= 0 || c.SampleRate == rate || len(c.Samples) == 0 {
		return c
	}
	ratio := float64(c.SampleRate) / float64(rate)
	n := int(math.Round(float64(len(c.Samples)) / ratio))
	out := make([]float64, n)
	last := len(c.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = c.Samples[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = c.Samples[idx]*(1-frac) + c.Samples[idx+1]*frac
	}
	return Clip{Samples: out, SampleRate: rate}
}

// Write encodes channels as 16-bit PCM at rate. Channels must share a
// length. The file is written to a temporary sibling and renamed into place
// so readers never observe a partial file.
func Write(path string, rate int, channels ...[]float32) error {
	if rate <= 0 {
		return fmt.Errorf("write wav: invalid sample rate %d", rate)
	}
	if len(channels) == 0 {
		return errors.New("write wav: no channels")
	}
	frames := len(channels[0])
	for i, ch := range channels {
		if len(ch) != frames {
			return fmt.Errorf("write wav: channel %d has %d frames, want %d", i, len(ch), frames)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write wav: ensure dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write wav: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	data := make([]int, frames*len(channels))
	for i := 0; i < frames; i++ {
		for ch := range channels {
			data[i*len(channels)+ch] = toPCM16(channels[ch][i])
		}
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: len(channels), SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}

	encoder := wav.NewEncoder(tmp, rate, 16, len(channels), 1)
	if err := encoder.Write(buf); err != nil {
		cleanup()
		return fmt.Errorf("write wav: encode: %w", err)
	}
	if err := encoder.Close(); err != nil {
		cleanup()
		return fmt.Errorf("write wav: finalize: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("write wav: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write wav: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write wav: rename: %w", err)
	}
	return nil
}

func toPCM16(v float32) int {
	switch {
	case v != v:
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int(math.Round(float64(v) * math.MaxInt16))
}
