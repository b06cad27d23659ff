package compose

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"foley/internal/logging"
	"foley/internal/media/wavio"
	"foley/internal/services"
	"foley/internal/timeline"
)

// Buffer is a mono mix at SampleRate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Peak returns the largest absolute sample.
func (b Buffer) Peak() float32 {
	var peak float32
	for _, s := range b.Samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// NonZeroRange returns the first and one-past-last non-zero sample index.
// ok is false for a silent buffer.
func (b Buffer) NonZeroRange() (first, end int, ok bool) {
	first = -1
	for i, s := range b.Samples {
		if s != 0 {
			if first < 0 {
				first = i
			}
			end = i + 1
		}
	}
	return first, end, first >= 0
}

// ClipLoader decodes an asset into a mono clip.
type ClipLoader func(path string) (wavio.Clip, error)

// Mixer adds assets into a timeline buffer.
type Mixer struct {
	load   ClipLoader
	logger *slog.Logger
}

// MixerOption customizes a Mixer.
type MixerOption func(*Mixer)

// WithClipLoader replaces WAV decoding; tests use in-memory clips.
func WithClipLoader(load ClipLoader) MixerOption {
	return func(m *Mixer) {
		if load != nil {
			m.load = load
		}
	}
}

// NewMixer builds a mixer that decodes WAV assets from disk.
func NewMixer(logger *slog.Logger, opts ...MixerOption) *Mixer {
	m := &Mixer{load: wavio.ReadMono, logger: logging.NewComponentLogger(logger, "compose")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mix places every asset at the start of its positional interval. Each tag
// must carry exactly as many assets as intervals.
func (m *Mixer) Mix(assets map[string][]Asset, timings map[string][]timeline.Interval, totalDuration float64, sampleRate int) (Buffer, error) {
	if sampleRate <= 0 {
		return Buffer{}, mixViolation(fmt.Sprintf("sample rate %d", sampleRate))
	}
	if !finite(totalDuration) || totalDuration < 0 {
		return Buffer{}, mixViolation(fmt.Sprintf("total duration %v", totalDuration))
	}
	tags, err := pairedTags(assets, timings)
	if err != nil {
		return Buffer{}, err
	}

	length := int(math.Ceil(totalDuration * float64(sampleRate)))
	acc := make([]float64, length)

	for _, tag := range tags {
		for i, asset := range assets[tag] {
			iv := timings[tag][i]
			clip, err := m.load(asset.Path)
			if err != nil {
				return Buffer{}, services.Wrap(services.ErrExternalTool, "compose", "decode asset", asset.Path, err)
			}
			clip = wavio.Resample(clip, sampleRate)

			startPos := math.Round(iv.Start * float64(sampleRate))
			if startPos >= float64(length) {
				logging.WarnWithContext(m.logger, "asset starts past video end; dropped", "asset_out_of_range",
					logging.String(logging.FieldLabel, tag),
					logging.Float64("start", iv.Start),
					logging.String(logging.FieldImpact, "asset is silent in the mix"),
				)
				continue
			}
			start := int(startPos)
			end := min(start+len(clip.Samples), length)
			for j := start; j < end; j++ {
				acc[j] += clip.Samples[j-start]
			}
			m.logger.Debug("asset mixed",
				logging.String(logging.FieldLabel, tag),
				logging.String("path", asset.Path),
				logging.Float64("start", iv.Start),
				logging.Int("samples", end-start),
				logging.Bool("truncated", start+len(clip.Samples) > length),
			)
		}
	}

	out := make([]float32, length)
	for i, v := range acc {
		out[i] = float32(max(-1, min(1, v)))
	}
	return Buffer{Samples: out, SampleRate: sampleRate}, nil
}

func pairedTags(assets map[string][]Asset, timings map[string][]timeline.Interval) ([]string, error) {
	seen := make(map[string]struct{}, len(assets)+len(timings))
	for tag := range assets {
		seen[tag] = struct{}{}
	}
	for tag := range timings {
		seen[tag] = struct{}{}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		if len(assets[tag]) != len(timings[tag]) {
			return nil, mixViolation(fmt.Sprintf("tag %q has %d assets for %d intervals", tag, len(assets[tag]), len(timings[tag])))
		}
		for i, iv := range timings[tag] {
			if !finite(iv.Start) || !finite(iv.End) || iv.Start < 0 || iv.End < iv.Start {
				return nil, mixViolation(fmt.Sprintf("tag %q interval %d has bounds [%v, %v]", tag, i, iv.Start, iv.End))
			}
		}
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func mixViolation(msg string) error {
	return services.Wrap(services.ErrContractViolation, "compose", "mix", msg, nil)
}

// WriteWAV stores b as a 16-bit mono WAV at path.
func WriteWAV(path string, b Buffer) error {
	if err := wavio.Write(path, b.SampleRate, b.Samples); err != nil {
		return services.Wrap(services.ErrExternalTool, "compose", "write mix", path, err)
	}
	return nil
}
