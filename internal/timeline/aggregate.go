package timeline

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Interval is a closed on-screen range in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End-Start.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// Options controls merging and filtering.
type Options struct {
	// MinGap is the largest gap between two sightings still treated as one
	// continuous interval.
	MinGap float64
	// MinDuration drops merged intervals shorter than this.
	MinDuration float64
}

// Timeline maps a label key to its sorted, non-overlapping intervals.
type Timeline map[string][]Interval

// Aggregate merges detections into a Timeline. Input order only breaks ties
// between equal start times. Labels left without intervals are absent from
// the result.
func Aggregate(detections []Detection, opts Options) (Timeline, error) {
	if opts.MinGap < 0 || opts.MinDuration < 0 || !finite(opts.MinGap) || !finite(opts.MinDuration) {
		return nil, violation(fmt.Sprintf("invalid thresholds gap=%v duration=%v", opts.MinGap, opts.MinDuration))
	}

	grouped := make(map[string][]Interval)
	for _, d := range detections {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		key := d.Key()
		grouped[key] = append(grouped[key], Interval{Start: d.StartTime, End: d.EndTime})
	}

	result := make(Timeline, len(grouped))
	for key, sightings := range grouped {
		sort.SliceStable(sightings, func(i, j int) bool { return sightings[i].Start < sightings[j].Start })

		if kept := settle(merge(sightings, opts.MinGap), opts); len(kept) > 0 {
			result[key] = kept
		}
	}
	return result, nil
}

func merge(sorted []Interval, gap float64) []Interval {
	if len(sorted) == 0 {
		return nil
	}
	out := make([]Interval, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start-current.End <= gap {
			current.End = math.Max(current.End, next.End)
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}

// settle filters and rounds merged intervals. Rounding can close a gap to
// MinGap or shrink an interval below MinDuration, so the rounded bounds are
// merged and filtered again until a pass changes nothing. Comparisons within a
// pass use the values as given.
func settle(merged []Interval, opts Options) []Interval {
	current := merged
	for pass := 0; ; pass++ {
		kept := make([]Interval, 0, len(current))
		for _, iv := range current {
			if iv.Duration() < opts.MinDuration {
				continue
			}
			kept = append(kept, Interval{Start: round2(iv.Start), End: round2(iv.End)})
		}
		next := merge(kept, opts.MinGap)
		if pass > 0 && len(next) == len(current) {
			return next
		}
		current = next
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Labels returns the timeline keys in sorted order.
func (t Timeline) Labels() []string {
	labels := make([]string, 0, len(t))
	for label := range t {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Durations returns the total on-screen seconds per label.
func (t Timeline) Durations() map[string]float64 {
	out := make(map[string]float64, len(t))
	for label, intervals := range t {
		var total float64
		for _, iv := range intervals {
			total += iv.Duration()
		}
		out[label] = round2(total)
	}
	return out
}

// Filter returns a timeline holding only the listed labels. Names are
// matched after normalization; unknown names are ignored.
func (t Timeline) Filter(labels []string) Timeline {
	out := make(Timeline)
	for _, label := range labels {
		key := NormalizeLabel(label)
		if intervals, ok := t[key]; ok {
			out[key] = slices.Clone(intervals)
		}
	}
	return out
}

// Detections expands the timeline back into one full-confidence sighting per
// interval. Aggregating the result with the same options reproduces t.
func (t Timeline) Detections() []Detection {
	var out []Detection
	for _, label := range t.Labels() {
		for _, iv := range t[label] {
			out = append(out, Detection{Label: label, StartTime: iv.Start, EndTime: iv.End, Confidence: 1})
		}
	}
	return out
}
