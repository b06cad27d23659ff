package pipeline

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"foley/internal/compose"
	"foley/internal/runstore"
	"foley/internal/timeline"
)

// Stage names, in execution order.
const (
	StageAnalyze    = "analyze"
	StageAggregate  = "aggregate"
	StageRelevance  = "relevance"
	StagePrompt     = "prompt"
	StageSynthesize = "synthesize"
	StageCompose    = "compose"
	StageBind       = "bind"
)

// LabelStatus tracks how far a label got.
type LabelStatus string

const (
	LabelPending    LabelStatus = "pending"
	LabelIrrelevant LabelStatus = "irrelevant"
	LabelPrompted   LabelStatus = "prompted"
	LabelReady      LabelStatus = "ready"
	// LabelSkipped means prompt writing was skipped.
	LabelSkipped LabelStatus = "skipped"
	// LabelDropped means no sample was synthesized for every interval.
	LabelDropped LabelStatus = "dropped"
)

// LabelState is the mutable per-label slot of a run.
type LabelState struct {
	mu        sync.Mutex
	name      string
	relevant  bool
	prompt    string
	intervals []timeline.Interval
	// assets is indexed [sample][interval]; a zero Asset marks a gap.
	assets [][]compose.Asset
	status LabelStatus
	err    string
}

// LabelView is an immutable copy of a LabelState.
type LabelView struct {
	Name      string
	Relevant  bool
	Prompt    string
	Intervals []timeline.Interval
	Assets    [][]compose.Asset
	Status    LabelStatus
	Err       string
}

// Name returns the label key.
func (l *LabelState) Name() string {
	return l.name
}

// View copies the label's current state.
func (l *LabelState) View() LabelView {
	l.mu.Lock()
	defer l.mu.Unlock()
	assets := make([][]compose.Asset, len(l.assets))
	for i, set := range l.assets {
		assets[i] = slices.Clone(set)
	}
	return LabelView{
		Name:      l.name,
		Relevant:  l.relevant,
		Prompt:    l.prompt,
		Intervals: slices.Clone(l.intervals),
		Assets:    assets,
		Status:    l.status,
		Err:       l.err,
	}
}

func (l *LabelState) markRelevant(relevant bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.relevant = relevant
	if relevant {
		l.status = LabelPending
	} else {
		l.status = LabelIrrelevant
	}
}

func (l *LabelState) setPrompt(prompt string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompt = prompt
	l.status = LabelPrompted
	l.err = ""
}

func (l *LabelState) fail(status LabelStatus, reason error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = status
	if reason != nil {
		l.err = reason.Error()
	}
}

// setAssets replaces the label's assets. The label is ready when at least one
// sample covers every interval.
func (l *LabelState) setAssets(assets [][]compose.Asset, reason error) LabelStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assets = assets
	l.status = LabelDropped
	l.err = ""
	for _, set := range assets {
		if complete(set) {
			l.status = LabelReady
			break
		}
	}
	if l.status == LabelDropped && reason != nil {
		l.err = reason.Error()
	}
	return l.status
}

// commitRegenerate installs a successful correction and returns the assets
// it replaced.
func (l *LabelState) commitRegenerate(prompt string, assets [][]compose.Asset) [][]compose.Asset {
	l.mu.Lock()
	defer l.mu.Unlock()
	previous := l.assets
	l.relevant = true
	l.prompt = prompt
	l.assets = assets
	l.status = LabelReady
	l.err = ""
	return previous
}

// Sample returns the assets of one sample index when it covers every
// interval.
func (v LabelView) Sample(sample int) ([]compose.Asset, bool) {
	if sample < 0 || sample >= len(v.Assets) {
		return nil, false
	}
	set := v.Assets[sample]
	if len(set) != len(v.Intervals) || !complete(set) {
		return nil, false
	}
	return set, true
}

// DurationSeconds is the label's total on-screen time.
func (v LabelView) DurationSeconds() float64 {
	return timeline.Timeline{v.Name: v.Intervals}.Durations()[v.Name]
}

func complete(set []compose.Asset) bool {
	if len(set) == 0 {
		return false
	}
	for _, a := range set {
		if a.Path == "" {
			return false
		}
	}
	return true
}

// Run is one end-to-end execution. Scalar fields are guarded by mu; label
// slots carry their own locks and the label map is only replaced before
// per-label work starts.
type Run struct {
	ID        string
	VideoPath string
	CreatedAt time.Time

	mu             sync.Mutex
	videoDuration  float64
	summary        string
	detections     []timeline.Detection
	status         runstore.Status
	stage          string
	errMessage     string
	audioPath      string
	outputPath     string
	selectedSample int
	timings        map[string]time.Duration

	labels map[string]*LabelState
}

// NewRun starts an empty run for videoPath.
func NewRun(id, videoPath string) *Run {
	return &Run{
		ID:        id,
		VideoPath: videoPath,
		CreatedAt: time.Now(),
		status:    runstore.StatusRunning,
		timings:   make(map[string]time.Duration),
		labels:    make(map[string]*LabelState),
	}
}

// Labels returns the label keys in sorted order.
func (r *Run) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.labels))
	for name := range r.labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Label looks up a label slot by key. The name is normalized first.
func (r *Run) Label(name string) (*LabelState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.labels[timeline.NormalizeLabel(name)]
	return l, ok
}

func (r *Run) labelStates() []*LabelState {
	names := r.Labels()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*LabelState, 0, len(names))
	for _, name := range names {
		out = append(out, r.labels[name])
	}
	return out
}

func (r *Run) relevantStates(status LabelStatus) []*LabelState {
	var out []*LabelState
	for _, l := range r.labelStates() {
		v := l.View()
		if v.Relevant && v.Status == status {
			out = append(out, l)
		}
	}
	return out
}

// Timeline rebuilds the aggregated timeline from the label slots.
func (r *Run) Timeline() timeline.Timeline {
	out := make(timeline.Timeline)
	for _, l := range r.labelStates() {
		v := l.View()
		out[v.Name] = v.Intervals
	}
	return out
}

func (r *Run) setAnalysis(duration float64, summary string, detections []timeline.Detection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videoDuration = duration
	r.summary = summary
	r.detections = slices.Clone(detections)
}

func (r *Run) setTimeline(t timeline.Timeline) {
	labels := make(map[string]*LabelState, len(t))
	for name, intervals := range t {
		labels[name] = &LabelState{name: name, intervals: slices.Clone(intervals), status: LabelPending}
	}
	r.mu.Lock()
	r.labels = labels
	r.mu.Unlock()
}

// Detections returns the raw analyzer detections.
func (r *Run) Detections() []timeline.Detection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.detections)
}

// VideoDuration returns the probed source duration in seconds.
func (r *Run) VideoDuration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.videoDuration
}

// Summary returns the analyzer's description of the video.
func (r *Run) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Status reports the lifecycle state, the last stage entered and the error
// message of a failed run.
func (r *Run) Status() (runstore.Status, string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.stage, r.errMessage
}

// Outputs returns the composed track, the bound video and the sample index
// the track was mixed from.
func (r *Run) Outputs() (audio, video string, sample int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audioPath, r.outputPath, r.selectedSample
}

// Timings returns a copy of the per-stage durations.
func (r *Run) Timings() map[string]time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Duration, len(r.timings))
	for k, v := range r.timings {
		out[k] = v
	}
	return out
}

func (r *Run) enterStage(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = stage
	r.status = runstore.StatusRunning
	r.errMessage = ""
}

func (r *Run) finishStage(stage string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings[stage] = elapsed
}

func (r *Run) setFailed(status runstore.Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.errMessage = err.Error()
}

func (r *Run) setAudio(path string, sample int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioPath = path
	r.selectedSample = sample
}

func (r *Run) setCompleted(output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputPath = output
	r.status = runstore.StatusCompleted
}

// Record converts the run into its persisted form.
func (r *Run) Record() (runstore.Run, error) {
	detections, err := json.Marshal(r.Detections())
	if err != nil {
		return runstore.Run{}, fmt.Errorf("encode detections: %w", err)
	}
	status, stage, errMessage := r.Status()
	audio, video, sample := r.Outputs()
	rec := runstore.Run{
		ID:             r.ID,
		VideoPath:      r.VideoPath,
		VideoDuration:  r.VideoDuration(),
		Summary:        r.Summary(),
		Status:         status,
		Stage:          stage,
		ErrorMessage:   errMessage,
		DetectionsJSON: string(detections),
		SelectedSample: sample,
		AudioPath:      audio,
		OutputPath:     video,
		CreatedAt:      r.CreatedAt,
	}
	for _, l := range r.labelStates() {
		v := l.View()
		label := runstore.Label{
			Name:            v.Name,
			Relevant:        v.Relevant,
			Prompt:          v.Prompt,
			Status:          string(v.Status),
			ErrorMessage:    v.Err,
			DurationSeconds: v.DurationSeconds(),
		}
		for _, iv := range v.Intervals {
			label.Intervals = append(label.Intervals, runstore.Interval{Start: iv.Start, End: iv.End})
		}
		for sample, set := range v.Assets {
			for position, asset := range set {
				if asset.Path == "" {
					continue
				}
				label.Assets = append(label.Assets, runstore.Asset{
					Position:        position,
					Sample:          sample,
					Path:            asset.Path,
					DurationSeconds: asset.DurationSeconds,
				})
			}
		}
		rec.Labels = append(rec.Labels, label)
	}
	return rec, nil
}

// RestoreRun rebuilds a run from its persisted form.
func RestoreRun(rec runstore.Run) (*Run, error) {
	var detections []timeline.Detection
	if rec.DetectionsJSON != "" {
		if err := json.Unmarshal([]byte(rec.DetectionsJSON), &detections); err != nil {
			return nil, fmt.Errorf("decode detections of run %s: %w", rec.ID, err)
		}
	}
	run := NewRun(rec.ID, rec.VideoPath)
	run.CreatedAt = rec.CreatedAt
	run.videoDuration = rec.VideoDuration
	run.summary = rec.Summary
	run.detections = detections
	run.status = rec.Status
	run.stage = rec.Stage
	run.errMessage = rec.ErrorMessage
	run.audioPath = rec.AudioPath
	run.outputPath = rec.OutputPath
	run.selectedSample = rec.SelectedSample

	for _, label := range rec.Labels {
		state := &LabelState{
			name:     label.Name,
			relevant: label.Relevant,
			prompt:   label.Prompt,
			status:   LabelStatus(label.Status),
			err:      label.ErrorMessage,
		}
		for _, iv := range label.Intervals {
			state.intervals = append(state.intervals, timeline.Interval{Start: iv.Start, End: iv.End})
		}
		for _, asset := range label.Assets {
			if asset.Position < 0 || asset.Position >= len(state.intervals) || asset.Sample < 0 {
				return nil, fmt.Errorf("run %s label %q: asset position %d/%d out of range", rec.ID, label.Name, asset.Position, asset.Sample)
			}
			for len(state.assets) <= asset.Sample {
				state.assets = append(state.assets, make([]compose.Asset, len(state.intervals)))
			}
			state.assets[asset.Sample][asset.Position] = compose.Asset{
				Tag:             label.Name,
				Path:            asset.Path,
				DurationSeconds: asset.DurationSeconds,
			}
		}
		run.labels[label.Name] = state
	}
	return run, nil
}
