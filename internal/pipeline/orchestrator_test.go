package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"foley/internal/compose"
	"foley/internal/media/wavio"
	"foley/internal/runstore"
	"foley/internal/services"
	"foley/internal/services/gemini"
	"foley/internal/services/llm"
	"foley/internal/services/stableaudio"
	"foley/internal/timeline"
)

const testRate = 8000

type fakeAnalyzer struct {
	analysis gemini.Analysis
	err      error
}

func (f *fakeAnalyzer) Analyze(context.Context, string) (gemini.Analysis, error) {
	return f.analysis, f.err
}

type fakeLLM struct {
	mu          sync.Mutex
	relevant    []string
	relevantErr error
	promptErrs  map[string]error
	prompts     []string
}

func (f *fakeLLM) RelevantLabels(_ context.Context, labels []string) ([]string, error) {
	if f.relevantErr != nil {
		return nil, f.relevantErr
	}
	return f.relevant, nil
}

func (f *fakeLLM) AudioPrompt(_ context.Context, req llm.PromptRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Label)
	if err := f.promptErrs[req.Label]; err != nil {
		return "", err
	}
	return "sound of " + req.Label, nil
}

type fakeSynth struct {
	mu        sync.Mutex
	durations map[string]float64
	failures  map[string]error
	requests  []stableaudio.Request
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{durations: map[string]float64{}, failures: map[string]error{}}
}

func (f *fakeSynth) Generate(_ context.Context, req stableaudio.Request) (stableaudio.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	for prefix, err := range f.failures {
		if strings.HasPrefix(req.Prompt, prefix) {
			return stableaudio.Clip{}, err
		}
	}
	f.durations[req.OutputPath] = req.DurationSeconds
	return stableaudio.Clip{Path: req.OutputPath, SampleRate: testRate, DurationSeconds: req.DurationSeconds}, nil
}

func (f *fakeSynth) load(path string) (wavio.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.durations[path]
	if !ok {
		return wavio.Clip{}, fmt.Errorf("unknown asset %s", path)
	}
	samples := make([]float64, int(math.Round(d*testRate)))
	for i := range samples {
		samples[i] = 0.5
	}
	return wavio.Clip{Samples: samples, SampleRate: testRate}, nil
}

func (f *fakeSynth) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeProber struct{ duration float64 }

func (f fakeProber) Duration(context.Context, string) (float64, error) { return f.duration, nil }

type fakeBinder struct {
	mu       sync.Mutex
	calls    int
	output   string
	duration float64
}

func (f *fakeBinder) Bind(_ context.Context, _, _, output string, duration float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.output = output
	f.duration = duration
	return nil
}

type memoryStore struct {
	mu   sync.Mutex
	runs map[string]runstore.Run
}

func (m *memoryStore) Save(_ context.Context, run runstore.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = map[string]runstore.Run{}
	}
	m.runs[run.ID] = run
	return nil
}

type harness struct {
	analyzer *fakeAnalyzer
	llm      *fakeLLM
	synth    *fakeSynth
	binder   *fakeBinder
	store    *memoryStore
	orch     *Orchestrator
	settings Settings
}

func newHarness(t *testing.T, detections []timeline.Detection, relevant []string) *harness {
	t.Helper()
	h := &harness{
		analyzer: &fakeAnalyzer{analysis: gemini.Analysis{Summary: "street scene", Detections: detections}},
		llm:      &fakeLLM{relevant: relevant, promptErrs: map[string]error{}},
		synth:    newFakeSynth(),
		binder:   &fakeBinder{},
		store:    &memoryStore{},
	}
	dir := t.TempDir()
	h.settings = Settings{
		WorkDir:           filepath.Join(dir, "work"),
		OutputDir:         filepath.Join(dir, "out"),
		SampleRate:        testRate,
		SamplesPerPrompt:  1,
		Timeline:          timeline.Options{MinGap: 0.5, MinDuration: 0.2},
		Concurrency:       3,
		RetryInitialDelay: time.Second,
		RetryMaxDelay:     4 * time.Second,
		RetryBase:         2,
	}
	h.build(t)
	return h
}

func (h *harness) build(t *testing.T) {
	t.Helper()
	orch, err := New(Services{
		Analyzer:    h.analyzer,
		Relevance:   h.llm,
		Prompts:     h.llm,
		Synthesizer: h.synth,
		Prober:      fakeProber{duration: 5},
		Binder:      h.binder,
		Mixer:       compose.NewMixer(nil, compose.WithClipLoader(h.synth.load)),
	}, h.settings,
		WithStore(h.store),
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
		WithIDGenerator(func() string { return "run-1" }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = orch
}

func det(label string, start, end float64) timeline.Detection {
	return timeline.Detection{Label: label, StartTime: start, EndTime: end, Confidence: 1}
}

func TestExecuteCarScenario(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("car", 1, 2), det("Car", 2.2, 3), det("tree", 0, 5)}, []string{"car"})

	run, err := h.orch.Execute(context.Background(), "/videos/street.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	status, stage, _ := run.Status()
	if status != runstore.StatusCompleted || stage != StageBind {
		t.Fatalf("status=%s stage=%s", status, stage)
	}

	car, ok := run.Label("car")
	if !ok {
		t.Fatal("car label missing")
	}
	view := car.View()
	if view.Status != LabelReady || view.Prompt != "sound of car" {
		t.Fatalf("unexpected car state %+v", view)
	}
	if len(view.Intervals) != 1 || view.Intervals[0] != (timeline.Interval{Start: 1, End: 3}) {
		t.Fatalf("car intervals = %+v", view.Intervals)
	}
	if got := filepath.Base(view.Assets[0][0].Path); got != "car_0_2s.wav" {
		t.Fatalf("asset name = %s", got)
	}
	tree, _ := run.Label("tree")
	if tree.View().Status != LabelIrrelevant {
		t.Fatalf("tree status = %s", tree.View().Status)
	}

	audio, video, _ := run.Outputs()
	clip, err := wavio.ReadMono(audio)
	if err != nil {
		t.Fatalf("read composed track: %v", err)
	}
	if len(clip.Samples) != 5*testRate {
		t.Fatalf("track length = %d", len(clip.Samples))
	}
	for i, v := range clip.Samples {
		inside := i >= 1*testRate && i < 3*testRate
		if inside && math.Abs(v) < 0.4 {
			t.Fatalf("sample %d should carry the car clip, got %f", i, v)
		}
		if !inside && v != 0 {
			t.Fatalf("sample %d should be silent, got %f", i, v)
		}
	}

	if h.binder.calls != 1 || h.binder.duration != 5 || h.binder.output != video {
		t.Fatalf("unexpected bind %+v (video %s)", h.binder, video)
	}
	if video != h.settings.withDefaults().DefaultOutput("run-1") {
		t.Fatalf("default output = %s", video)
	}
	if len(h.llm.prompts) != 1 {
		t.Fatalf("only relevant labels get prompts, got %v", h.llm.prompts)
	}
	if rec := h.store.runs["run-1"]; rec.Status != runstore.StatusCompleted || len(rec.Labels) != 2 {
		t.Fatalf("stored snapshot %+v", rec)
	}
	for _, stage := range []string{StageAnalyze, StageAggregate, StageRelevance, StagePrompt, StageSynthesize, StageCompose, StageBind} {
		if _, ok := run.Timings()[stage]; !ok {
			t.Fatalf("missing timing for %s", stage)
		}
	}
}

func TestExecuteAnalyzeFatalAbortsRun(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.analyzer.err = services.Wrap(services.ErrUnavailable, "analyze", "upload", "http 503", nil)

	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAnalyze {
		t.Fatalf("expected analyze StageError, got %v", err)
	}
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("marker lost: %v", err)
	}
	if status, _, msg := run.Status(); status != runstore.StatusFailed || msg == "" {
		t.Fatalf("status=%s msg=%q", status, msg)
	}
	if h.synth.count() != 0 || h.binder.calls != 0 {
		t.Fatal("no downstream work expected after fatal analysis")
	}
}

func TestExecuteAnalyzeSkipIsFatal(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.analyzer.err = services.Wrap(services.ErrInvalidRequest, "analyze", "upload", "http 413", nil)

	_, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAnalyze {
		t.Fatalf("expected analyze StageError, got %v", err)
	}
}

func TestExecuteContractViolationStopsAtAggregate(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 3, 1)}, nil)

	_, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAggregate || !services.IsContractViolation(err) {
		t.Fatalf("expected aggregate contract violation, got %v", err)
	}
}

func TestExecuteRelevanceSkipComposesSilentTrack(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 2)}, nil)
	h.llm.relevantErr = services.Wrap(services.ErrInvalidRequest, "relevance", "parse labels", "", nil)

	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	dog, _ := run.Label("dog")
	if dog.View().Status != LabelIrrelevant {
		t.Fatalf("dog status = %s", dog.View().Status)
	}
	if len(h.llm.prompts) != 0 || h.synth.count() != 0 {
		t.Fatal("no prompts or synthesis expected")
	}
	audio, _, _ := run.Outputs()
	clip, err := wavio.ReadMono(audio)
	if err != nil {
		t.Fatalf("read track: %v", err)
	}
	for _, v := range clip.Samples {
		if v != 0 {
			t.Fatal("expected silent track")
		}
	}
	if h.binder.calls != 1 {
		t.Fatal("silent track should still be bound")
	}
}

func TestExecutePromptSkipDropsOnlyThatLabel(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 1), det("car", 2, 4)}, []string{"dog", "car"})
	h.llm.promptErrs["dog"] = services.Wrap(services.ErrInvalidRequest, "prompt", "parse", "empty prompt", nil)

	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	dog, _ := run.Label("dog")
	car, _ := run.Label("car")
	if dog.View().Status != LabelSkipped || dog.View().Err == "" {
		t.Fatalf("dog = %+v", dog.View())
	}
	if car.View().Status != LabelReady {
		t.Fatalf("car = %+v", car.View())
	}
}

func TestExecuteSynthesisRetriesThenDropsLabel(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 1), det("car", 2, 4)}, []string{"dog", "car"})
	h.synth.failures["sound of dog"] = services.Wrap(services.ErrTransient, "synthesize", "request", "http 502", nil)

	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	dog, _ := run.Label("dog")
	if dog.View().Status != LabelDropped {
		t.Fatalf("dog = %+v", dog.View())
	}
	dogAttempts := 0
	for _, req := range h.synth.requests {
		if req.Prompt == "sound of dog" {
			dogAttempts++
		}
	}
	// Delays 2s and 4s are slept; the third failure would need 8s > 4s.
	if dogAttempts != 3 {
		t.Fatalf("dog attempts = %d", dogAttempts)
	}
	car, _ := run.Label("car")
	if car.View().Status != LabelReady {
		t.Fatalf("car = %+v", car.View())
	}
	if h.binder.calls != 1 {
		t.Fatal("partial sound should still be bound")
	}
}

func TestExecuteSynthesisFatalAbortsRun(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 1)}, []string{"dog"})
	h.synth.failures["sound of dog"] = services.Wrap(services.ErrUnavailable, "synthesize", "request", "http 503", nil)

	_, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSynthesize {
		t.Fatalf("expected synthesize StageError, got %v", err)
	}
	if h.binder.calls != 0 {
		t.Fatal("no bind after fatal synthesis")
	}
}

func TestExecuteMultipleSamplesAndIntervals(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 1), det("dog", 3, 4.5)}, []string{"dog"})
	h.settings.SamplesPerPrompt = 2
	h.build(t)

	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	dog, _ := run.Label("dog")
	view := dog.View()
	if len(view.Assets) != 2 || len(view.Assets[1]) != 2 {
		t.Fatalf("assets = %+v", view.Assets)
	}
	if h.synth.count() != 4 {
		t.Fatalf("expected one request per interval per sample, got %d", h.synth.count())
	}
	if got := filepath.Base(view.Assets[1][1].Path); got != "dog_1_1.5s.wav" {
		t.Fatalf("asset name = %s", got)
	}
	if view.Assets[0][0].Path == view.Assets[0][1].Path {
		t.Fatal("intervals must not share an asset file")
	}

	if err := h.orch.Compose(context.Background(), run, 1); err != nil {
		t.Fatalf("Compose sample 1: %v", err)
	}
	if _, _, sample := run.Outputs(); sample != 1 {
		t.Fatalf("selected sample = %d", sample)
	}
}

func TestRegenerateReplacesOneLabel(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 1), det("car", 2, 4)}, []string{"dog", "car"})
	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	before := h.synth.count()
	promptsBefore := len(h.llm.prompts)

	if err := h.orch.Regenerate(context.Background(), run, "Dog", "deep woof"); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if h.synth.count() != before+1 {
		t.Fatalf("expected one new synthesis, got %d", h.synth.count()-before)
	}
	if last := h.synth.requests[len(h.synth.requests)-1]; last.Prompt != "deep woof" {
		t.Fatalf("regenerated with prompt %q", last.Prompt)
	}
	if len(h.llm.prompts) != promptsBefore {
		t.Fatal("regenerate must not call the prompt writer")
	}
	dog, _ := run.Label("dog")
	if v := dog.View(); v.Prompt != "deep woof" || v.Status != LabelReady {
		t.Fatalf("dog = %+v", v)
	}
	if set, ok := dog.View().Sample(0); !ok || !strings.Contains(set[0].Path, string(filepath.Separator)+"regenerate-") {
		t.Fatalf("regenerated clip should live in its own attempt dir, got %+v", dog.View().Assets)
	}
	if status, _, _ := run.Status(); status != runstore.StatusRunning {
		t.Fatalf("regenerated run should need re-binding, status %s", status)
	}

	if err := h.orch.Compose(context.Background(), run, 0); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if err := h.orch.Bind(context.Background(), run, filepath.Join(t.TempDir(), "custom.mp4")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if status, _, _ := run.Status(); status != runstore.StatusCompleted {
		t.Fatalf("status after bind = %s", status)
	}
	if !strings.HasSuffix(h.binder.output, "custom.mp4") {
		t.Fatalf("bind output = %s", h.binder.output)
	}
}

func TestRegenerateErrors(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 1), det("tree", 0, 5)}, []string{"dog"})
	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := h.orch.Regenerate(context.Background(), run, "cat", "meow"); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
	if err := h.orch.Regenerate(context.Background(), run, "tree", ""); err == nil {
		t.Fatal("irrelevant label without a prompt should be rejected")
	}

	h.synth.failures["bad"] = services.Wrap(services.ErrInvalidRequest, "synthesize", "request", "http 422", nil)
	if err := h.orch.Regenerate(context.Background(), run, "dog", "bad prompt"); !errors.Is(err, ErrLabelDropped) {
		t.Fatalf("expected ErrLabelDropped, got %v", err)
	}
}

func TestRegenerateFailureKeepsPreviousAudio(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 1), det("dog", 3, 4)}, []string{"dog"})
	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	dog, _ := run.Label("dog")
	before := dog.View()
	if before.Status != LabelReady {
		t.Fatalf("dog should start ready, got %+v", before)
	}

	cases := map[string]error{
		"rejected": services.Wrap(services.ErrInvalidRequest, "synthesize", "request", "http 422", nil),
		"flaky":    services.Wrap(services.ErrRateLimited, "synthesize", "request", "http 429", nil),
	}
	for prompt, failure := range cases {
		h.synth.failures[prompt] = failure
		err := h.orch.Regenerate(context.Background(), run, "dog", prompt)
		if !errors.Is(err, ErrLabelDropped) {
			t.Fatalf("%s: expected ErrLabelDropped, got %v", prompt, err)
		}
		after := dog.View()
		if after.Prompt != before.Prompt || after.Status != LabelReady || !reflect.DeepEqual(after.Assets, before.Assets) {
			t.Fatalf("%s: failed correction changed the label:\nbefore %+v\nafter  %+v", prompt, before, after)
		}
		last := h.synth.requests[len(h.synth.requests)-1]
		if last.Prompt != prompt || last.OutputPath == before.Assets[0][0].Path {
			t.Fatalf("%s: correction wrote over the previous clip at %s", prompt, last.OutputPath)
		}
	}

	if err := h.orch.Compose(context.Background(), run, 0); err != nil {
		t.Fatalf("Compose after failed correction: %v", err)
	}
}

func TestBindRequiresComposedTrack(t *testing.T) {
	h := newHarness(t, nil, nil)
	run := NewRun("r", "/v.mp4")
	err := h.orch.Bind(context.Background(), run, "")
	if !errors.Is(err, ErrNotComposed) {
		t.Fatalf("expected ErrNotComposed, got %v", err)
	}
}

func TestExecuteCanceledContext(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 1)}, []string{"dog"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := h.orch.Execute(ctx, "/v.mp4", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if status, _, _ := run.Status(); status != runstore.StatusCanceled {
		t.Fatalf("status = %s", status)
	}
	if rec := h.store.runs["run-1"]; rec.Status != runstore.StatusCanceled {
		t.Fatalf("canceled state not persisted: %s", rec.Status)
	}
}

func TestRecordRestoreRoundTrip(t *testing.T) {
	h := newHarness(t, []timeline.Detection{det("dog", 0, 1), det("dog", 2, 3), det("tree", 0, 5)}, []string{"dog"})
	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	rec, err := run.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	restored, err := RestoreRun(rec)
	if err != nil {
		t.Fatalf("RestoreRun: %v", err)
	}
	if restored.VideoDuration() != 5 || restored.Summary() != "street scene" || len(restored.Detections()) != 3 {
		t.Fatalf("scalar state lost: %+v", rec)
	}
	orig, _ := run.Label("dog")
	back, _ := restored.Label("dog")
	ov, bv := orig.View(), back.View()
	if ov.Prompt != bv.Prompt || ov.Status != bv.Status || len(bv.Intervals) != 2 {
		t.Fatalf("label state lost: %+v vs %+v", ov, bv)
	}
	if set, ok := bv.Sample(0); !ok || set[1].Path != ov.Assets[0][1].Path {
		t.Fatalf("assets lost: %+v", bv.Assets)
	}
	if restored.Timeline()["tree"][0] != (timeline.Interval{Start: 0, End: 5}) {
		t.Fatalf("timeline = %+v", restored.Timeline())
	}

	if err := h.orch.Compose(context.Background(), restored, 0); err != nil {
		t.Fatalf("Compose restored run: %v", err)
	}
}

func TestConcurrentLabelsAllComplete(t *testing.T) {
	var detections []timeline.Detection
	var names []string
	for i := range 12 {
		name := fmt.Sprintf("object %02d", i)
		names = append(names, name)
		detections = append(detections, det(name, float64(i%4), float64(i%4)+0.5))
	}
	h := newHarness(t, detections, names)

	run, err := h.orch.Execute(context.Background(), "/v.mp4", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, name := range names {
		l, ok := run.Label(name)
		if !ok || l.View().Status != LabelReady {
			t.Fatalf("label %s not ready", name)
		}
	}
}
