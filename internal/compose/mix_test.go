package compose_test

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"foley/internal/compose"
	"foley/internal/logging"
	"foley/internal/media/wavio"
	"foley/internal/services"
	"foley/internal/testsupport"
	"foley/internal/timeline"
)

func constantLoader(clips map[string]wavio.Clip) compose.ClipLoader {
	return func(path string) (wavio.Clip, error) {
		clip, ok := clips[path]
		if !ok {
			return wavio.Clip{}, fmt.Errorf("no clip %s", path)
		}
		return clip, nil
	}
}

func constant(value float64, seconds float64, rate int) wavio.Clip {
	n := int(seconds * float64(rate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = value
	}
	return wavio.Clip{Samples: samples, SampleRate: rate}
}

func TestMixBufferLengthIsFixed(t *testing.T) {
	m := compose.NewMixer(logging.NewNop(), compose.WithClipLoader(constantLoader(map[string]wavio.Clip{
		"long.wav": constant(0.1, 10, 100),
	})))
	cases := []struct {
		name   string
		assets map[string][]compose.Asset
		timing map[string][]timeline.Interval
		total  float64
		want   int
	}{
		{"empty maps", nil, nil, 2.345, 235},
		{"zero duration", nil, nil, 0, 0},
		{"asset runs past end", map[string][]compose.Asset{"x": {{Tag: "x", Path: "long.wav"}}},
			map[string][]timeline.Interval{"x": {{Start: 1, End: 2}}}, 3, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := m.Mix(tc.assets, tc.timing, tc.total, 100)
			if err != nil {
				t.Fatalf("Mix: %v", err)
			}
			if len(buf.Samples) != tc.want {
				t.Fatalf("len = %d, want %d", len(buf.Samples), tc.want)
			}
		})
	}
}

func TestMixEmptyMapIsSilent(t *testing.T) {
	buf, err := compose.NewMixer(nil).Mix(map[string][]compose.Asset{}, map[string][]timeline.Interval{}, 1, 8000)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if _, _, ok := buf.NonZeroRange(); ok || len(buf.Samples) != 8000 {
		t.Fatalf("expected 8000 zero samples, got len=%d", len(buf.Samples))
	}
}

func TestMixClampsOverlappingFullScale(t *testing.T) {
	m := compose.NewMixer(nil, compose.WithClipLoader(constantLoader(map[string]wavio.Clip{
		"pos.wav": constant(1, 1, 100),
		"neg.wav": constant(-1, 1, 100),
	})))
	buf, err := m.Mix(
		map[string][]compose.Asset{
			"a": {{Path: "pos.wav"}, {Path: "neg.wav"}},
			"b": {{Path: "pos.wav"}, {Path: "neg.wav"}},
		},
		map[string][]timeline.Interval{
			"a": {{Start: 0, End: 1}, {Start: 1, End: 2}},
			"b": {{Start: 0, End: 1}, {Start: 1, End: 2}},
		},
		2, 100)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if buf.Peak() != 1 {
		t.Fatalf("peak = %v", buf.Peak())
	}
	if buf.Samples[50] != 1 || buf.Samples[150] != -1 {
		t.Fatalf("expected clamped extremes, got %v and %v", buf.Samples[50], buf.Samples[150])
	}
	for i, s := range buf.Samples {
		if s > 1 || s < -1 {
			t.Fatalf("sample %d = %v out of range", i, s)
		}
	}
}

func TestMixClampsOnceAfterAllAdditions(t *testing.T) {
	// +1 +1 -1 must net to +1, which only holds when clamping waits for the
	// last addition.
	m := compose.NewMixer(nil, compose.WithClipLoader(constantLoader(map[string]wavio.Clip{
		"pos.wav": constant(1, 1, 100),
		"neg.wav": constant(-1, 1, 100),
	})))
	buf, err := m.Mix(
		map[string][]compose.Asset{"a": {{Path: "pos.wav"}}, "b": {{Path: "pos.wav"}}, "c": {{Path: "neg.wav"}}},
		map[string][]timeline.Interval{"a": {{Start: 0, End: 1}}, "b": {{Start: 0, End: 1}}, "c": {{Start: 0, End: 1}}},
		1, 100)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if buf.Samples[10] != 1 {
		t.Fatalf("sample = %v, want 1", buf.Samples[10])
	}
}

func TestMixMalformedInputIsContractViolation(t *testing.T) {
	m := compose.NewMixer(nil, compose.WithClipLoader(constantLoader(nil)))
	cases := []struct {
		assets map[string][]compose.Asset
		timing map[string][]timeline.Interval
	}{
		{map[string][]compose.Asset{"dog": {{Path: "a"}}}, map[string][]timeline.Interval{"dog": {{Start: 0, End: 1}, {Start: 2, End: 3}}}},
		{map[string][]compose.Asset{"dog": {{Path: "a"}, {Path: "b"}}}, map[string][]timeline.Interval{"dog": {{Start: 0, End: 1}}}},
		{map[string][]compose.Asset{"dog": {{Path: "a"}}}, nil},
		{nil, map[string][]timeline.Interval{"dog": {{Start: 0, End: 1}}}},
		{map[string][]compose.Asset{"dog": {{Path: "a"}}}, map[string][]timeline.Interval{"dog": {{Start: -0.2, End: 1}}}},
		{map[string][]compose.Asset{"dog": {{Path: "a"}}}, map[string][]timeline.Interval{"dog": {{Start: math.NaN(), End: 1}}}},
		{map[string][]compose.Asset{"dog": {{Path: "a"}}}, map[string][]timeline.Interval{"dog": {{Start: 2, End: 1}}}},
		{map[string][]compose.Asset{"dog": {{Path: "a"}}}, map[string][]timeline.Interval{"dog": {{Start: 1, End: math.Inf(1)}}}},
	}
	for i, tc := range cases {
		if _, err := m.Mix(tc.assets, tc.timing, 5, 100); !errors.Is(err, services.ErrContractViolation) {
			t.Fatalf("case %d: expected contract violation, got %v", i, err)
		}
	}
}

func TestMixDropsAssetStartingPastEnd(t *testing.T) {
	m := compose.NewMixer(nil, compose.WithClipLoader(constantLoader(map[string]wavio.Clip{
		"x.wav": constant(0.5, 1, 100),
	})))
	buf, err := m.Mix(map[string][]compose.Asset{"x": {{Path: "x.wav"}}},
		map[string][]timeline.Interval{"x": {{Start: 1e300, End: 1e300}}}, 2, 100)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if _, _, ok := buf.NonZeroRange(); ok {
		t.Fatal("asset past the video end should be silent")
	}
}

func TestMixResamplesToTargetRate(t *testing.T) {
	m := compose.NewMixer(nil, compose.WithClipLoader(constantLoader(map[string]wavio.Clip{
		"half.wav": constant(0.5, 1, 50),
	})))
	buf, err := m.Mix(map[string][]compose.Asset{"x": {{Path: "half.wav"}}},
		map[string][]timeline.Interval{"x": {{Start: 0, End: 1}}}, 2, 100)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	first, end, ok := buf.NonZeroRange()
	if !ok || first != 0 || end != 100 {
		t.Fatalf("non-zero range = [%d,%d) ok=%v, want [0,100)", first, end, ok)
	}
}

func TestCarScenarioEndToEnd(t *testing.T) {
	const rate = 8000
	dir := t.TempDir()
	carPath := filepath.Join(dir, compose.AssetName("car", 0, 2))
	tone := make([]float32, 2*rate)
	for i := range tone {
		tone[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/rate))
		if tone[i] == 0 {
			tone[i] = 0.25
		}
	}
	if err := wavio.Write(carPath, rate, tone); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	buf, err := compose.NewMixer(logging.NewNop()).Mix(
		map[string][]compose.Asset{"car": {{Tag: "car", Path: carPath, DurationSeconds: 2}}},
		map[string][]timeline.Interval{"car": {{Start: 1, End: 3}}},
		5.0, rate)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if len(buf.Samples) != 5*rate {
		t.Fatalf("len = %d", len(buf.Samples))
	}
	first, end, ok := buf.NonZeroRange()
	if !ok || first < rate || end > 3*rate {
		t.Fatalf("non-zero samples outside [1s,3s): [%d,%d)", first, end)
	}
	if first != rate || end != 3*rate {
		t.Fatalf("expected sound across the whole interval, got [%d,%d)", first, end)
	}

	out := filepath.Join(dir, "final_output.wav")
	if err := compose.WriteWAV(out, buf); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	clip, err := wavio.ReadMono(out)
	if err != nil {
		t.Fatalf("read mix: %v", err)
	}
	if len(clip.Samples) != 5*rate || clip.SampleRate != rate {
		t.Fatalf("written mix len=%d rate=%d", len(clip.Samples), clip.SampleRate)
	}
}

func TestMixDecodesAssetsFromDisk(t *testing.T) {
	const rate = 8000
	dir := t.TempDir()
	low := filepath.Join(dir, compose.AssetName("rain", 0, 1))
	high := filepath.Join(dir, compose.AssetName("bell", 0, 0.5))
	testsupport.WriteTone(t, low, rate, 1, 0.25)
	testsupport.WriteTone(t, high, 2*rate, 0.5, 0.5)

	buf, err := compose.NewMixer(logging.NewNop()).Mix(
		map[string][]compose.Asset{
			"rain": {{Tag: "rain", Path: low, DurationSeconds: 1}},
			"bell": {{Tag: "bell", Path: high, DurationSeconds: 0.5}},
		},
		map[string][]timeline.Interval{
			"rain": {{Start: 0.5, End: 1.5}},
			"bell": {{Start: 1, End: 1.5}},
		},
		2, rate)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	first, end, ok := buf.NonZeroRange()
	if !ok || first != rate/2 || end != 3*rate/2 {
		t.Fatalf("non-zero range = [%d,%d) ok=%v", first, end, ok)
	}
	checks := map[int]float64{rate/2 + 100: 0.25, rate + 100: 0.75, 3*rate/2 - 1: 0.75}
	for idx, want := range checks {
		if got := float64(buf.Samples[idx]); math.Abs(got-want) > 1e-3 {
			t.Errorf("sample %d = %v, want %v", idx, got, want)
		}
	}

	if _, err := compose.NewMixer(nil).Mix(
		map[string][]compose.Asset{"gone": {{Path: filepath.Join(dir, "missing.wav")}}},
		map[string][]timeline.Interval{"gone": {{Start: 0, End: 1}}},
		1, rate); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("missing asset should be an external tool error, got %v", err)
	}
}

func TestAssetName(t *testing.T) {
	cases := map[string]string{
		compose.AssetName("car", 0, 2):                          "car_0_2s.wav",
		compose.AssetName("dog", 1, 1.25):                       "dog_1_1.25s.wav",
		compose.AssetName("dog interacting with ball", 0, 3.5): "dog-interacting-with-ball_0_3.5s.wav",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("AssetName = %q, want %q", got, want)
		}
	}
}
