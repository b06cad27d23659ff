package ffprobe

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"foley/internal/services"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio"},
			{CodecType: "audio"},
		},
		Format: Format{Duration: "123.45"},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestDurationFallsBackToVideoStream(t *testing.T) {
	result := Result{Streams: []Stream{
		{CodecType: "video", Duration: "9.5"},
		{CodecType: "audio", Duration: "12"},
		{CodecType: "video", Duration: "10.25"},
	}}
	if got := result.DurationSeconds(); got != 10.25 {
		t.Fatalf("duration = %v", got)
	}
	if !math.IsNaN(Result{Format: Format{Duration: "bad"}}.DurationSeconds()) {
		t.Fatal("expected NaN for unparsable duration")
	}
}

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.mp4")
	if err := os.WriteFile(path, []byte("v"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProberDuration(t *testing.T) {
	path := writeVideo(t)
	prober := New("")
	var gotName string
	var gotArgs []string
	prober.SetRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte(`{"streams":[{"codec_type":"video"}],"format":{"duration":"10.000000"}}`), nil
	})
	duration, err := prober.Duration(context.Background(), path)
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if duration != 10 {
		t.Fatalf("duration = %v", duration)
	}
	if gotName != "ffprobe" || gotArgs[len(gotArgs)-1] != path {
		t.Fatalf("unexpected invocation %s %v", gotName, gotArgs)
	}
}

func TestProberErrors(t *testing.T) {
	path := writeVideo(t)
	cases := []struct {
		name   string
		output string
		err    error
		want   error
	}{
		{"tool failure", "boom", errors.New("exit status 1"), services.ErrExternalTool},
		{"bad json", "{", nil, services.ErrExternalTool},
		{"no video", `{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`, nil, services.ErrValidation},
		{"zero duration", `{"streams":[{"codec_type":"video"}],"format":{}}`, nil, services.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prober := New("ffprobe")
			prober.SetRunner(func(context.Context, string, ...string) ([]byte, error) {
				return []byte(tc.output), tc.err
			})
			if _, err := prober.Duration(context.Background(), path); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := New("").Duration(context.Background(), filepath.Join(t.TempDir(), "missing.mp4")); !errors.Is(err, services.ErrContractViolation) {
		t.Fatalf("missing file should be a contract violation, got %v", err)
	}
}
