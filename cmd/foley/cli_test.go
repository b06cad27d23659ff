package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"foley/internal/config"
	"foley/internal/runstore"
	"foley/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	video      string
	synth      *synthServer
}

// synthServer answers /generate with a constant waveform of the requested
// length and records the prompts it saw.
type synthServer struct {
	mu      sync.Mutex
	prompts []string
}

func (s *synthServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt   string  `json:"prompt"`
			Duration float64 `json:"duration"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode synth request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.prompts = append(s.prompts, req.Prompt)
		s.mu.Unlock()
		frames := make([]float32, int(req.Duration*8000))
		for i := range frames {
			frames[i] = 0.25
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sample_rate": 8000,
			"audios":      [][][]float32{{frames}},
		})
	})
	return mux
}

func (s *synthServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func analyzerHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"file_id":"f-1"}`))
	})
	mux.HandleFunc("GET /files/f-1/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"ACTIVE"}`))
	})
	mux.HandleFunc("POST /models/generate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"summary": "a dog runs past a tree",
			"objects": [
				{"label": "dog", "start_time": 0.5, "end_time": 1.5, "confidence": 0.9},
				{"label": "tree", "start_time": 0, "end_time": 4, "confidence": 0.8}
			]
		}`))
	})
	return mux
}

// llmHandler keeps "dog" as the only sounding label and writes a fixed
// prompt for it.
func llmHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		content := "dog"
		if n := len(req.Messages); n > 0 && strings.HasPrefix(strings.TrimSpace(req.Messages[n-1].Content), "{") {
			content = "a small dog barking"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	})
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	synth := &synthServer{}
	analyzerSrv := httptest.NewServer(analyzerHandler())
	t.Cleanup(analyzerSrv.Close)
	llmSrv := httptest.NewServer(llmHandler())
	t.Cleanup(llmSrv.Close)
	synthSrv := httptest.NewServer(synth.handler(t))
	t.Cleanup(synthSrv.Close)

	opts = append([]testsupport.ConfigOption{
		testsupport.WithServiceURLs(analyzerSrv.URL, llmSrv.URL+"/v1/chat/completions", synthSrv.URL),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Composer.SampleRate = 8000
	cfg.Composer.FFprobeBinary = writeScript(t, base, "ffprobe",
		`echo '{"streams":[{"index":0,"codec_type":"video"}],"format":{"duration":"4.0"}}'`)
	cfg.Composer.FFmpegBinary = writeScript(t, base, "ffmpeg",
		`for last; do :; done
: > "$last"`)
	cfg.Workflow.RequestsPerSecond = 0
	cfg.Logging.Level = "error"

	configPath := filepath.Join(base, "foley.toml")
	writeTestConfig(t, configPath, cfg)

	video := filepath.Join(base, "clips", "dog.mp4")
	testsupport.WriteFile(t, video, 1024)

	return &cliTestEnv{cfg: cfg, configPath: configPath, video: video, synth: synth}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, "bin", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func onlyRun(t *testing.T, cfg *config.Config) runstore.Run {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	runs, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}
	run, err := store.Get(context.Background(), runs[0].ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	return run
}

func TestRunThenCorrect(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run", env.video}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Wrote ")
	requireContains(t, out, "Dog")

	run := onlyRun(t, env.cfg)
	if run.Status != runstore.StatusCompleted {
		t.Fatalf("status = %s (%s)", run.Status, run.ErrorMessage)
	}
	wantOutput := filepath.Join(env.cfg.Paths.OutputDir, run.ID, "final_video_with_audio.mp4")
	if run.OutputPath != wantOutput {
		t.Fatalf("output = %s, want %s", run.OutputPath, wantOutput)
	}
	if _, err := os.Stat(wantOutput); err != nil {
		t.Fatalf("bound video missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.RunDir(run.ID), "final_output.wav")); err != nil {
		t.Fatalf("composed track missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.RunDir(run.ID), "run.log")); err != nil {
		t.Fatalf("run log missing: %v", err)
	}
	if got := env.synth.seen(); len(got) != 1 || got[0] != "a small dog barking" {
		t.Fatalf("synth prompts = %v", got)
	}

	prefix := run.ID[:8]
	out, _, err = runCLI(t, []string{"regenerate", prefix, "dog", "--prompt", "deep bark", "--skip-bind"}, env.configPath)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	requireContains(t, out, `with prompt "deep bark"`)
	requireContains(t, out, "Composed ")
	if got := env.synth.seen(); got[len(got)-1] != "deep bark" {
		t.Fatalf("regenerate used prompt %q", got[len(got)-1])
	}

	custom := filepath.Join(t.TempDir(), "custom.mp4")
	out, _, err = runCLI(t, []string{"bind", prefix, "--output", custom}, env.configPath)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	requireContains(t, out, custom)
	if _, err := os.Stat(custom); err != nil {
		t.Fatalf("custom output missing: %v", err)
	}

	out, _, err = runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, prefix)
	requireContains(t, out, "completed")

	out, _, err = runCLI(t, []string{"show", prefix}, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "deep bark")
	requireContains(t, out, "Tree")
	requireContains(t, out, "irrelevant")
}

func TestRemoveRun(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"run", env.video}, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	run := onlyRun(t, env.cfg)

	out, _, err := runCLI(t, []string{"rm", run.ID[:8]}, env.configPath)
	if err != nil {
		t.Fatalf("rm: %v", err)
	}
	requireContains(t, out, "Removed run "+run.ID[:8])
	if _, err := os.Stat(env.cfg.RunDir(run.ID)); !os.IsNotExist(err) {
		t.Fatalf("run dir should be gone, stat err = %v", err)
	}
	out, _, err = runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}

func TestRunRequiresCredentials(t *testing.T) {
	for _, key := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY", "AUDIO_API_KEY"} {
		t.Setenv(key, "")
	}
	env := setupCLITestEnv(t, testsupport.WithoutCredentials())
	_, _, err := runCLI(t, []string{"run", env.video}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "missing credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
	if got := env.synth.seen(); len(got) != 0 {
		t.Fatalf("no service should be called, synth saw %v", got)
	}
}

func TestShowAndRemoveStoredRun(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	run := testsupport.SaveRun(t, store, "0f5c1e2a-stored", env.video)

	out, _, err := runCLI(t, []string{"show", "0f5c1e2a"}, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "engine hum")
	requireContains(t, out, "Car")

	out, _, err = runCLI(t, []string{"show", "0f5c", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("show --json: %v", err)
	}
	var decoded runstore.Run
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode show --json: %v\n%s", err, out)
	}
	if decoded.ID != run.ID || len(decoded.Labels) != 1 || decoded.Labels[0].Prompt != "engine hum" {
		t.Fatalf("unexpected run %+v", decoded)
	}

	marker := filepath.Join(env.cfg.RunDir(run.ID), "keep.txt")
	testsupport.WriteFile(t, marker, 8)
	if _, _, err := runCLI(t, []string{"rm", run.ID, "--keep-files"}, env.configPath); err != nil {
		t.Fatalf("rm --keep-files: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("--keep-files removed the run dir: %v", err)
	}
	if _, _, err := runCLI(t, []string{"show", run.ID}, env.configPath); err == nil {
		t.Fatal("removed run should no longer resolve")
	}
}

func TestRegenerateUnknownLabel(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"run", env.video}, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	run := onlyRun(t, env.cfg)
	_, _, err := runCLI(t, []string{"regenerate", run.ID, "cat"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown label") {
		t.Fatalf("expected unknown label error, got %v", err)
	}
}

func TestRunMissingVideo(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"run", filepath.Join(t.TempDir(), "missing.mp4")}, env.configPath)
	if err == nil {
		t.Fatal("expected error for missing video")
	}
}

func TestShowUnknownRun(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"show", "abcdef"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no run matches") {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestRunsEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}

func TestStatusReportsChecks(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status", "--check-services"}, env.configPath)
	requireContains(t, out, "Work directory")
	requireContains(t, out, "Synthesis service")
	if err != nil && !strings.Contains(err.Error(), "check(s) failed") {
		t.Fatalf("unexpected status error: %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}
