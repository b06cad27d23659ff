package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"foley/internal/services"
)

func chatServer(t *testing.T, status int, content string, inspect func(*http.Request, chatCompletionRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req chatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if inspect != nil {
			inspect(r, req)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			return
		}
		payload := map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
}

func TestRelevantLabelsParsesCommaList(t *testing.T) {
	server := chatServer(t, http.StatusOK, "dog, car, dog interacting with ball.", func(r *http.Request, req chatCompletionRequest) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		if req.Model != "demo" || len(req.Messages) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		if !strings.Contains(req.Messages[1].Content, "dog, car, traffic light") {
			t.Errorf("labels missing from user prompt: %q", req.Messages[1].Content)
		}
	})
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "demo"})
	got, err := client.RelevantLabels(context.Background(), []string{"dog", "car", "traffic light"})
	if err != nil {
		t.Fatalf("RelevantLabels: %v", err)
	}
	want := []string{"dog", "car", "dog interacting with ball"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAudioPromptTrimsToTenWords(t *testing.T) {
	server := chatServer(t, http.StatusOK, `"Sound of a big friendly dog barking loudly in a quiet park at night"`, func(_ *http.Request, req chatCompletionRequest) {
		var sent PromptRequest
		if err := json.Unmarshal([]byte(req.Messages[1].Content), &sent); err != nil {
			t.Errorf("user content is not a PromptRequest: %v", err)
		}
		if sent.Label != "dog" || sent.DurationSeconds != 3.5 {
			t.Errorf("unexpected prompt request %+v", sent)
		}
	})
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	got, err := client.AudioPrompt(context.Background(), PromptRequest{Label: "dog", DurationSeconds: 3.5, Intervals: 2})
	if err != nil {
		t.Fatalf("AudioPrompt: %v", err)
	}
	if got != "Sound of a big friendly dog barking loudly in a" {
		t.Fatalf("prompt = %q", got)
	}
}

func TestClientMapsFailuresToMarkers(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		content string
		want    error
	}{
		{"rate limited", http.StatusTooManyRequests, "", services.ErrRateLimited},
		{"outage", http.StatusServiceUnavailable, "", services.ErrUnavailable},
		{"bad request", http.StatusBadRequest, "", services.ErrInvalidRequest},
		{"server error", http.StatusBadGateway, "", services.ErrTransient},
		{"empty content", http.StatusOK, "   ", services.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			server := chatServer(t, tc.status, tc.content, func(*http.Request, chatCompletionRequest) { calls++ })
			defer server.Close()

			client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
			_, err := client.AudioPrompt(context.Background(), PromptRequest{Label: "dog"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if calls != 1 {
				t.Fatalf("client must not retry internally, calls=%d", calls)
			}
		})
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.RelevantLabels(context.Background(), []string{"dog"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRelevantLabelsEmptyInputSkipsRequest(t *testing.T) {
	client := NewClient(Config{APIKey: "key", BaseURL: "http://127.0.0.1:1"})
	got, err := client.RelevantLabels(context.Background(), nil)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := chatServer(t, http.StatusOK, "```json\n{\"ok\":true}\n```", nil)
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestParseLabelList(t *testing.T) {
	cases := map[string][]string{
		"dog, car":                 {"dog", "car"},
		"[\"dog\", \"car\"]":       {"dog", "car"},
		"- dog\n- bird\n":          {"dog", "bird"},
		"dog, dog, , cat.":         {"dog", "cat"},
		"":                         nil,
	}
	for input, want := range cases {
		if got := ParseLabelList(input); !reflect.DeepEqual(got, want) {
			t.Errorf("ParseLabelList(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestDecodeLLMJSONStripsProse(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}
	if err := DecodeLLMJSON("Here you go: {\"summary\":\"a dog\"} thanks", &out); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if out.Summary != "a dog" {
		t.Fatalf("summary = %q", out.Summary)
	}
}
