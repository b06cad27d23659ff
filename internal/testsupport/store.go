package testsupport

import (
	"context"
	"testing"
	"time"

	"foley/internal/config"
	"foley/internal/runstore"
)

// MustOpenStore opens a runstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.Open(cfg.Paths.StatePath)
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SaveRun persists a minimal completed run with one ready label.
func SaveRun(t testing.TB, store *runstore.Store, id, video string) runstore.Run {
	t.Helper()

	run := runstore.Run{
		ID:            id,
		VideoPath:     video,
		VideoDuration: 5,
		Summary:       "test clip",
		Status:        runstore.StatusCompleted,
		Stage:         "bind",
		CreatedAt:     time.Now().UTC(),
		Labels: []runstore.Label{{
			Name:            "car",
			Relevant:        true,
			Prompt:          "engine hum",
			Status:          "ready",
			DurationSeconds: 2,
			Intervals:       []runstore.Interval{{Start: 1, End: 3}},
			Assets:          []runstore.Asset{{Position: 0, Sample: 0, Path: "/tmp/car_0_2s.wav", DurationSeconds: 2}},
		}},
	}
	if err := store.Save(context.Background(), run); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return run
}
