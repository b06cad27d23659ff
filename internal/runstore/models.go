package runstore

import "time"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Run is the persisted form of a pipeline run.
type Run struct {
	ID             string
	VideoPath      string
	VideoDuration  float64
	Summary        string
	Status         Status
	Stage          string
	ErrorMessage   string
	DetectionsJSON string
	SelectedSample int
	AudioPath      string
	OutputPath     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Labels         []Label
}

// Label is the persisted per-label state. Positions in Intervals and the
// Position of each Asset pair an asset with the interval it was made for.
type Label struct {
	Name            string
	Relevant        bool
	Prompt          string
	Status          string
	ErrorMessage    string
	DurationSeconds float64
	Intervals       []Interval
	Assets          []Asset
}

// Interval is one aggregated appearance of a label.
type Interval struct {
	Start float64
	End   float64
}

// Asset is one synthesized clip.
type Asset struct {
	Position        int
	Sample          int
	Path            string
	DurationSeconds float64
}

// Summary is the row shown by run listings.
type Summary struct {
	ID         string
	VideoPath  string
	Status     Status
	Stage      string
	Labels     int
	OutputPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
