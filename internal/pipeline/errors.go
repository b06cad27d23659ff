package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLabel is returned when a correction names a label the run
	// never detected.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrLabelDropped is returned when a regenerated label produced no
	// usable audio.
	ErrLabelDropped = errors.New("label produced no audio")
	// ErrNotComposed is returned when binding is requested before a track
	// was composed.
	ErrNotComposed = errors.New("run has no composed track")
)

// StageError reports the stage at which a run aborted.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
