// Package logging builds the slog loggers used by foley.
//
// Console output is a single readable line per record with the component and
// label lifted into the prefix; JSON output is used for log files and for the
// per-run log kept beside a run's artifacts. Context helpers tag records with
// the run ID, stage and label carried on a context.Context.
package logging
