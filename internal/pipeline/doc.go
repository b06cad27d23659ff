// Package pipeline sequences a foley run:
//
//	analyze → aggregate → relevance → prompt → synthesize → compose → bind
//
// The Orchestrator owns the injected service clients and applies a
// resilience policy and a rate limiter at every external boundary. Per-label
// work in the prompt and synthesize stages runs on a bounded worker pool;
// each LabelState carries its own lock so concurrent labels never share a
// write target.
//
// Failure handling follows three rules. A fatal service error or a contract
// violation aborts the run with a *StageError naming the stage. A skipped
// per-label call drops that label and the run continues. A skipped
// relevance call marks every label irrelevant, so the run still produces a
// silent track.
//
// Regenerate, Compose and Bind re-enter a finished run so a single label can
// be corrected without repeating analysis.
package pipeline
