// Package runstore persists pipeline runs in SQLite so a run can be
// inspected, corrected and re-composed by later CLI invocations.
//
// A run row holds the video metadata, raw detections and final outputs.
// Child tables hold the per-label state: intervals and synthesized assets.
// Save replaces a run's children in one transaction, so readers always see a
// consistent snapshot. When changing the schema, update schema.sql and bump
// schemaVersion.
//
// Lock guards a run's workspace directory with an advisory file lock so only
// one process mutates a run at a time.
package runstore
