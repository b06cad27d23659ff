// Package services defines shared utilities consumed by the pipeline stages
// and the external service clients.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, object labels, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. Every client maps its own
//     fault taxonomy onto these markers so the resilience package can triage
//     failures uniformly (fatal, skip, retry).
//
// Use these helpers when wiring new clients so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
