// Package llm talks to an OpenAI-compatible chat completion endpoint to
// decide which detected labels make sound and to write a short synthesis
// prompt per label.
//
// Every call is a single HTTP request. Failures are tagged with the
// services markers (HTTP status, transport timeout, empty or malformed
// content) so the caller's resilience policy can triage them.
package llm
