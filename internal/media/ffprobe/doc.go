// Package ffprobe reads container metadata for the source video.
//
// Prober runs ffprobe with JSON output and exposes the stream list and the
// playable duration. Failures are tagged with the services error markers so
// the pipeline can classify them.
package ffprobe
