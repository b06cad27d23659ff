// Package gemini submits a video to the video-understanding service and
// returns the objects it saw.
//
// Analyze uploads the file, polls until the service marks it active, asks
// for an analysis against a fixed response schema and validates the reply
// before converting it into timeline detections. A schema-invalid reply is
// tagged services.ErrValidation.
package gemini
