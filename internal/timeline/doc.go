// Package timeline turns raw object sightings into per-label on-screen
// intervals.
//
// Aggregate is pure: it groups detections by label, merges sightings
// separated by at most the merge gap, drops intervals shorter than the
// minimum duration and rounds the reported bounds to two decimals.
package timeline
