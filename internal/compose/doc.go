// Package compose mixes synthesized assets onto a fixed-length timeline and
// binds the mix to the source video.
//
// Mixer.Mix allocates the whole buffer up front, adds every asset at its
// interval start (truncating at the end of the video) and clamps once after
// all additions. Binder replaces the video's audio track with the mix using
// ffmpeg.
package compose
