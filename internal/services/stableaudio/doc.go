// Package stableaudio requests sound clips from a text-to-audio server and
// writes them as WAV assets.
package stableaudio
