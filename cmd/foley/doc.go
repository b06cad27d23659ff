// Command foley adds synthesized, object-synchronized sound to silent videos.
//
// `foley run` drives the whole pipeline. The correction commands
// (regenerate, compose, bind) re-enter a stored run so a single label can be
// re-synthesized with an edited prompt without repeating analysis.
package main
