// Package textutil turns free-form labels into strings that are safe to use
// as single path elements.
package textutil
