// Package resilience wraps calls to unreliable external services with error
// triage and exponential backoff.
//
// A Policy pairs backoff parameters with a Classifier that sorts every error
// into one of three classes. Fatal errors propagate immediately, Skip errors
// become an explicit empty Result, and Retryable errors are retried with a
// doubling delay until the delay would pass the ceiling, at which point the
// call is skipped as well. Do is generic over the operation's result type.
package resilience
