// Package context provides internal context helpers for job execution.
//
// This package is internal and should not be imported directly.
// It carries the job being processed, the runner processing it and the
// progress callbacks bound to both.
package context
