// Package repository provides typed access to the job table.
//
// Repository[P, R] wraps a core.Store and converts between the serialized
// payloads kept in the database and the caller's parameter and result types.
// It applies defaults (a missing due date means now), validates input, logs
// every lifecycle transition and broadcasts core.Event values to subscribers.
//
// Most users should import the root package github.com/jdziat/simple-job-worker
// which re-exports NewRepository.
package repository
