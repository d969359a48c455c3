// Package security provides validation, sanitization, and limits for the jobs package.
//
// This package includes:
//   - Input validation for job type names and runner names
//   - Size limits for serialized parameters and progress counts
//   - Error message sanitization before messages reach the logs
//
// Most users should import the root package github.com/jdziat/simple-job-worker
// which re-exports these functions.
package security
