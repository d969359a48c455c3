// Package core provides the fundamental types and interfaces for the jobs package.
//
// This package contains:
//   - The Job data model with GORM annotations
//   - JobState and its persisted string values
//   - Store interface defining the persistence contract
//   - Event types for repository monitoring
//   - Sentinel errors
//
// Most users should import the root package github.com/jdziat/simple-job-worker
// instead of this package directly.
package core
