// Package worker provides the Worker loop that drives a job repository.
//
// This package includes:
//   - Worker: claims due jobs of one type and hands them to a Processor
//   - Settings: delays, successor interval, bootstrap and pruning
//   - WorkerOption: logger, runner name, metrics, retries and schedules
//   - Capability interfaces a Processor may implement to hook into the loop
//   - Metrics: Prometheus collectors and a Stats snapshot
//
// A worker is a single sequential loop. Several workers, in one process or
// many, may share a job table; the repository's claim protocol guarantees
// each job is started by exactly one runner.
package worker
