// Package storage provides the GORM implementation of core.Store.
//
// This package includes:
//   - GormStorage: the claiming protocol, row-locked progress updates,
//     duplicate lookup and pruning for PostgreSQL and SQLite
//   - Open: a dialect switch that connects and configures the pool
//
// Most users should import the root package github.com/jdziat/simple-job-worker
// which provides NewGormStorage() to create storage instances.
package storage
