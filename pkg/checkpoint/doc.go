// Package checkpoint provides checkpoint store implementations for the
// backfill pipeline.
//
// This package includes:
//   - GormStore: a GORM/SQLite-backed store holding run lineages and
//     their append-only completed-item entries
//   - MemoryStore: an in-memory store for tests and dry runs
//
// The CheckpointStore interface is defined in pkg/core and must be
// implemented by any custom backend.
//
// Most users do not create stores directly: Build in the root package
// github.com/aager/image-backfill opens one from configuration.
package checkpoint
