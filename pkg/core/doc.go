// Package core provides the fundamental types and interfaces for the
// backfill pipeline.
//
// This package contains:
//   - WorkItem and checkpoint entry data models
//   - Capability ports implemented by the adapter packages
//   - Event types for run monitoring
//   - The permanent/transient failure taxonomy
//
// Most users should import the root package github.com/aager/image-backfill
// instead of this package directly.
package core
