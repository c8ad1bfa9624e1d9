// Package limits provides validation, sanitization, and bounds for the
// backfill pipeline.
//
// This package includes:
//   - Input validation for catalog lookup keys
//   - Error message sanitization before persistence
//   - Clamping functions enforcing safe bounds on concurrency, retries,
//     rate budgets, and batch sizes
//
// Most users should import the root package github.com/aager/image-backfill
// which applies these bounds during configuration validation.
package limits
