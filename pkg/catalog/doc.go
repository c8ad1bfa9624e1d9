// Package catalog provides catalog adapters for the backfill pipeline.
//
// This package includes:
//   - GormCatalog: a GORM-backed adapter (SQLite or any GORM dialector)
//   - PgxCatalog: a native pgx adapter for production Postgres catalogs
//   - Connection pool tuning shared by both
//
// The CatalogReader and CatalogWriter interfaces are defined in pkg/core
// and must be implemented by any custom adapter.
package catalog
