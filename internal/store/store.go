package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Catalog snapshots
	SaveCatalog(ctx context.Context, snap *CatalogSnapshot) error
	GetCatalog(ctx context.Context, name string) (*CatalogSnapshot, error)
	ListCatalogs(ctx context.Context) ([]*CatalogSnapshot, error)
	DeleteCatalog(ctx context.Context, name string) error

	// Validation history (append-only)
	AppendRun(ctx context.Context, run *ValidationRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*ValidationRun, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
