package store

import (
	"context"
	"fmt"

	"github.com/rendis/flowcheck/internal/catalog"
)

// NewCatalogSnapshot captures a catalog under a name.
func NewCatalogSnapshot(name, source string, c *catalog.Catalog) (*CatalogSnapshot, error) {
	content, err := c.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal catalog %q: %w", name, err)
	}
	return &CatalogSnapshot{
		Name:      name,
		Source:    source,
		Content:   content,
		Functions: c.Count(),
	}, nil
}

// Catalog decodes the snapshot content.
func (c *CatalogSnapshot) Catalog() (*catalog.Catalog, error) {
	cat, err := catalog.Parse(c.Content)
	if err != nil {
		return nil, fmt.Errorf("decode catalog snapshot %q: %w", c.Name, err)
	}
	return cat, nil
}

// LoadCatalog fetches a snapshot by name and decodes it.
func LoadCatalog(ctx context.Context, s Store, name string) (*catalog.Catalog, error) {
	snap, err := s.GetCatalog(ctx, name)
	if err != nil {
		return nil, err
	}
	return snap.Catalog()
}
