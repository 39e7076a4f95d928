package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowcheck/pkg/schema"
)

// CatalogSnapshot is a named, persisted capability catalog.
// Content holds the catalog tree as JSON.
type CatalogSnapshot struct {
	Name      string          `json:"name"`
	Source    string          `json:"source,omitempty"`
	Content   json.RawMessage `json:"content"`
	Functions int             `json:"functions"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ValidationRun is one recorded validation of a document.
type ValidationRun struct {
	ID          string              `json:"id"`
	Document    string              `json:"document"`
	Sequence    int64               `json:"sequence"`
	Catalog     string              `json:"catalog,omitempty"`
	Valid       bool                `json:"valid"`
	ErrorCount  int                 `json:"error_count"`
	Diagnostics []schema.Diagnostic `json:"diagnostics"`
	Unverified  []string            `json:"unverified,omitempty"`
	DurationMs  int64               `json:"duration_ms"`
	CreatedAt   time.Time           `json:"created_at"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Document  string
	ValidOnly *bool
	Since     *time.Time
	Limit     int
}
