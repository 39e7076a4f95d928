package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/flowcheck/pkg/schema"
)

// File is the on-disk catalog document.
type File struct {
	Categories []Category `json:"categories" yaml:"categories"`
}

// Parse decodes a catalog document. Content starting with '{' is read as JSON,
// anything else as YAML. Unknown fields are rejected in both formats.
func Parse(data []byte) (*Catalog, error) {
	var f File
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, schema.NewError(schema.ErrCodeCatalog, "catalog document is empty")
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeCatalog, "parse catalog JSON: %v", err).WithCause(err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, schema.NewErrorf(schema.ErrCodeCatalog, "parse catalog YAML: %v", err).WithCause(err)
		}
	}

	if len(f.Categories) == 0 {
		return nil, schema.NewError(schema.ErrCodeCatalog, "catalog declares no categories")
	}
	return FromTree(f.Categories)
}

// LoadFile reads and parses a catalog file (.json, .yaml or .yml).
func LoadFile(path string) (*Catalog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return nil, schema.NewErrorf(schema.ErrCodeCatalog,
			"unsupported catalog file extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCatalog, "read catalog %s: %v", path, err).WithCause(err)
	}
	return Parse(data)
}

// MarshalYAML renders the catalog in its file form.
func (c *Catalog) MarshalYAML() (any, error) {
	return File{Categories: c.Tree()}, nil
}

// MarshalJSON renders the catalog in its file form.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(File{Categories: c.Tree()})
}
