package catalog

import (
	_ "embed"
	"sync"
)

//go:embed builtin.yaml
var builtinYAML []byte

var (
	builtinOnce sync.Once
	builtinTree []Category
	builtinErr  error
)

// Builtin returns a fresh Catalog holding the built-in capabilities.
// Each call returns an independent copy so callers may merge into it.
func Builtin() (*Catalog, error) {
	builtinOnce.Do(func() {
		c, err := Parse(builtinYAML)
		if err != nil {
			builtinErr = err
			return
		}
		builtinTree = c.Tree()
	})
	if builtinErr != nil {
		return nil, builtinErr
	}
	return FromTree(builtinTree)
}
