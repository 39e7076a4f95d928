package catalog

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/flowcheck/pkg/schema"
)

var segmentRe = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Path addresses one function as category.module.function.
type Path struct {
	Category string
	Module   string
	Function string
}

// ParsePath splits a dotted capability path and checks each segment.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Path{}, schema.NewErrorf(schema.ErrCodeCatalog,
			"capability path %q must have three segments (category.module.function)", s)
	}
	p := Path{Category: parts[0], Module: parts[1], Function: parts[2]}
	if err := p.check(); err != nil {
		return Path{}, err
	}
	return p, nil
}

func (p Path) String() string {
	return p.Category + "." + p.Module + "." + p.Function
}

func (p Path) check() error {
	for _, seg := range []string{p.Category, p.Module, p.Function} {
		if !segmentRe.MatchString(seg) {
			return schema.NewErrorf(schema.ErrCodeCatalog,
				"invalid segment %q in %q: segments are lowercase letters, digits and hyphens", seg, p.String())
		}
	}
	return nil
}

// Function describes one callable capability.
type Function struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Signature   string `json:"signature,omitempty" yaml:"signature,omitempty"`
}

// Module groups functions backed by one implementation unit.
type Module struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Functions   []Function `json:"functions" yaml:"functions"`
}

// Category groups modules.
type Category struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Modules     []Module `json:"modules" yaml:"modules"`
}

type moduleEntry struct {
	description string
	functions   map[string]Function
}

type categoryEntry struct {
	description string
	modules     map[string]*moduleEntry
}

// Catalog is a thread-safe category → module → function registry.
// Validators only read from it.
type Catalog struct {
	mu         sync.RWMutex
	categories map[string]*categoryEntry
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{categories: make(map[string]*categoryEntry)}
}

// FromTree builds a Catalog from a category tree.
func FromTree(tree []Category) (*Catalog, error) {
	c := New()
	for _, cat := range tree {
		if err := c.AddCategory(cat); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds one function. Returns an error on invalid names or duplicates.
func (c *Catalog) Register(p Path, fn Function) error {
	if err := p.check(); err != nil {
		return err
	}
	if fn.Name == "" {
		fn.Name = p.Function
	}
	if fn.Name != p.Function {
		return schema.NewErrorf(schema.ErrCodeCatalog,
			"function name %q does not match path %q", fn.Name, p.String())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cat, ok := c.categories[p.Category]
	if !ok {
		cat = &categoryEntry{modules: make(map[string]*moduleEntry)}
		c.categories[p.Category] = cat
	}
	mod, ok := cat.modules[p.Module]
	if !ok {
		mod = &moduleEntry{functions: make(map[string]Function)}
		cat.modules[p.Module] = mod
	}
	if _, exists := mod.functions[p.Function]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "capability %q already registered", p.String())
	}
	mod.functions[p.Function] = fn
	return nil
}

// AddCategory registers every function of a category tree, keeping descriptions.
func (c *Catalog) AddCategory(cat Category) error {
	if cat.Name == "" {
		return schema.NewError(schema.ErrCodeCatalog, "category name is empty")
	}
	for _, mod := range cat.Modules {
		if mod.Name == "" {
			return schema.NewErrorf(schema.ErrCodeCatalog, "category %q has a module with an empty name", cat.Name)
		}
		if len(mod.Functions) == 0 {
			return schema.NewErrorf(schema.ErrCodeCatalog, "module %s.%s declares no functions", cat.Name, mod.Name)
		}
		for _, fn := range mod.Functions {
			if err := c.Register(Path{Category: cat.Name, Module: mod.Name, Function: fn.Name}, fn); err != nil {
				return err
			}
		}
		c.describe(cat.Name, cat.Description, mod.Name, mod.Description)
	}
	return nil
}

func (c *Catalog) describe(category, catDesc, module, modDesc string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cat := c.categories[category]
	if catDesc != "" {
		cat.description = catDesc
	}
	if modDesc != "" {
		cat.modules[module].description = modDesc
	}
}

// Merge registers every function of other into c.
func (c *Catalog) Merge(other *Catalog) error {
	if other == nil {
		return nil
	}
	for _, cat := range other.Tree() {
		if err := c.AddCategory(cat); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the function descriptor for a dotted path.
func (c *Catalog) Lookup(path string) (Function, bool) {
	p, err := ParsePath(path)
	if err != nil {
		return Function{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	cat, ok := c.categories[p.Category]
	if !ok {
		return Function{}, false
	}
	mod, ok := cat.modules[p.Module]
	if !ok {
		return Function{}, false
	}
	fn, ok := mod.functions[p.Function]
	return fn, ok
}

// Has checks if a capability path is registered.
func (c *Catalog) Has(path string) bool {
	_, ok := c.Lookup(path)
	return ok
}

// Categories returns all category names, sorted.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.categories)
}

// Modules returns the module names of a category, sorted. ok is false for unknown categories.
func (c *Catalog) Modules(category string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cat, ok := c.categories[category]
	if !ok {
		return nil, false
	}
	return sortedKeys(cat.modules), true
}

// Functions returns the function names of a module, sorted. ok is false for unknown modules.
func (c *Catalog) Functions(category, module string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cat, ok := c.categories[category]
	if !ok {
		return nil, false
	}
	mod, ok := cat.modules[module]
	if !ok {
		return nil, false
	}
	return sortedKeys(mod.functions), true
}

// Paths returns every fully qualified capability path, sorted.
func (c *Catalog) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var paths []string
	for catName, cat := range c.categories {
		for modName, mod := range cat.modules {
			for fnName := range mod.functions {
				paths = append(paths, catName+"."+modName+"."+fnName)
			}
		}
	}
	sort.Strings(paths)
	return paths
}

// Count returns the number of registered functions.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, cat := range c.categories {
		for _, mod := range cat.modules {
			n += len(mod.functions)
		}
	}
	return n
}

// Tree returns a sorted, detached copy of the catalog.
func (c *Catalog) Tree() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tree := make([]Category, 0, len(c.categories))
	for _, catName := range sortedKeys(c.categories) {
		cat := c.categories[catName]
		out := Category{Name: catName, Description: cat.description}
		for _, modName := range sortedKeys(cat.modules) {
			mod := cat.modules[modName]
			m := Module{Name: modName, Description: mod.description}
			for _, fnName := range sortedKeys(mod.functions) {
				m.Functions = append(m.Functions, mod.functions[fnName])
			}
			out.Modules = append(out.Modules, m)
		}
		tree = append(tree, out)
	}
	return tree
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
