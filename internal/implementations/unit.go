package implementations

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Func is one exported callable of an implementation unit.
type Func func(ctx context.Context, params map[string]any) (any, error)

// Unit is a loaded implementation backing one catalog module.
type Unit interface {
	// Functions lists the exported callable names, sorted.
	Functions() []string
	Call(ctx context.Context, function string, params map[string]any) (any, error)
	Close() error
}

// Loader produces the Unit for one module. Loaders may perform I/O.
type Loader func(ctx context.Context) (Unit, error)

// Registry is the static table of category.module → Loader.
// It is populated at startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[string]Loader),
	}
}

func moduleKey(category, module string) string {
	return category + "." + module
}

// Register adds a loader. Returns error on empty names, nil loaders or duplicates.
func (r *Registry) Register(category, module string, loader Loader) error {
	if category == "" || module == "" {
		return schema.NewError(schema.ErrCodeValidation, "implementation category and module are required")
	}
	if loader == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "loader for %s is nil", moduleKey(category, module))
	}

	key := moduleKey(category, module)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loaders[key]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "implementation %q already registered", key)
	}
	r.loaders[key] = loader
	return nil
}

// Has checks if a module has a registered loader.
func (r *Registry) Has(category, module string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaders[moduleKey(category, module)]
	return ok
}

// Load resolves and runs the loader for a module. Loader panics are
// converted into errors.
func (r *Registry) Load(ctx context.Context, category, module string) (unit Unit, err error) {
	key := moduleKey(category, module)

	r.mu.RLock()
	loader, ok := r.loaders[key]
	r.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no implementation registered for module %q", key)
	}

	defer func() {
		if rec := recover(); rec != nil {
			unit = nil
			err = schema.NewErrorf(schema.ErrCodeLoad, "loading %q panicked: %v", key, rec)
		}
	}()

	unit, err = loader(ctx)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, schema.NewErrorf(schema.ErrCodeLoad, "loader for %q returned no unit", key)
	}
	return unit, nil
}

// Modules returns every registered category.module key, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.loaders))
	for k := range r.loaders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of registered modules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loaders)
}

// Call loads the unit behind a capability path and invokes the function once.
func (r *Registry) Call(ctx context.Context, path string, params map[string]any) (any, error) {
	p, err := catalog.ParsePath(path)
	if err != nil {
		return nil, err
	}

	unit, err := r.Load(ctx, p.Category, p.Module)
	if err != nil {
		return nil, err
	}
	defer unit.Close()

	return unit.Call(ctx, p.Function, params)
}

// StaticUnit is an in-process Unit backed by a fixed function table.
type StaticUnit struct {
	name string
	fns  map[string]Func
}

// NewStaticUnit creates a unit over the given callables.
func NewStaticUnit(name string, fns map[string]Func) *StaticUnit {
	return &StaticUnit{name: name, fns: fns}
}

// Static returns a Loader that always yields the same in-process unit.
func Static(name string, fns map[string]Func) Loader {
	unit := NewStaticUnit(name, fns)
	return func(context.Context) (Unit, error) { return unit, nil }
}

func (u *StaticUnit) Functions() []string {
	names := make([]string, 0, len(u.fns))
	for n := range u.fns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (u *StaticUnit) Call(ctx context.Context, function string, params map[string]any) (any, error) {
	fn, ok := u.fns[function]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "%s has no function %q", u.name, function)
	}
	if params == nil {
		params = map[string]any{}
	}
	return fn(ctx, params)
}

func (u *StaticUnit) Close() error { return nil }
