package validation

import (
	"fmt"
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

// CapabilityCatalog is the read-only view of the catalog the resolver needs.
// *catalog.Catalog satisfies it.
type CapabilityCatalog interface {
	Paths() []string
	Categories() []string
	Modules(category string) ([]string, bool)
	Functions(category, module string) ([]string, bool)
}

// ValidateCapabilityPaths reports one capability-not-found diagnostic per step
// whose path is absent from the catalog. The suggestion names the first
// segment that fails to resolve and lists the alternatives at that level.
func ValidateCapabilityPaths(steps []schema.Step, catalog CapabilityCatalog) *schema.Result {
	result := &schema.Result{}
	if catalog == nil {
		return result
	}

	known := make(map[string]struct{})
	for _, p := range catalog.Paths() {
		known[p] = struct{}{}
	}

	for _, step := range steps {
		if _, ok := known[step.CapabilityPath]; ok {
			continue
		}
		rule, suggestion := resolveMiss(step, catalog)
		result.Add(schema.NewDiagnostic(schema.KindCapabilityNotFound, stepLocation(step, "capabilityPath"),
			"capability %q not found in catalog", step.CapabilityPath).
			WithRule(rule).
			WithSuggestion(suggestion))
	}
	return result
}

// resolveMiss walks category, then module, then function and stops at the
// first segment the catalog does not know.
func resolveMiss(step schema.Step, catalog CapabilityCatalog) (rule, suggestion string) {
	category, module, function, ok := step.Segments()
	if !ok {
		return "unknown-category", "Capability paths have three segments: category.module.function. " +
			availableList("categories", catalog.Categories())
	}

	modules, ok := catalog.Modules(category)
	if !ok {
		return "unknown-category", fmt.Sprintf("Unknown category %q. %s",
			category, availableList("categories", catalog.Categories()))
	}

	functions, ok := catalog.Functions(category, module)
	if !ok {
		return "unknown-module", fmt.Sprintf("Category %q has no module %q. %s",
			category, module, availableList("modules", modules))
	}

	return "unknown-function", fmt.Sprintf("Module \"%s.%s\" has no function %q. %s",
		category, module, function, availableList("functions", functions))
}

func availableList(what string, names []string) string {
	if len(names) == 0 {
		return fmt.Sprintf("No %s are available.", what)
	}
	return fmt.Sprintf("Available %s: %s.", what, strings.Join(names, ", "))
}

func stepLocation(step schema.Step, field string) string {
	return "steps." + step.ID + "." + field
}
