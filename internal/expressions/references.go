package expressions

import (
	"regexp"
	"strings"
)

// Template markers delimiting a binding reference.
const (
	OpenMarker  = "{{"
	CloseMarker = "}}"
)

// referenceRe matches {{ name(.prop|[n])* }}; whitespace inside the markers is tolerated.
var referenceRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)((?:\.[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\])*)\s*\}\}`)

// ReferencePattern is the anchored form of a single template reference, for schema use.
const ReferencePattern = `^\{\{\s*[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\])*\s*\}\}$`

// IdentifierPattern is the grammar of a binding name.
const IdentifierPattern = `^[A-Za-z_][A-Za-z0-9_]*$`

// Reference is one template reference found in a string.
type Reference struct {
	Name   string // root binding, e.g. "rows"
	Path   string // accessor suffix, e.g. ".items[0].id"
	Raw    string // full match including markers
	Offset int    // byte offset of Raw in the scanned text
}

// Extract returns every template reference in s, in order of appearance.
func Extract(s string) []Reference {
	if !strings.Contains(s, OpenMarker) {
		return nil
	}

	matches := referenceRe.FindAllStringSubmatchIndex(s, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Reference{
			Name:   s[m[2]:m[3]],
			Path:   s[m[4]:m[5]],
			Raw:    s[m[0]:m[1]],
			Offset: m[0],
		})
	}
	return refs
}

// ExtractNames returns the distinct root names referenced in s, in first-appearance order.
func ExtractNames(s string) []string {
	refs := Extract(s)
	if len(refs) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(refs))
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, dup := seen[r.Name]; dup {
			continue
		}
		seen[r.Name] = struct{}{}
		names = append(names, r.Name)
	}
	return names
}

// IsReference reports whether s is exactly one template reference.
func IsReference(s string) bool {
	refs := Extract(s)
	return len(refs) == 1 && refs[0].Raw == s
}
