package models

import (
	"path/filepath"
	"strings"
)

// ProjectContext describes the project the tasks refer to. A zero value is an
// unknown project: no surfaces and no element inventory.
type ProjectContext struct {
	// Root is the project root directory, if detected from disk.
	Root string `json:"root,omitempty"`
	// Type is the primary language/ecosystem ("go", "node", ...).
	Type string `json:"type,omitempty"`
	// Frontend is true if the project has a user-facing UI surface.
	Frontend bool `json:"frontend"`
	// Backend is true if the project has server-side code.
	Backend bool `json:"backend"`
	// Database is true if the project carries schemas or migrations.
	Database bool `json:"database"`
	// Elements is the known file inventory, as slash-separated relative paths.
	Elements []string `json:"elements,omitempty"`
	// Known is true when Elements is an authoritative inventory.
	Known bool `json:"known"`
}

// HasElement reports whether ref names a known project element. The match is
// on the full relative path or on a path suffix ("button.tsx" matches
// "src/components/button.tsx").
func (p *ProjectContext) HasElement(ref string) bool {
	if p == nil {
		return false
	}
	ref = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(ref)), "./")
	ref = strings.TrimSuffix(ref, "/")
	if ref == "" {
		return false
	}
	for _, el := range p.Elements {
		if el == ref || strings.HasSuffix(el, "/"+ref) || strings.HasPrefix(el, ref+"/") {
			return true
		}
	}
	return false
}
