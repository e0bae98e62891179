// Package project describes the project a task list refers to: the surfaces
// it has (frontend, backend, database), its file inventory, and the framework
// rules supplied alongside the task text.
package project

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// MaxElements caps the file inventory gathered by Detect.
const MaxElements = 5000

// skipDirs are never walked when building the inventory.
var skipDirs = map[string]bool{
	".git":         true,
	".taskpilot":   true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".venv":        true,
	"__pycache__":  true,
}

var (
	frontendExts = map[string]bool{".tsx": true, ".jsx": true, ".vue": true, ".svelte": true, ".html": true, ".css": true, ".scss": true}
	databaseExts = map[string]bool{".sql": true, ".prisma": true}
	backendExts  = map[string]bool{".go": true, ".py": true, ".rb": true, ".java": true, ".rs": true, ".php": true, ".cs": true}

	frontendDirs = []string{"components", "pages", "views", "public", "styles", "frontend", "web", "client"}
	backendDirs  = []string{"api", "server", "handlers", "controllers", "routes", "services", "backend", "cmd"}
	databaseDirs = []string{"migrations", "db", "database", "schema", "prisma"}
)

// Detect inspects the directory at root and returns its project context.
// A missing or unreadable root yields an unknown (zero) context.
func Detect(root string) *models.ProjectContext {
	ctx := &models.ProjectContext{Root: root}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return ctx
	}

	ctx.Type = detectType(root)

	truncated := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(ctx.Elements) >= MaxElements {
			truncated = true
			return filepath.SkipAll
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		ctx.Elements = append(ctx.Elements, rel)
		classify(ctx, rel)
		return nil
	})
	sort.Strings(ctx.Elements)

	// A truncated inventory cannot prove that a path is absent.
	ctx.Known = !truncated && len(ctx.Elements) > 0

	if ctx.Type == "node" && hasFrontendDependency(root) {
		ctx.Frontend = true
	}
	return ctx
}

// detectType mirrors the project-type probe order: most specific manifest first.
func detectType(root string) string {
	switch {
	case fileExists(filepath.Join(root, "go.mod")):
		return "go"
	case fileExists(filepath.Join(root, "Cargo.toml")):
		return "rust"
	case fileExists(filepath.Join(root, "pyproject.toml")),
		fileExists(filepath.Join(root, "setup.py")),
		fileExists(filepath.Join(root, "requirements.txt")):
		return "python"
	case fileExists(filepath.Join(root, "package.json")):
		return "node"
	default:
		return "unknown"
	}
}

// classify sets surface flags from one relative path.
func classify(ctx *models.ProjectContext, rel string) {
	ext := strings.ToLower(filepath.Ext(rel))
	switch {
	case frontendExts[ext]:
		ctx.Frontend = true
	case databaseExts[ext]:
		ctx.Database = true
	case backendExts[ext]:
		ctx.Backend = true
	}

	parts := strings.Split(strings.ToLower(rel), "/")
	for _, dir := range parts[:len(parts)-1] {
		switch {
		case contains(frontendDirs, dir):
			ctx.Frontend = true
		case contains(backendDirs, dir):
			ctx.Backend = true
		case contains(databaseDirs, dir):
			ctx.Database = true
		}
	}
}

// hasFrontendDependency checks package.json for a UI framework.
func hasFrontendDependency(root string) bool {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return false
	}
	content := string(data)
	for _, dep := range []string{`"react"`, `"vue"`, `"svelte"`, `"@angular/core"`, `"next"`, `"solid-js"`} {
		if strings.Contains(content, dep) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
