package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDetect_FullStack(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies": {"react": "^18.0.0"}}`)
	writeFile(t, root, "src/components/Button.tsx", "export {}")
	writeFile(t, root, "server/main.go", "package main")
	writeFile(t, root, "migrations/001_init.sql", "create table x();")
	writeFile(t, root, "node_modules/react/index.js", "")

	ctx := Detect(root)
	assert.Equal(t, "node", ctx.Type)
	assert.True(t, ctx.Frontend)
	assert.True(t, ctx.Backend)
	assert.True(t, ctx.Database)
	assert.True(t, ctx.Known)
	assert.True(t, ctx.HasElement("src/components/Button.tsx"))
	assert.True(t, ctx.HasElement("Button.tsx"))
	assert.True(t, ctx.HasElement("migrations"))
	assert.False(t, ctx.HasElement("node_modules/react/index.js"))
}

func TestDetect_BackendOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/x\n")
	writeFile(t, root, "internal/api/handler.go", "package api")

	ctx := Detect(root)
	assert.Equal(t, "go", ctx.Type)
	assert.True(t, ctx.Backend)
	assert.False(t, ctx.Frontend)
	assert.False(t, ctx.Database)
}

func TestDetect_MissingRoot(t *testing.T) {
	ctx := Detect(filepath.Join(t.TempDir(), "absent"))
	assert.False(t, ctx.Known)
	assert.Empty(t, ctx.Elements)
}

func TestParseFrameworkRules(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  FrameworkRules
	}{
		{name: "empty", input: "  ", want: FrameworkRules{}},
		{name: "bare name", input: "react", want: FrameworkRules{Framework: "react"}},
		{
			name:  "yaml",
			input: "framework: django\nlanguage: python\nforbidden: [jquery]\naliases:\n  endpoint: view\n",
			want: FrameworkRules{
				Framework: "django",
				Language:  "python",
				Forbidden: []string{"jquery"},
				Aliases:   map[string]string{"endpoint": "view"},
			},
		},
		{
			name:  "lenient lines",
			input: "Vue 3\nforbidden: jquery, moment\nuse composition api",
			want: FrameworkRules{
				Framework:   "Vue 3",
				Forbidden:   []string{"jquery", "moment"},
				Conventions: []string{"use composition api"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFrameworkRules(tt.input))
		})
	}
}

func TestFrameworkRules_AliasKeys(t *testing.T) {
	r := FrameworkRules{Aliases: map[string]string{"api": "x", "api endpoint": "y", "db": "z"}}
	assert.Equal(t, []string{"api endpoint", "api", "db"}, r.AliasKeys())
	assert.False(t, r.IsZero())
	assert.True(t, FrameworkRules{}.IsZero())
}
