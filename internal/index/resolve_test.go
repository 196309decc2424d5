package index

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kotadb/kotadb/internal/extract"
)

func TestResolveSpecifier_ECMAScript(t *testing.T) {
	t.Parallel()

	known := map[string]bool{
		"src/auth/login.ts":     true,
		"src/auth/session.tsx":  true,
		"src/utils/index.ts":    true,
		"src/legacy/helper.js":  true,
		"src/emitted/source.ts": true,
	}

	cases := []struct {
		name      string
		source    string
		specifier string
		want      string
	}{
		{"exact path", "src/auth/page.ts", "./login.ts", "src/auth/login.ts"},
		{"extensionless ts", "src/auth/page.ts", "./login", "src/auth/login.ts"},
		{"extensionless tsx", "src/auth/page.ts", "./session", "src/auth/session.tsx"},
		{"parent dir", "src/auth/page.ts", "../legacy/helper", "src/legacy/helper.js"},
		{"directory index", "src/auth/page.ts", "../utils", "src/utils/index.ts"},
		{"emitted .js maps to .ts source", "src/emitted/main.ts", "./source.js", "src/emitted/source.ts"},
		{"bare module", "src/auth/page.ts", "react", ""},
		{"unknown relative", "src/auth/page.ts", "./missing", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ResolveSpecifier(extract.LangTypeScript, tc.source, tc.specifier, known)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveSpecifier_Python(t *testing.T) {
	t.Parallel()

	known := map[string]bool{
		"pkg/auth/login.py":    true,
		"pkg/auth/__init__.py": true,
		"pkg/util/paths.py":    true,
	}

	cases := []struct {
		name      string
		source    string
		specifier string
		want      string
	}{
		{"sibling module", "pkg/auth/views.py", ".login", "pkg/auth/login.py"},
		{"package init", "pkg/auth/views.py", ".", "pkg/auth/__init__.py"},
		{"parent package module", "pkg/auth/views.py", "..util.paths", "pkg/util/paths.py"},
		{"absolute module path", "pkg/auth/views.py", "pkg.util.paths", "pkg/util/paths.py"},
		{"stdlib module", "pkg/auth/views.py", "os.path", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ResolveSpecifier(extract.LangPython, tc.source, tc.specifier, known)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveSpecifier_GoStaysUnresolved(t *testing.T) {
	t.Parallel()

	known := map[string]bool{"internal/auth/auth.go": true}

	got := ResolveSpecifier(extract.LangGo, "cmd/main.go", "example.com/m/internal/auth", known)
	assert.Empty(t, got)
}
