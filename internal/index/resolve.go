package index

import (
	"path"
	"strings"

	"github.com/kotadb/kotadb/internal/extract"
)

// ecmaExtensions are tried, in order, when a relative specifier omits its
// extension.
var ecmaExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// ResolveSpecifier maps a raw import specifier from sourcePath to a
// repository-relative file path, or "" when the import cannot be resolved
// (external packages, bare module names). known holds every file path in the
// repository.
func ResolveSpecifier(language, sourcePath, specifier string, known map[string]bool) string {
	switch language {
	case extract.LangTypeScript, extract.LangTSX, extract.LangJavaScript:
		return resolveECMAScript(sourcePath, specifier, known)
	case extract.LangPython:
		return resolvePython(sourcePath, specifier, known)
	default:
		// Go import paths are module-scoped and resolve outside any
		// single working tree; they stay unresolved for diagnostics.
		return ""
	}
}

// resolveECMAScript follows Node-style relative resolution: exact path,
// appended extensions, then directory index files. TypeScript emitted-style
// ".js" imports also match their ".ts"/".tsx" sources.
func resolveECMAScript(sourcePath, specifier string, known map[string]bool) string {
	if !strings.HasPrefix(specifier, "./") && !strings.HasPrefix(specifier, "../") {
		return ""
	}

	base := path.Join(path.Dir(sourcePath), specifier)

	candidates := []string{base}

	if trimmed, ok := strings.CutSuffix(base, ".js"); ok {
		candidates = append(candidates, trimmed+".ts", trimmed+".tsx")
	}

	for _, ext := range ecmaExtensions {
		candidates = append(candidates, base+ext)
	}

	for _, ext := range ecmaExtensions {
		candidates = append(candidates, path.Join(base, "index"+ext))
	}

	for _, c := range candidates {
		if known[c] {
			return c
		}
	}

	return ""
}

// resolvePython resolves relative (leading-dot) and absolute (root-anchored)
// module paths to .py files or packages.
func resolvePython(sourcePath, specifier string, known map[string]bool) string {
	var base string

	if strings.HasPrefix(specifier, ".") {
		dots := 0
		for dots < len(specifier) && specifier[dots] == '.' {
			dots++
		}

		dir := path.Dir(sourcePath)
		for i := 1; i < dots; i++ {
			dir = path.Dir(dir)
		}

		rest := strings.ReplaceAll(specifier[dots:], ".", "/")
		base = path.Join(dir, rest)
	} else {
		base = strings.ReplaceAll(specifier, ".", "/")
	}

	candidates := []string{base + ".py", path.Join(base, "__init__.py")}

	for _, c := range candidates {
		c = path.Clean(c)
		if known[c] {
			return c
		}
	}

	return ""
}
