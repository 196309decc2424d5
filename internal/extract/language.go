package extract

import (
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"
)

// Grammar names for the supported languages.
const (
	LangTypeScript = "typescript"
	LangTSX        = "tsx"
	LangJavaScript = "javascript"
	LangPython     = "python"
	LangGo         = "go"
)

// extensionLanguages maps known extensions straight to a grammar.
var extensionLanguages = map[string]string{
	".ts":  LangTypeScript,
	".mts": LangTypeScript,
	".cts": LangTypeScript,
	".tsx": LangTSX,
	".js":  LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
	".jsx": LangJavaScript,
	".py":  LangPython,
	".pyi": LangPython,
	".go":  LangGo,
}

// enryLanguages maps enry's detected language names onto our grammars, for
// files whose extension alone is ambiguous.
var enryLanguages = map[string]string{
	"TypeScript": LangTypeScript,
	"TSX":        LangTSX,
	"JavaScript": LangJavaScript,
	"Python":     LangPython,
	"Go":         LangGo,
}

// LanguageForPath classifies by extension only. Empty means unsupported.
func LanguageForPath(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// LanguageFor classifies by extension first and falls back to content
// detection for extensionless or ambiguous files. Empty means unsupported;
// unsupported files are skipped silently by the scanner.
func LanguageFor(path string, content []byte) string {
	if lang := LanguageForPath(path); lang != "" {
		return lang
	}

	detected := enry.GetLanguage(filepath.Base(path), content)

	return enryLanguages[detected]
}
