package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	golang "github.com/alexaandru/go-sitter-forest/go"
	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/python"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// languageFuncs maps grammar names to their tree-sitter language loaders.
var languageFuncs = map[string]func() unsafe.Pointer{
	LangTypeScript: typescript.GetLanguage,
	LangTSX:        tsx.GetLanguage,
	LangJavaScript: javascript.GetLanguage,
	LangPython:     python.GetLanguage,
	LangGo:         golang.GetLanguage,
}

var languageCache sync.Map

// grammar returns the cached *sitter.Language for a grammar name.
func grammar(name string) *sitter.Language {
	if cached, ok := languageCache.Load(name); ok {
		lang, castOK := cached.(*sitter.Language)
		if castOK {
			return lang
		}
	}

	fn, ok := languageFuncs[name]
	if !ok {
		return nil
	}

	lang := sitter.NewLanguage(fn())
	languageCache.Store(name, lang)

	return lang
}

// parserPools pools one tree-sitter parser per language; parsers are not
// safe for concurrent use but are cheap to pool.
var parserPools sync.Map

func acquireParser(lang string) (*sitter.Parser, error) {
	poolAny, ok := parserPools.Load(lang)
	if !ok {
		l := grammar(lang)
		if l == nil {
			return nil, fmt.Errorf("no grammar for language %q", lang)
		}

		poolAny, _ = parserPools.LoadOrStore(lang, &sync.Pool{
			New: func() any {
				p := sitter.NewParser()
				p.SetLanguage(l)

				return p
			},
		})
	}

	p, ok := poolAny.(*sync.Pool).Get().(*sitter.Parser)
	if !ok {
		return nil, fmt.Errorf("parser pool corrupted for %q", lang)
	}

	return p, nil
}

func releaseParser(lang string, p *sitter.Parser) {
	if poolAny, ok := parserPools.Load(lang); ok {
		poolAny.(*sync.Pool).Put(p)
	}
}

// parseTree parses content with the named grammar and returns the tree. The
// caller must Close the tree.
func parseTree(lang string, content []byte) (*sitter.Tree, error) {
	p, err := acquireParser(lang)
	if err != nil {
		return nil, err
	}
	defer releaseParser(lang, p)

	tree, err := p.ParseString(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", lang, err)
	}

	if tree.RootNode().IsNull() {
		tree.Close()

		return nil, fmt.Errorf("parse %s: no root node", lang)
	}

	return tree, nil
}

// extractSymbols dispatches to the language-specific extractor.
func extractSymbols(lang string, content []byte) ([]Symbol, []Reference, error) {
	switch lang {
	case LangTypeScript, LangTSX, LangJavaScript:
		return extractECMAScript(lang, content)
	case LangPython:
		return extractPython(content)
	case LangGo:
		return extractGo(content)
	default:
		return nil, nil, nil
	}
}

// nodeText returns the source text of a node.
func nodeText(n sitter.Node, content []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(content) || start > end {
		return ""
	}

	return string(content[start:end])
}

// lineRange returns the 1-based inclusive line span of a node.
func lineRange(n sitter.Node) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

// firstLine truncates a declaration's text to a one-line signature.
func firstLine(text string) string {
	for i, r := range text {
		if r == '\n' || r == '{' {
			return trimSignature(text[:i])
		}
	}

	return trimSignature(text)
}

func trimSignature(s string) string {
	const maxSignature = 200

	s = strings.TrimSpace(s)
	if len(s) > maxSignature {
		s = s[:maxSignature]
	}

	return s
}

// eachNamedChild calls fn for every named child of n.
func eachNamedChild(n sitter.Node, fn func(child sitter.Node)) {
	for i := uint32(0); i < n.NamedChildCount(); i++ {
		fn(n.NamedChild(i))
	}
}

// unquote strips matched string quotes from an import specifier.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			return s[1 : len(s)-1]
		}
	}

	return s
}
