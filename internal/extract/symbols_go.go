package extract

import (
	"strings"
	"unicode"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// extractGo extracts declarations and import specs from a Go file.
func extractGo(content []byte) ([]Symbol, []Reference, error) {
	tree, err := parseTree(LangGo, content)
	if err != nil {
		return nil, nil, err
	}
	defer tree.Close()

	var (
		symbols    []Symbol
		references []Reference
	)

	addSymbol := func(n, name sitter.Node, kind string) {
		if name.IsNull() {
			return
		}

		text := nodeText(name, content)
		start, end := lineRange(n)

		symbols = append(symbols, Symbol{
			Name:      text,
			Kind:      kind,
			Signature: firstLine(nodeText(n, content)),
			LineStart: start,
			LineEnd:   end,
			Exported:  goExported(text),
		})
	}

	eachNamedChild(tree.RootNode(), func(n sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			addSymbol(n, n.ChildByFieldName("name"), KindFunction)
		case "method_declaration":
			addSymbol(n, n.ChildByFieldName("name"), KindMethod)
		case "type_declaration":
			eachNamedChild(n, func(spec sitter.Node) {
				if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
					return
				}

				addSymbol(spec, spec.ChildByFieldName("name"), goTypeKind(spec))
			})
		case "const_declaration":
			eachNamedChild(n, func(spec sitter.Node) {
				if spec.Type() == "const_spec" {
					addSymbol(spec, spec.ChildByFieldName("name"), KindConstant)
				}
			})
		case "var_declaration":
			eachNamedChild(n, func(spec sitter.Node) {
				if spec.Type() == "var_spec" {
					addSymbol(spec, spec.ChildByFieldName("name"), KindVariable)
				}
			})
		case "import_declaration":
			references = append(references, goImports(n, content)...)
		}
	})

	return symbols, references, nil
}

// goTypeKind maps the underlying type expression to a symbol kind: struct
// types index as class, interface types as interface, everything else as type.
func goTypeKind(spec sitter.Node) string {
	t := spec.ChildByFieldName("type")
	if t.IsNull() {
		return KindType
	}

	switch t.Type() {
	case "struct_type":
		return KindClass
	case "interface_type":
		return KindInterface
	default:
		return KindType
	}
}

func goImports(n sitter.Node, content []byte) []Reference {
	var refs []Reference

	var visit func(sitter.Node)

	visit = func(node sitter.Node) {
		if node.Type() == "import_spec" {
			path := node.ChildByFieldName("path")
			if !path.IsNull() {
				refs = append(refs, Reference{
					Specifier: unquote(nodeText(path, content)),
					Type:      RefImport,
				})
			}

			return
		}

		eachNamedChild(node, visit)
	}

	visit(n)

	return refs
}

func goExported(name string) bool {
	if name == "" {
		return false
	}

	first := []rune(strings.TrimPrefix(name, "*"))[0]

	return unicode.IsUpper(first)
}
