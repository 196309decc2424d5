package extract

import (
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// extractPython extracts module-level definitions and imports.
func extractPython(content []byte) ([]Symbol, []Reference, error) {
	tree, err := parseTree(LangPython, content)
	if err != nil {
		return nil, nil, err
	}
	defer tree.Close()

	x := &pyExtractor{content: content}
	x.walkModule(tree.RootNode(), "")

	return x.symbols, x.references, nil
}

type pyExtractor struct {
	content    []byte
	symbols    []Symbol
	references []Reference
}

// walkModule visits statements. enclosingClass is non-empty inside a class
// body, turning function definitions into methods.
func (x *pyExtractor) walkModule(n sitter.Node, enclosingClass string) {
	eachNamedChild(n, func(child sitter.Node) {
		x.statement(child, enclosingClass)
	})
}

func (x *pyExtractor) statement(n sitter.Node, enclosingClass string) {
	switch n.Type() {
	case "decorated_definition":
		def := n.ChildByFieldName("definition")
		if !def.IsNull() {
			x.statement(def, enclosingClass)
		}
	case "function_definition":
		kind := KindFunction
		if enclosingClass != "" {
			kind = KindMethod
		}

		x.definition(n, kind)
	case "class_definition":
		x.definition(n, KindClass)

		name := n.ChildByFieldName("name")

		body := n.ChildByFieldName("body")
		if !body.IsNull() && !name.IsNull() {
			x.walkModule(body, nodeText(name, x.content))
		}
	case "expression_statement":
		if enclosingClass == "" {
			x.moduleAssignment(n)
		}
	case "import_statement":
		x.importStatement(n)
	case "import_from_statement":
		x.importFromStatement(n)
	}
}

func (x *pyExtractor) definition(n sitter.Node, kind string) {
	name := n.ChildByFieldName("name")
	if name.IsNull() {
		return
	}

	text := nodeText(name, x.content)
	start, end := lineRange(n)

	x.symbols = append(x.symbols, Symbol{
		Name:      text,
		Kind:      kind,
		Signature: firstLine(nodeText(n, x.content)),
		LineStart: start,
		LineEnd:   end,
		Exported:  !strings.HasPrefix(text, "_"),
	})
}

// moduleAssignment records module-level NAME = ... bindings. Upper-case
// names index as constants.
func (x *pyExtractor) moduleAssignment(n sitter.Node) {
	eachNamedChild(n, func(expr sitter.Node) {
		if expr.Type() != "assignment" {
			return
		}

		left := expr.ChildByFieldName("left")
		if left.IsNull() || left.Type() != "identifier" {
			return
		}

		name := nodeText(left, x.content)

		kind := KindVariable
		if name == strings.ToUpper(name) && name != strings.ToLower(name) {
			kind = KindConstant
		}

		start, end := lineRange(expr)

		x.symbols = append(x.symbols, Symbol{
			Name:      name,
			Kind:      kind,
			Signature: firstLine(nodeText(expr, x.content)),
			LineStart: start,
			LineEnd:   end,
			Exported:  !strings.HasPrefix(name, "_"),
		})
	})
}

// importStatement handles `import a.b` and `import a.b as c`.
func (x *pyExtractor) importStatement(n sitter.Node) {
	eachNamedChild(n, func(child sitter.Node) {
		switch child.Type() {
		case "dotted_name":
			x.references = append(x.references, Reference{
				Specifier: nodeText(child, x.content),
				Type:      RefImport,
			})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			if !name.IsNull() {
				x.references = append(x.references, Reference{
					Specifier: nodeText(name, x.content),
					Type:      RefImport,
				})
			}
		}
	})
}

// importFromStatement handles `from x import y`, including relative dots.
func (x *pyExtractor) importFromStatement(n sitter.Node) {
	module := n.ChildByFieldName("module_name")
	if module.IsNull() {
		return
	}

	spec := nodeText(module, x.content)

	symbol := ""

	names := n.ChildByFieldName("name")
	if !names.IsNull() && names.Type() == "dotted_name" {
		symbol = nodeText(names, x.content)
	}

	x.references = append(x.references, Reference{
		Specifier:  spec,
		SymbolName: symbol,
		Type:       RefImport,
	})
}
