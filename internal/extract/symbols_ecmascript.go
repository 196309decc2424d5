package extract

import (
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// extractECMAScript handles TypeScript, TSX and JavaScript. The three
// grammars share node type names for everything we extract.
func extractECMAScript(lang string, content []byte) ([]Symbol, []Reference, error) {
	tree, err := parseTree(lang, content)
	if err != nil {
		return nil, nil, err
	}
	defer tree.Close()

	x := &ecmaExtractor{content: content}
	x.walkProgram(tree.RootNode(), false)

	return x.symbols, x.references, nil
}

type ecmaExtractor struct {
	content    []byte
	symbols    []Symbol
	references []Reference
}

// walkProgram visits top-level statements. exported marks declarations
// nested under an export_statement.
func (x *ecmaExtractor) walkProgram(n sitter.Node, exported bool) {
	eachNamedChild(n, func(child sitter.Node) {
		x.statement(child, exported)
	})
}

func (x *ecmaExtractor) statement(n sitter.Node, exported bool) {
	switch n.Type() {
	case "export_statement":
		x.exportStatement(n)
	case "import_statement":
		x.importStatement(n)
	case "function_declaration", "generator_function_declaration":
		x.declaration(n, KindFunction, exported)
	case "class_declaration", "abstract_class_declaration":
		x.classDeclaration(n, exported)
	case "interface_declaration":
		x.declaration(n, KindInterface, exported)
	case "type_alias_declaration":
		x.declaration(n, KindType, exported)
	case "enum_declaration":
		x.enumDeclaration(n, exported)
	case "lexical_declaration", "variable_declaration":
		x.variableDeclaration(n, exported)
	case "internal_module", "module":
		x.namespaceDeclaration(n, exported)
	case "expression_statement", "statement_block":
		// Dynamic imports can appear inside arbitrary expressions.
		x.scanDynamicImports(n)
	}
}

func (x *ecmaExtractor) declaration(n sitter.Node, kind string, exported bool) {
	name := n.ChildByFieldName("name")
	if name.IsNull() {
		return
	}

	start, end := lineRange(n)

	x.symbols = append(x.symbols, Symbol{
		Name:      nodeText(name, x.content),
		Kind:      kind,
		Signature: firstLine(nodeText(n, x.content)),
		LineStart: start,
		LineEnd:   end,
		Exported:  exported,
	})
}

func (x *ecmaExtractor) classDeclaration(n sitter.Node, exported bool) {
	x.declaration(n, KindClass, exported)

	body := n.ChildByFieldName("body")
	if body.IsNull() {
		return
	}

	eachNamedChild(body, func(member sitter.Node) {
		switch member.Type() {
		case "method_definition":
			x.declaration(member, KindMethod, exported)
		case "public_field_definition", "property_signature":
			x.declaration(member, KindProperty, exported)
		}
	})
}

func (x *ecmaExtractor) enumDeclaration(n sitter.Node, exported bool) {
	x.declaration(n, KindEnum, exported)

	body := n.ChildByFieldName("body")
	if body.IsNull() {
		return
	}

	eachNamedChild(body, func(member sitter.Node) {
		nameNode := member

		if member.Type() == "enum_assignment" {
			nameNode = member.ChildByFieldName("name")
			if nameNode.IsNull() {
				return
			}
		}

		if nameNode.Type() != "property_identifier" && member.Type() != "enum_assignment" {
			return
		}

		start, end := lineRange(member)

		x.symbols = append(x.symbols, Symbol{
			Name:      nodeText(nameNode, x.content),
			Kind:      KindEnumMember,
			LineStart: start,
			LineEnd:   end,
			Exported:  exported,
		})
	})
}

func (x *ecmaExtractor) variableDeclaration(n sitter.Node, exported bool) {
	kind := KindVariable
	if len(nodeText(n, x.content)) >= 5 && nodeText(n, x.content)[:5] == "const" {
		kind = KindConstant
	}

	eachNamedChild(n, func(decl sitter.Node) {
		if decl.Type() != "variable_declarator" {
			return
		}

		name := decl.ChildByFieldName("name")
		if name.IsNull() || name.Type() != "identifier" {
			return
		}

		start, end := lineRange(decl)

		x.symbols = append(x.symbols, Symbol{
			Name:      nodeText(name, x.content),
			Kind:      kind,
			Signature: firstLine(nodeText(decl, x.content)),
			LineStart: start,
			LineEnd:   end,
			Exported:  exported,
		})

		x.scanDynamicImports(decl)
	})
}

func (x *ecmaExtractor) namespaceDeclaration(n sitter.Node, exported bool) {
	name := n.ChildByFieldName("name")
	if name.IsNull() {
		return
	}

	start, end := lineRange(n)

	x.symbols = append(x.symbols, Symbol{
		Name:      nodeText(name, x.content),
		Kind:      KindNamespace,
		Signature: firstLine(nodeText(n, x.content)),
		LineStart: start,
		LineEnd:   end,
		Exported:  exported,
	})

	body := n.ChildByFieldName("body")
	if !body.IsNull() {
		x.walkProgram(body, exported)
	}
}

// importStatement records one import edge with the raw specifier.
func (x *ecmaExtractor) importStatement(n sitter.Node) {
	source := n.ChildByFieldName("source")
	if source.IsNull() {
		return
	}

	x.references = append(x.references, Reference{
		Specifier:  unquote(nodeText(source, x.content)),
		SymbolName: x.singleNamedImport(n),
		Type:       RefImport,
	})
}

// singleNamedImport returns the imported symbol name when the statement
// imports exactly one named binding, else empty.
func (x *ecmaExtractor) singleNamedImport(n sitter.Node) string {
	var names []string

	var visit func(sitter.Node)

	visit = func(node sitter.Node) {
		if node.Type() == "import_specifier" {
			if name := node.ChildByFieldName("name"); !name.IsNull() {
				names = append(names, nodeText(name, x.content))
			}

			return
		}

		eachNamedChild(node, visit)
	}

	visit(n)

	if len(names) == 1 {
		return names[0]
	}

	return ""
}

// exportStatement distinguishes re-exports, star exports and exported
// declarations.
func (x *ecmaExtractor) exportStatement(n sitter.Node) {
	source := n.ChildByFieldName("source")

	if !source.IsNull() {
		refType := RefExportAll

		// `export { a } from "x"` carries an export_clause;
		// `export * from "x"` does not.
		eachNamedChild(n, func(child sitter.Node) {
			if child.Type() == "export_clause" {
				refType = RefReExport
			}
		})

		x.references = append(x.references, Reference{
			Specifier: unquote(nodeText(source, x.content)),
			Type:      refType,
		})

		return
	}

	declaration := n.ChildByFieldName("declaration")
	if !declaration.IsNull() {
		x.statement(declaration, true)

		return
	}

	eachNamedChild(n, func(child sitter.Node) {
		x.statement(child, true)
	})
}

// scanDynamicImports finds import("...") call expressions anywhere under n.
func (x *ecmaExtractor) scanDynamicImports(n sitter.Node) {
	if n.Type() == "call_expression" {
		fn := n.ChildByFieldName("function")
		if !fn.IsNull() && fn.Type() == "import" {
			args := n.ChildByFieldName("arguments")
			if !args.IsNull() && args.NamedChildCount() > 0 {
				arg := args.NamedChild(0)
				if arg.Type() == "string" {
					x.references = append(x.references, Reference{
						Specifier: unquote(nodeText(arg, x.content)),
						Type:      RefDynamicImport,
					})
				}
			}
		}
	}

	eachNamedChild(n, func(child sitter.Node) {
		x.scanDynamicImports(child)
	})
}
