package contract

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TreeSitterExtractor extracts contracts from Python and
// TypeScript/JavaScript source using tree-sitter grammars, for
// repositories whose artifacts aren't Go.
type TreeSitterExtractor struct {
	lang       string
	parser     *sitter.Parser
	exportName string
}

// NewPythonExtractor builds a TreeSitterExtractor for Python files.
func NewPythonExtractor() *TreeSitterExtractor {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &TreeSitterExtractor{lang: "python", parser: p}
}

// NewTypeScriptExtractor builds a TreeSitterExtractor for
// TypeScript/JavaScript files.
func NewTypeScriptExtractor() *TreeSitterExtractor {
	p := sitter.NewParser()
	p.SetLanguage(typescript.GetLanguage())
	return &TreeSitterExtractor{lang: "typescript", parser: p}
}

func (t *TreeSitterExtractor) Language() string { return t.lang }

func (t *TreeSitterExtractor) Extract(path string, src []byte) (*Contract, error) {
	tree, err := t.parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, &ExtractionFailedError{Path: path, Err: err}
	}
	defer tree.Close()

	var functions, classes, exports []string
	root := tree.RootNode()

	switch t.lang {
	case "python":
		t.walkPython(root, src, "", &functions, &classes, &exports)
	default:
		t.walkTypeScript(root, src, &functions, &classes, &exports)
	}

	return New(path, path, functions, classes, exports, nil), nil
}

func (t *TreeSitterExtractor) walkPython(node *sitter.Node, src []byte, parentClass string, functions, classes, exports *[]string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "class_definition":
			name := fieldText(child, "name", src)
			if name != "" && isPublicPython(name) {
				methods := collectPythonMethods(child, src)
				*classes = append(*classes, renderClassEntry(name, methods))
				*exports = append(*exports, name)
			}
		case "function_definition":
			name := fieldText(child, "name", src)
			if name != "" && isPublicPython(name) && parentClass == "" {
				*functions = append(*functions, name+pythonParamSignature(child, src))
				*exports = append(*exports, name)
			}
		case "expression_statement":
			// __all__ = [...] explicit export list.
			if names := pythonAllAssignment(child, src); names != nil {
				*exports = append(*exports, names...)
			}
		default:
			t.walkPython(child, src, parentClass, functions, classes, exports)
		}
	}
}

func collectPythonMethods(classNode *sitter.Node, src []byte) []string {
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var methods []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != "function_definition" {
			continue
		}
		name := fieldText(child, "name", src)
		if name != "" && isPublicPython(name) {
			methods = append(methods, name)
		}
	}
	return methods
}

func pythonParamSignature(fn *sitter.Node, src []byte) string {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return "()"
	}
	return string(src[params.StartByte():params.EndByte()])
}

func pythonAllAssignment(stmt *sitter.Node, src []byte) []string {
	text := string(src[stmt.StartByte():stmt.EndByte()])
	if !strings.HasPrefix(strings.TrimSpace(text), "__all__") {
		return nil
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < 0 || end <= start {
		return nil
	}
	var names []string
	for _, part := range strings.Split(text[start+1:end], ",") {
		name := strings.Trim(strings.TrimSpace(part), `'"`)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func isPublicPython(name string) bool {
	return !strings.HasPrefix(name, "_")
}

func (t *TreeSitterExtractor) walkTypeScript(node *sitter.Node, src []byte, functions, classes, exports *[]string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "export_statement":
			t.walkExportedDeclaration(child, src, functions, classes, exports)
		case "class_declaration":
			// Non-exported top-level class: not part of the public
			// contract, so nothing is recorded for it.
		default:
			t.walkTypeScript(child, src, functions, classes, exports)
		}
	}
}

func (t *TreeSitterExtractor) walkExportedDeclaration(exportNode *sitter.Node, src []byte, functions, classes, exports *[]string) {
	for i := 0; i < int(exportNode.NamedChildCount()); i++ {
		decl := exportNode.NamedChild(i)
		switch decl.Type() {
		case "function_declaration":
			name := fieldText(decl, "name", src)
			if name != "" {
				*functions = append(*functions, name+tsParamSignature(decl, src))
				*exports = append(*exports, name)
			}
		case "class_declaration":
			name := fieldText(decl, "name", src)
			if name != "" {
				methods := collectTSMethods(decl, src)
				*classes = append(*classes, renderClassEntry(name, methods))
				*exports = append(*exports, name)
			}
		case "lexical_declaration", "variable_declaration":
			for j := 0; j < int(decl.NamedChildCount()); j++ {
				declarator := decl.NamedChild(j)
				if declarator.Type() != "variable_declarator" {
					continue
				}
				name := fieldText(declarator, "name", src)
				if name != "" {
					*exports = append(*exports, name)
				}
			}
		}
	}
}

func collectTSMethods(classNode *sitter.Node, src []byte) []string {
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var methods []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() != "method_definition" {
			continue
		}
		name := fieldText(member, "name", src)
		if name != "" && !strings.HasPrefix(name, "#") && !strings.HasPrefix(name, "_") {
			methods = append(methods, name)
		}
	}
	return methods
}

func tsParamSignature(fn *sitter.Node, src []byte) string {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return "()"
	}
	return string(src[params.StartByte():params.EndByte()])
}

func fieldText(node *sitter.Node, field string, src []byte) string {
	n := node.ChildByFieldName(field)
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}
