package contract

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"unicode"
)

// GoExtractor extracts a Contract from Go source using the standard
// library parser. No type-checking is performed — only exported
// declarations reachable from the AST.
type GoExtractor struct{}

func (GoExtractor) Language() string { return "go" }

func (GoExtractor) Extract(path string, src []byte) (*Contract, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, &ExtractionFailedError{Path: path, Err: err}
	}

	var functions []string
	methodsByType := make(map[string][]string)
	var exports []string
	var typeSigs []string

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if !d.Name.IsExported() {
				continue
			}
			sig := renderFuncSignature(fset, d)
			if d.Recv != nil && len(d.Recv.List) > 0 {
				typeName := receiverTypeName(d.Recv.List[0].Type)
				methodsByType[typeName] = append(methodsByType[typeName], d.Name.Name)
			} else {
				functions = append(functions, sig)
				exports = append(exports, d.Name.Name)
			}

		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if !s.Name.IsExported() {
						continue
					}
					exports = append(exports, s.Name.Name)
					typeSigs = append(typeSigs, renderTypeSignature(fset, s))
					if _, ok := methodsByType[s.Name.Name]; !ok {
						methodsByType[s.Name.Name] = nil
					}
				case *ast.ValueSpec:
					for _, name := range s.Names {
						if name.IsExported() {
							exports = append(exports, name.Name)
						}
					}
				}
			}
		}
	}

	var classes []string
	for typeName, methods := range methodsByType {
		if len(methods) == 0 {
			continue
		}
		classes = append(classes, renderClassEntry(typeName, methods))
	}

	return New(path, path, functions, classes, exports, typeSigs), nil
}

func renderFuncSignature(fset *token.FileSet, d *ast.FuncDecl) string {
	var buf bytes.Buffer
	buf.WriteString(d.Name.Name)
	buf.WriteString(renderFieldList(fset, d.Type.Params, true))
	if d.Type.Results != nil {
		buf.WriteString(" ")
		buf.WriteString(renderFieldList(fset, d.Type.Results, false))
	}
	return buf.String()
}

func renderFieldList(fset *token.FileSet, fl *ast.FieldList, paren bool) string {
	if fl == nil {
		if paren {
			return "()"
		}
		return ""
	}
	var parts []string
	for _, f := range fl.List {
		var b bytes.Buffer
		if err := printer.Fprint(&b, fset, f.Type); err != nil {
			b.WriteString("?")
		}
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			parts = append(parts, b.String())
		}
	}
	joined := joinComma(parts)
	if paren {
		return "(" + joined + ")"
	}
	if len(parts) > 1 {
		return "(" + joined + ")"
	}
	return joined
}

func renderTypeSignature(fset *token.FileSet, s *ast.TypeSpec) string {
	var b bytes.Buffer
	b.WriteString("type ")
	b.WriteString(s.Name.Name)
	b.WriteString(" ")
	if err := printer.Fprint(&b, fset, s.Type); err != nil {
		b.WriteString("?")
	}
	return normalizeWhitespace(b.String())
}

func renderClassEntry(name string, methods []string) string {
	sortedMethods := sortedCopy(methods)
	return fmt.Sprintf("%s: %s", name, joinComma(sortedMethods))
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return "?"
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func normalizeWhitespace(s string) string {
	var b bytes.Buffer
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
