package interp

import (
	"github.com/dop251/goja/ast"
)

// lexicalNames returns the names a program declares at the top level with
// let, const or class. Those bindings live outside the global object, so
// they do not show up in its keys.
func lexicalNames(prg *ast.Program) []string {
	var out []string
	for _, stmt := range prg.Body {
		switch s := stmt.(type) {
		case *ast.LexicalDeclaration:
			for _, b := range s.List {
				out = bindingNames(out, b.Target)
			}
		case *ast.ClassDeclaration:
			if s.Class != nil && s.Class.Name != nil {
				out = append(out, s.Class.Name.Name.String())
			}
		}
	}
	return out
}

func bindingNames(out []string, target ast.Expression) []string {
	switch t := target.(type) {
	case *ast.Identifier:
		out = append(out, t.Name.String())
	case *ast.AssignExpression:
		out = bindingNames(out, t.Left)
	case *ast.ArrayPattern:
		for _, el := range t.Elements {
			out = bindingNames(out, el)
		}
		out = bindingNames(out, t.Rest)
	case *ast.ObjectPattern:
		for _, p := range t.Properties {
			switch p := p.(type) {
			case *ast.PropertyShort:
				out = append(out, p.Name.Name.String())
			case *ast.PropertyKeyed:
				out = bindingNames(out, p.Value)
			}
		}
		out = bindingNames(out, t.Rest)
	}
	return out
}
