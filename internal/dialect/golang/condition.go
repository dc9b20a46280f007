package golang

import (
	"go/ast"
	"go/token"

	"golang.org/x/tools/go/ast/astutil"
)

func paren(x ast.Expr) ast.Expr {
	return &ast.ParenExpr{X: x}
}

// operand parenthesises x when it binds looser than prec.
func operand(x ast.Expr, prec int) ast.Expr {
	if b, ok := x.(*ast.BinaryExpr); ok && b.Op.Precedence() < prec {
		return paren(x)
	}
	return x
}

func and(a, b ast.Expr) ast.Expr {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	p := token.LAND.Precedence()
	return &ast.BinaryExpr{X: operand(a, p), Op: token.LAND, Y: operand(b, p)}
}

func or(a, b ast.Expr) ast.Expr {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	p := token.LOR.Precedence()
	return &ast.BinaryExpr{X: operand(a, p), Op: token.LOR, Y: operand(b, p)}
}

func negate(x ast.Expr) ast.Expr {
	if x == nil {
		return nil
	}
	if u, ok := astutil.Unparen(x).(*ast.UnaryExpr); ok && u.Op == token.NOT {
		return u.X
	}
	switch x.(type) {
	case *ast.Ident, *ast.CallExpr, *ast.SelectorExpr, *ast.IndexExpr, *ast.ParenExpr:
		return &ast.UnaryExpr{Op: token.NOT, X: x}
	}
	return &ast.UnaryExpr{Op: token.NOT, X: paren(x)}
}

func condText(x ast.Expr) *string {
	if x == nil {
		return nil
	}
	s := exprString(x)
	return &s
}
