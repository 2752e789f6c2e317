// Copyright (c) 2024 The Brainpluck Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package hir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEmptyFunction(t *testing.T) {
	prog := ParseProgram("fn main() {}")
	require.Len(t, prog.Funcs, 1)
	require.Equal(t, "main", prog.Funcs[0].Name)
	require.Nil(t, prog.Funcs[0].RetType)
	require.Empty(t, prog.Funcs[0].Body.Stmts)
}

func TestParseFunctionWithParamsAndReturn(t *testing.T) {
	prog := ParseProgram("fn add(a: u32, b: u32) -> u32 { return a + b; }")
	fn := prog.Funcs[0]
	require.Len(t, fn.Params, 2)
	require.Equal(t, "a", fn.Params[0].Name)
	require.Equal(t, TU32, fn.Params[0].Type)
	require.NotNil(t, fn.RetType)
	ret, ok := fn.Body.Stmts[0].(*ReturnStmt)
	require.True(t, ok)
	bin, ok := ret.Value.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, TkPlus, bin.Op)
}

func TestParseLetAndAssign(t *testing.T) {
	prog := ParseProgram(`fn f() {
		let x: u32 = 1;
		x = x + 1;
	}`)
	fn := prog.Funcs[0]
	let, ok := fn.Body.Stmts[0].(*LetStmt)
	require.True(t, ok)
	require.Equal(t, "x", let.Name)
	assign, ok := fn.Body.Stmts[1].(*AssignStmt)
	require.True(t, ok)
	require.False(t, assign.Star)
	require.Equal(t, "x", assign.Name)
}

func TestParseStarAssign(t *testing.T) {
	prog := ParseProgram(`fn f(p: &u8) {
		*p = 1;
	}`)
	fn := prog.Funcs[0]
	assign, ok := fn.Body.Stmts[0].(*AssignStmt)
	require.True(t, ok)
	require.True(t, assign.Star)
	ident, ok := assign.Deref.(*Ident)
	require.True(t, ok)
	require.Equal(t, "p", ident.Name)
}

func TestParseIfWhile(t *testing.T) {
	prog := ParseProgram(`fn f(n: u32) {
		if n == 0 {
			return;
		} else {
			return;
		}
		while n != 0 {
			n = n - 1;
		}
	}`)
	fn := prog.Funcs[0]
	ifs, ok := fn.Body.Stmts[0].(*IfStmt)
	require.True(t, ok)
	require.NotNil(t, ifs.Else)
	_, ok = fn.Body.Stmts[1].(*WhileStmt)
	require.True(t, ok)
}

func TestParseOperatorPrecedence(t *testing.T) {
	prog := ParseProgram(`fn f() -> u32 { 1 + 2 * 3 }`)
	fn := prog.Funcs[0]
	require.Nil(t, fn.Body.Stmts)
	top, ok := fn.Body.Tail.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, TkPlus, top.Op)
	_, ok = top.Left.(*IntLit)
	require.True(t, ok)
	mul, ok := top.Right.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, TkStar, mul.Op)
}

func TestParseCallExpr(t *testing.T) {
	prog := ParseProgram(`fn f() { print_char(read_char()); }`)
	stmt, ok := prog.Funcs[0].Body.Stmts[0].(*ExprStmt)
	require.True(t, ok)
	call, ok := stmt.X.(*CallExpr)
	require.True(t, ok)
	require.Equal(t, "print_char", call.Callee)
	require.Len(t, call.Args, 1)
	inner, ok := call.Args[0].(*CallExpr)
	require.True(t, ok)
	require.Equal(t, "read_char", inner.Callee)
}

func TestParseUnaryAndPointerTypes(t *testing.T) {
	prog := ParseProgram(`fn f(p: &&u32) -> bool { !(*p == 0) }`)
	fn := prog.Funcs[0]
	require.Equal(t, KindPtr, fn.Params[0].Type.Kind)
	require.Equal(t, KindPtr, fn.Params[0].Type.Elem.Kind)
	require.Equal(t, KindU32, fn.Params[0].Type.Elem.Elem.Kind)
	not, ok := fn.Body.Tail.(*UnaryExpr)
	require.True(t, ok)
	require.Equal(t, TkBang, not.Op)
}

func TestParseMixedStatementsBeforeTail(t *testing.T) {
	prog := ParseProgram(`fn f(x: u32) -> u32 {
		print("a");
		x = x + 1;
		x
	}`)
	fn := prog.Funcs[0]
	require.Len(t, fn.Body.Stmts, 2)
	_, ok := fn.Body.Stmts[0].(*ExprStmt)
	require.True(t, ok)
	_, ok = fn.Body.Stmts[1].(*AssignStmt)
	require.True(t, ok)
	_, ok = fn.Body.Tail.(*Ident)
	require.True(t, ok)
}

func TestParseRejectsSyntaxError(t *testing.T) {
	require.Panics(t, func() {
		ParseProgram("fn f( {")
	})
}
