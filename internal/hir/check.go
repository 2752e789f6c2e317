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

import "fmt"

// preludeNames is the fixed set of builtin functions every HIR program may
// call without declaring them. They are not ordinary
// functions: print/println are overloaded on argument type rather than
// having one fixed signature, so the checker special-cases them instead of
// threading them through the user function table.
var preludeNames = map[string]bool{
	"print":      true,
	"println":    true,
	"print_char": true,
	"read_char":  true,
}

// Checker performs name resolution and type checking in a single pass:
// HIR has no forward-referenced types and a fixed, closed type universe,
// so nothing needs a second visit.
type Checker struct {
	funcs map[string]*Function
	cur   *Function
	scope []map[string]*Type
}

func semaError(format string, args ...interface{}) {
	panic(fmt.Sprintf("semantic error: "+format, args...))
}

// CheckProgram resolves names and types for every function in prog. It
// panics with a descriptive message on the first error encountered; HIR
// semantic errors are fatal and carry no recovery or span information.
func CheckProgram(prog *Program) {
	c := &Checker{funcs: map[string]*Function{}}
	for _, fn := range prog.Funcs {
		if preludeNames[fn.Name] {
			semaError("function %q shadows a prelude name", fn.Name)
		}
		if _, dup := c.funcs[fn.Name]; dup {
			semaError("function %q redeclared", fn.Name)
		}
		c.funcs[fn.Name] = fn
	}
	for _, fn := range prog.Funcs {
		c.checkFunction(fn)
	}
}

func (c *Checker) pushScope() { c.scope = append(c.scope, map[string]*Type{}) }
func (c *Checker) popScope()  { c.scope = c.scope[:len(c.scope)-1] }

func (c *Checker) declare(name string, t *Type) {
	c.scope[len(c.scope)-1][name] = t
}

// lookup walks scopes innermost-first; inner blocks may shadow outer
// names.
func (c *Checker) lookup(name string) (*Type, bool) {
	for i := len(c.scope) - 1; i >= 0; i-- {
		if t, ok := c.scope[i][name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (c *Checker) checkFunction(fn *Function) {
	c.cur = fn
	c.scope = nil
	c.pushScope()
	for _, p := range fn.Params {
		c.declare(p.Name, p.Type)
	}
	c.checkBlock(fn.Body)
	// Whether every path reaches a return is a reachability property this
	// single pass does not attempt to prove; individual `return`
	// statements are checked against
	// fn.RetType as they're visited. Only the block's trailing expression,
	// when present, is checked here as the function's implicit result.
	if fn.RetType != nil && fn.Body.Tail != nil && !fn.Body.Tail.GetType().Equal(fn.RetType) {
		semaError("function %q: tail expression type %v does not match return type %v",
			fn.Name, fn.Body.Tail.GetType(), fn.RetType)
	}
	c.popScope()
}

func (c *Checker) checkBlock(b *Block) {
	c.pushScope()
	for _, s := range b.Stmts {
		c.checkStmt(s)
	}
	if b.Tail != nil {
		c.checkExpr(b.Tail)
	}
	c.popScope()
}

func (c *Checker) checkStmt(s Stmt) {
	switch st := s.(type) {
	case *LetStmt:
		c.checkExprWithHint(st.Init, st.Type)
		if !st.Init.GetType().Equal(st.Type) {
			semaError("let %s: initializer type %v does not match declared type %v",
				st.Name, st.Init.GetType(), st.Type)
		}
		c.declare(st.Name, st.Type)
	case *AssignStmt:
		if st.Star {
			c.checkExpr(st.Deref)
			pt := st.Deref.GetType()
			if !pt.IsPtr() {
				semaError("cannot dereference non-pointer type %v", pt)
			}
			c.checkExprWithHint(st.Value, pt.Elem)
			if !st.Value.GetType().Equal(pt.Elem) {
				semaError("store through %v: value type %v does not match pointee type %v",
					pt, st.Value.GetType(), pt.Elem)
			}
		} else {
			vt, ok := c.lookup(st.Name)
			if !ok {
				semaError("assignment to undeclared variable %q", st.Name)
			}
			c.checkExprWithHint(st.Value, vt)
			if !st.Value.GetType().Equal(vt) {
				semaError("assignment to %q: value type %v does not match variable type %v",
					st.Name, st.Value.GetType(), vt)
			}
		}
	case *IfStmt:
		c.checkExpr(st.Cond)
		if !st.Cond.GetType().IsBool() {
			semaError("if condition must be bool, got %v", st.Cond.GetType())
		}
		c.checkBlock(st.Then)
		if st.Else != nil {
			c.checkBlock(st.Else)
		}
	case *WhileStmt:
		c.checkExpr(st.Cond)
		if !st.Cond.GetType().IsBool() {
			semaError("while condition must be bool, got %v", st.Cond.GetType())
		}
		c.checkBlock(st.Body)
	case *ReturnStmt:
		if st.Value == nil {
			if c.cur.RetType != nil {
				semaError("function %q: bare return but declared to return %v", c.cur.Name, c.cur.RetType)
			}
			return
		}
		c.checkExprWithHint(st.Value, c.cur.RetType)
		if c.cur.RetType == nil {
			semaError("function %q: return with value but no declared return type", c.cur.Name)
		}
		if !st.Value.GetType().Equal(c.cur.RetType) {
			semaError("function %q: return type %v does not match declared %v",
				c.cur.Name, st.Value.GetType(), c.cur.RetType)
		}
	case *ExprStmt:
		c.checkExpr(st.X)
	default:
		semaError("unhandled statement kind %T", s)
	}
}

func (c *Checker) checkExpr(e Expr) {
	switch x := e.(type) {
	case *IntLit:
		// Untyped by the parser and reached here without a width hint:
		// type it by magnitude, u8 when the value fits in a byte and u32
		// otherwise. Contexts that fix a width go through
		// checkExprWithHint instead; call/let-site equality checks catch
		// any remaining misuse.
		if x.Value <= 0xff {
			x.SetType(TU8)
		} else {
			x.SetType(TU32)
		}
	case *StrLit:
		x.SetType(PtrTo(TU8))
	case *BoolLit:
		x.SetType(TBool)
	case *Ident:
		t, ok := c.lookup(x.Name)
		if !ok {
			semaError("undeclared identifier %q", x.Name)
		}
		x.SetType(t)
	case *UnaryExpr:
		c.checkExpr(x.X)
		xt := x.X.GetType()
		switch x.Op {
		case TkMinus:
			if !xt.IsInt() {
				semaError("unary '-' requires integer operand, got %v", xt)
			}
			x.SetType(xt)
		case TkBang:
			if !xt.IsBool() {
				semaError("unary '!' requires bool operand, got %v", xt)
			}
			x.SetType(TBool)
		case TkAmp:
			if _, ok := x.X.(*Ident); !ok {
				semaError("'&' can only take the address of a variable")
			}
			x.SetType(PtrTo(xt))
		case TkStar:
			if !xt.IsPtr() {
				semaError("cannot dereference non-pointer type %v", xt)
			}
			x.SetType(xt.Elem)
		default:
			semaError("unhandled unary operator %v", x.Op)
		}
	case *BinaryExpr:
		c.checkBinary(x)
	case *CallExpr:
		c.checkCall(x)
	case *BlockExpr:
		c.checkBlock(x.Block)
		if x.Block.Tail != nil {
			x.SetType(x.Block.Tail.GetType())
		}
	default:
		semaError("unhandled expression kind %T", e)
	}
}

func (c *Checker) checkBinary(x *BinaryExpr) {
	// A literal operand adopts the other side's integer width, so
	// `i < 46` typechecks for both u8 and u32 counters without an
	// untyped-constant representation.
	if _, lit := x.Left.(*IntLit); lit {
		c.checkExpr(x.Right)
		c.checkExprWithHint(x.Left, intHint(x.Right.GetType()))
	} else {
		c.checkExpr(x.Left)
		c.checkExprWithHint(x.Right, intHint(x.Left.GetType()))
	}
	c.combineBinary(x)
}

func intHint(t *Type) *Type {
	if t != nil && t.IsInt() {
		return t
	}
	return nil
}

// combineBinary computes and validates x's result type from its already
// type-checked Left/Right operands. Split out from checkBinary so
// checkExprWithHint can check the children itself (threading a width hint
// into arithmetic operands) and then share this combine step.
func (c *Checker) combineBinary(x *BinaryExpr) {
	lt, rt := x.Left.GetType(), x.Right.GetType()

	switch x.Op {
	case TkAndAnd, TkOrOr:
		if !lt.IsBool() || !rt.IsBool() {
			semaError("%v requires bool operands, got %v and %v", x.Op, lt, rt)
		}
		x.SetType(TBool)
	case TkEq, TkNe:
		if !lt.Equal(rt) {
			semaError("%v requires matching operand types, got %v and %v", x.Op, lt, rt)
		}
		x.SetType(TBool)
	case TkLt, TkLe, TkGt, TkGe:
		if lt.IsPtr() && rt.IsPtr() {
			if !lt.Equal(rt) {
				semaError("%v requires matching pointer types, got %v and %v", x.Op, lt, rt)
			}
		} else if lt.IsInt() && rt.IsInt() {
			if !lt.Equal(rt) {
				semaError("%v requires matching integer widths, got %v and %v", x.Op, lt, rt)
			}
		} else {
			semaError("%v requires two integers or two pointers, got %v and %v", x.Op, lt, rt)
		}
		x.SetType(TBool)
	case TkPlus, TkMinus:
		if lt.IsPtr() && rt.IsInt() {
			x.SetType(lt)
		} else if lt.IsInt() && rt.IsPtr() && x.Op == TkPlus {
			x.SetType(rt)
		} else if lt.IsInt() && rt.IsInt() {
			if !lt.Equal(rt) {
				semaError("%v requires matching integer widths, got %v and %v", x.Op, lt, rt)
			}
			x.SetType(lt)
		} else {
			semaError("%v not defined for %v and %v", x.Op, lt, rt)
		}
	case TkStar, TkSlash, TkPercent:
		if !lt.IsInt() || !rt.IsInt() || !lt.Equal(rt) {
			semaError("%v requires matching integer widths, got %v and %v", x.Op, lt, rt)
		}
		x.SetType(lt)
	default:
		semaError("unhandled binary operator %v", x.Op)
	}
}

// checkCall resolves either a prelude builtin (print/println/print_char/
// read_char, the first two overloaded on argument type) or a user
// function, and assigns the call's result type.
func (c *Checker) checkCall(x *CallExpr) {
	switch x.Callee {
	case "print", "println":
		if len(x.Args) != 1 {
			semaError("%s expects exactly one argument", x.Callee)
		}
		c.checkExpr(x.Args[0])
		a := x.Args[0]
		_, isStr := a.(*StrLit)
		t := a.GetType()
		if !isStr && !t.IsInt() {
			semaError("%s expects a string literal, u8, or u32 argument, got %v", x.Callee, t)
		}
		return
	case "print_char":
		if len(x.Args) != 1 {
			semaError("print_char expects a single u8 argument")
		}
		c.checkExprWithHint(x.Args[0], TU8)
		if !x.Args[0].GetType().Equal(TU8) {
			semaError("print_char expects a single u8 argument")
		}
		return
	case "read_char":
		if len(x.Args) != 0 {
			semaError("read_char takes no arguments")
		}
		x.SetType(TU8)
		return
	}

	fn, ok := c.funcs[x.Callee]
	if !ok {
		semaError("call to undeclared function %q", x.Callee)
	}
	if len(x.Args) != len(fn.Params) {
		semaError("call to %q: expected %d arguments, got %d", x.Callee, len(fn.Params), len(x.Args))
	}
	for i, a := range x.Args {
		c.checkExprWithHint(a, fn.Params[i].Type)
		if !a.GetType().Equal(fn.Params[i].Type) {
			semaError("call to %q: argument %d type %v does not match parameter type %v",
				x.Callee, i, a.GetType(), fn.Params[i].Type)
		}
	}
	if fn.RetType != nil {
		x.SetType(fn.RetType)
	}
}

// checkExprWithHint checks e the same way checkExpr does, but when e is an
// untyped integer literal (or an arithmetic expression built from them) and
// hint names a wider or narrower integer width that the literal's value
// still fits in, the literal is typed to hint instead of falling back to
// checkExpr's magnitude-based default. This lets `let x: u32 = 0;` and
// `i + 1` (i: u32) typecheck without a separate untyped-literal IR
// representation: HIR source has no syntax for a bare untyped constant, so
// the hint is threaded down from the nearest syntactic context that fixes
// a width (let/assign/return/call-argument) instead.
func (c *Checker) checkExprWithHint(e Expr, hint *Type) {
	switch x := e.(type) {
	case *IntLit:
		if hint != nil && hint.IsInt() && fitsWidth(x.Value, hint) {
			x.SetType(hint)
			return
		}
		c.checkExpr(e)
	case *BinaryExpr:
		switch x.Op {
		case TkPlus, TkMinus, TkStar, TkSlash, TkPercent:
			var h *Type
			if hint != nil && hint.IsInt() {
				h = hint
			}
			c.checkExprWithHint(x.Left, h)
			c.checkExprWithHint(x.Right, h)
			c.combineBinary(x)
		default:
			c.checkExpr(e)
		}
	default:
		c.checkExpr(e)
	}
}

func fitsWidth(v uint32, t *Type) bool {
	switch t.Kind {
	case KindU8:
		return v <= 0xff
	case KindU32:
		return true
	default:
		return false
	}
}
