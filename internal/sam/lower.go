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
package sam

import (
	"github.com/sirupsen/logrus"

	"github.com/brainpluck/brainpluck/internal/hir"
	"github.com/brainpluck/brainpluck/internal/utils"
)

// Stack frame layout, byte offsets from B (the frame base):
//
//	+0  return address (pushed by Call)
//	+4  saved B        (pushed by Call)
//	+8  parameters, in declaration order
//	+N  locals, one slot per let (shadowing lets get distinct slots)
//	+M  expression temporaries, pushed and popped during evaluation
//
// The stack grows toward higher addresses. Temporaries are always 4-byte
// slots holding a zero-extended value, regardless of the static width, so
// a temp load/store is always a 32-bit access.
const frameHeaderSize = 8

type varSlot struct {
	off int
	typ *hir.Type
}

// lowerer walks a type-checked HIR program function by function and emits
// SAM pseudo-instructions through a Builder. Expression evaluation is a
// stack machine over A: each operator leaves its result in A, spilling
// operands to frame temporaries as needed.
type lowerer struct {
	b     *Builder
	funcs map[string]*hir.Function

	fn         *hir.Function
	scopes     []map[string]varSlot
	letOffs    map[*hir.LetStmt]int
	staticSize int // frameHeaderSize + params + locals
	tempDepth  int // bytes of live temporaries past staticSize
}

// Lower converts a checked program into a SAM pseudo-program with the
// bootstrap entry block: set B to the stack base, call main, then jump to
// the one-past-end halt sentinel.
func Lower(prog *hir.Program) Program {
	l := &lowerer{b: NewBuilder(), funcs: map[string]*hir.Function{}}
	hasMain := false
	for _, fn := range prog.Funcs {
		l.funcs[fn.Name] = fn
		if fn.Name == "main" {
			hasMain = true
		}
	}
	if !hasMain {
		panic("semantic error: program has no main function")
	}

	l.b.Mark("__start")
	l.b.LoadStackBase()
	l.b.CopyAToB()
	l.b.Call("f.main")
	l.b.Jump("__end")

	for _, fn := range prog.Funcs {
		l.lowerFunction(fn)
	}
	l.b.Mark("__end")
	return l.b.Finish("__start")
}

func (l *lowerer) lowerFunction(fn *hir.Function) {
	logrus.WithField("func", fn.Name).Debug("lowering function")
	l.fn = fn
	l.scopes = nil
	l.letOffs = map[*hir.LetStmt]int{}
	l.tempDepth = 0

	l.b.Mark("f." + fn.Name)
	l.pushScope()
	off := frameHeaderSize
	for _, p := range fn.Params {
		l.declare(p.Name, varSlot{off: off, typ: p.Type})
		off += p.Type.Size()
	}
	off = l.assignLetOffsets(fn.Body, off)
	l.staticSize = off

	l.lowerBlock(fn.Body)
	// The tail value, when present, is already in A. For functions whose
	// every path returns explicitly this Ret is dead but harmless.
	l.b.Ret()
	l.popScope()
	utils.Assert(l.tempDepth == 0, "sam: temp stack imbalance lowering %q", fn.Name)
}

// assignLetOffsets walks every statement of a body and gives each let a
// distinct frame offset. Shadowed names coexist at different offsets; the
// scope maps decide which one an identifier resolves to.
func (l *lowerer) assignLetOffsets(b *hir.Block, off int) int {
	for _, s := range b.Stmts {
		switch st := s.(type) {
		case *hir.LetStmt:
			l.letOffs[st] = off
			off += st.Type.Size()
		case *hir.IfStmt:
			off = l.assignLetOffsets(st.Then, off)
			if st.Else != nil {
				off = l.assignLetOffsets(st.Else, off)
			}
		case *hir.WhileStmt:
			off = l.assignLetOffsets(st.Body, off)
		}
	}
	return off
}

func (l *lowerer) pushScope() { l.scopes = append(l.scopes, map[string]varSlot{}) }
func (l *lowerer) popScope()  { l.scopes = l.scopes[:len(l.scopes)-1] }

func (l *lowerer) declare(name string, v varSlot) {
	l.scopes[len(l.scopes)-1][name] = v
}

func (l *lowerer) resolve(name string) varSlot {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if v, ok := l.scopes[i][name]; ok {
			return v
		}
	}
	panic("sam: unresolved identifier " + name)
}

// ---------------------------------------------------------------------------
// Frame access helpers. B always points at the frame base on entry and exit
// of every helper; addressing is done by stepping B to the slot and back.

func (l *lowerer) pushTemp() int {
	off := l.staticSize + l.tempDepth
	l.tempDepth += 4
	return off
}

func (l *lowerer) popTemp() {
	l.tempDepth -= 4
	utils.Assert(l.tempDepth >= 0, "sam: temp stack underflow")
}

func (l *lowerer) storeAAt(off, size int) {
	l.b.AddConstToB(int32(off))
	if size == 1 {
		l.b.WriteAAtB8()
	} else {
		l.b.WriteAAtB32()
	}
	l.b.AddConstToB(int32(-off))
}

func (l *lowerer) loadAAt(off, size int) {
	l.b.AddConstToB(int32(off))
	if size == 1 {
		l.b.ReadAAtB8()
	} else {
		l.b.ReadAAtB32()
	}
	l.b.AddConstToB(int32(-off))
}

func (l *lowerer) storeTemp(off int) { l.storeAAt(off, 4) }
func (l *lowerer) loadTemp(off int)  { l.loadAAt(off, 4) }

// withBAt runs emit with B stepped to base+off, restoring B afterwards.
func (l *lowerer) withBAt(off int, emit func()) {
	l.b.AddConstToB(int32(off))
	emit()
	l.b.AddConstToB(int32(-off))
}

// ---------------------------------------------------------------------------
// Statements

func (l *lowerer) lowerBlock(b *hir.Block) {
	l.pushScope()
	for _, s := range b.Stmts {
		l.lowerStmt(s)
	}
	if b.Tail != nil {
		l.lowerExpr(b.Tail)
	}
	l.popScope()
}

func (l *lowerer) lowerStmt(s hir.Stmt) {
	switch st := s.(type) {
	case *hir.LetStmt:
		l.lowerExpr(st.Init)
		off := l.letOffs[st]
		l.storeAAt(off, st.Type.Size())
		l.declare(st.Name, varSlot{off: off, typ: st.Type})
	case *hir.AssignStmt:
		if st.Star {
			l.lowerStoreThrough(st.Deref, st.Value)
		} else {
			v := l.resolve(st.Name)
			l.lowerExpr(st.Value)
			l.storeAAt(v.off, v.typ.Size())
		}
	case *hir.IfStmt:
		elseL := l.b.NewLabel("else")
		endL := l.b.NewLabel("endif")
		l.lowerCond(st.Cond)
		l.b.JumpIfNX(elseL)
		l.lowerBlock(st.Then)
		l.b.Jump(endL)
		l.b.Mark(elseL)
		if st.Else != nil {
			l.lowerBlock(st.Else)
		}
		l.b.Mark(endL)
	case *hir.WhileStmt:
		headL := l.b.NewLabel("while")
		endL := l.b.NewLabel("endwhile")
		l.b.Mark(headL)
		l.lowerCond(st.Cond)
		l.b.JumpIfNX(endL)
		l.lowerBlock(st.Body)
		l.b.Jump(headL)
		l.b.Mark(endL)
	case *hir.ReturnStmt:
		if st.Value != nil {
			l.lowerExpr(st.Value)
		}
		l.b.Ret()
	case *hir.ExprStmt:
		l.lowerExpr(st.X)
	default:
		utils.ShouldNotReachHere()
	}
}

// lowerCond evaluates a bool expression and leaves it in X, ready for
// JumpIfX/JumpIfNX.
func (l *lowerer) lowerCond(e hir.Expr) {
	l.lowerExpr(e)
	l.b.CopyAToX()
}

// lowerStoreThrough lowers `*ptr = value`. The value is evaluated first
// and spilled, so the pointer can sit in C across the value reload: C is
// only clobbered by the SwapBC addressing dance, and nothing between
// CopyAToC and the final swap performs one.
func (l *lowerer) lowerStoreThrough(ptr, value hir.Expr) {
	elem := ptr.GetType().Elem
	l.lowerExpr(value)
	t := l.pushTemp()
	l.storeTemp(t)
	l.lowerExpr(ptr)
	l.b.CopyAToC()
	l.loadTemp(t)
	l.b.SwapBC()
	if elem.Size() == 1 {
		l.b.WriteAAtB8()
	} else {
		l.b.WriteAAtB32()
	}
	l.b.SwapBC()
	l.popTemp()
}

// ---------------------------------------------------------------------------
// Expressions. Every lowerExpr leaves its result in A (zero-extended for
// u8/bool values).

func (l *lowerer) lowerExpr(e hir.Expr) {
	switch x := e.(type) {
	case *hir.IntLit:
		if x.GetType().Size() == 1 {
			l.b.SetA8(byte(x.Value))
		} else {
			l.b.SetA32(int32(x.Value))
		}
	case *hir.BoolLit:
		if x.Value {
			l.b.SetA8(1)
		} else {
			l.b.SetA8(0)
		}
	case *hir.StrLit:
		lbl := l.b.InternString(x.Value)
		l.b.LoadStringAddr(lbl)
	case *hir.Ident:
		v := l.resolve(x.Name)
		l.loadAAt(v.off, v.typ.Size())
	case *hir.UnaryExpr:
		l.lowerUnary(x)
	case *hir.BinaryExpr:
		l.lowerBinary(x)
	case *hir.CallExpr:
		l.lowerCall(x)
	case *hir.BlockExpr:
		l.lowerBlock(x.Block)
	default:
		utils.ShouldNotReachHere()
	}
}

func (l *lowerer) lowerUnary(x *hir.UnaryExpr) {
	switch x.Op {
	case hir.TkMinus:
		// 0 - x, in the operand's width.
		width8 := x.GetType().Size() == 1
		l.lowerExpr(x.X)
		t := l.pushTemp()
		l.storeTemp(t)
		if width8 {
			l.b.SetA8(0)
		} else {
			l.b.SetA32(0)
		}
		l.withBAt(t, func() {
			if width8 {
				l.b.Arith(OpSub8)
			} else {
				l.b.Arith(OpSub32)
			}
		})
		l.popTemp()
	case hir.TkBang:
		l.lowerExpr(x.X)
		l.b.CopyAToX()
		l.b.XEq(0)
		l.b.CopyXToA()
	case hir.TkAmp:
		v := l.resolve(x.X.(*hir.Ident).Name)
		l.b.AddConstToB(int32(v.off))
		l.b.CopyBToA()
		l.b.AddConstToB(int32(-v.off))
	case hir.TkStar:
		l.lowerExpr(x.X)
		l.b.CopyAToC()
		l.b.SwapBC()
		if x.GetType().Size() == 1 {
			l.b.ReadAAtB8()
		} else {
			l.b.ReadAAtB32()
		}
		l.b.SwapBC()
	default:
		utils.ShouldNotReachHere()
	}
}

func (l *lowerer) lowerBinary(x *hir.BinaryExpr) {
	switch x.Op {
	case hir.TkAndAnd, hir.TkOrOr:
		l.lowerShortCircuit(x)
		return
	}

	// Left-to-right evaluation: both operands spilled, left reloaded into
	// A, B stepped to the right operand's temp for the memory-side operand.
	l.lowerExpr(x.Left)
	lt := l.pushTemp()
	l.storeTemp(lt)
	l.lowerExpr(x.Right)
	rt := l.pushTemp()
	l.storeTemp(rt)
	l.loadTemp(lt)

	switch x.Op {
	case hir.TkEq, hir.TkNe, hir.TkLt, hir.TkLe, hir.TkGt, hir.TkGe:
		width8 := x.Left.GetType().Size() == 1
		l.withBAt(rt, func() { l.b.Cmp(width8) })
		switch x.Op {
		case hir.TkEq:
			l.b.XEq(0)
		case hir.TkNe:
			l.b.XNeq(0)
		case hir.TkLt:
			l.b.XEq(0xFF)
		case hir.TkGe:
			l.b.XNeq(0xFF)
		case hir.TkGt:
			l.b.XEq(1)
		case hir.TkLe:
			l.b.XNeq(1)
		}
		l.b.CopyXToA()
	case hir.TkPlus, hir.TkMinus, hir.TkStar, hir.TkSlash, hir.TkPercent:
		// Pointer arithmetic is byte-addressed 32-bit arithmetic; the
		// integer side was spilled zero-extended, so the 32-bit op is
		// correct for mixed ptr/int operands too.
		width8 := x.GetType().Size() == 1
		op := arithOp(x.Op, width8)
		l.withBAt(rt, func() { l.b.Arith(op) })
	default:
		utils.ShouldNotReachHere()
	}
	l.popTemp()
	l.popTemp()
}

func arithOp(tk hir.TokenKind, width8 bool) Op {
	type pair struct{ w8, w32 Op }
	table := map[hir.TokenKind]pair{
		hir.TkPlus:    {OpAdd8, OpAdd32},
		hir.TkMinus:   {OpSub8, OpSub32},
		hir.TkStar:    {OpMul8, OpMul32},
		hir.TkSlash:   {OpDiv8, OpDiv32},
		hir.TkPercent: {OpMod8, OpMod32},
	}
	p, ok := table[tk]
	utils.Assert(ok, "sam: no arithmetic opcode for token %v", tk)
	if width8 {
		return p.w8
	}
	return p.w32
}

// lowerShortCircuit lowers && and || with branches, so the right operand
// is only evaluated when it can still affect the result.
func (l *lowerer) lowerShortCircuit(x *hir.BinaryExpr) {
	outL := l.b.NewLabel("sc")
	endL := l.b.NewLabel("scend")
	l.lowerCond(x.Left)
	if x.Op == hir.TkAndAnd {
		l.b.JumpIfNX(outL) // left false: whole expression false
	} else {
		l.b.JumpIfX(outL) // left true: whole expression true
	}
	l.lowerExpr(x.Right)
	l.b.Jump(endL)
	l.b.Mark(outL)
	if x.Op == hir.TkAndAnd {
		l.b.SetA8(0)
	} else {
		l.b.SetA8(1)
	}
	l.b.Mark(endL)
}

// ---------------------------------------------------------------------------
// Calls

func (l *lowerer) lowerCall(x *hir.CallExpr) {
	switch x.Callee {
	case "print", "println":
		l.lowerPrint(x)
		return
	case "print_char":
		l.lowerExpr(x.Args[0])
		l.b.CopyAToX()
		l.b.PrintCharX()
		return
	case "read_char":
		l.b.StdinX()
		l.b.CopyXToA()
		return
	}

	fn, ok := l.funcs[x.Callee]
	utils.Assert(ok, "sam: call to unknown function %q survived checking", x.Callee)

	// The callee's frame starts past everything live in this frame:
	// static slots plus any temporaries currently pushed. Argument slots
	// are part of the callee's frame, so while arguments are being
	// evaluated the temp watermark is raised past them; otherwise a
	// temporary spilled while computing argument 2 would overwrite the
	// already-stored argument 1.
	savedDepth := l.tempDepth
	calleeOff := l.staticSize + alignUp4(savedDepth)
	argOff := calleeOff + frameHeaderSize
	for _, p := range fn.Params {
		argOff += p.Type.Size()
	}
	l.tempDepth = argOff - l.staticSize

	off := calleeOff + frameHeaderSize
	for i, a := range x.Args {
		l.lowerExpr(a)
		size := fn.Params[i].Type.Size()
		l.storeAAt(off, size)
		off += size
	}

	l.b.AddConstToB(int32(calleeOff))
	l.b.Call("f." + fn.Name)
	l.b.AddConstToB(int32(-calleeOff))
	l.tempDepth = savedDepth
}

// lowerPrint handles the overloaded print/println builtins: string
// literals go out via PrintStr, integers via the decimal-print opcodes.
func (l *lowerer) lowerPrint(x *hir.CallExpr) {
	arg := x.Args[0]
	if s, ok := arg.(*hir.StrLit); ok {
		lbl := l.b.InternString(s.Value)
		l.b.PrintStr(lbl, len(s.Value))
	} else {
		l.lowerExpr(arg)
		if arg.GetType().Size() == 1 {
			l.b.PrintA8()
		} else {
			l.b.PrintA32()
		}
	}
	if x.Callee == "println" {
		l.b.SetX('\n')
		l.b.PrintCharX()
	}
}

func alignUp4(n int) int { return (n + 3) &^ 3 }
