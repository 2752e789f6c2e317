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
	"fmt"

	"github.com/brainpluck/brainpluck/internal/utils"
)

// Builder accumulates a Program: structured instructions, label marks, and
// interned string literals, ready for the two-pass assembler.
type Builder struct {
	prog      Program
	nextLabel int
	marked    *utils.Set[string]
	strSeen   map[string]string // literal text -> label, for interning
}

func NewBuilder() *Builder {
	return &Builder{
		prog:    Program{Labels: map[string]int{}},
		marked:  utils.NewSet[string](),
		strSeen: map[string]string{},
	}
}

func (b *Builder) NewLabel(prefix string) string {
	b.nextLabel++
	return fmt.Sprintf(".%s%d", prefix, b.nextLabel)
}

// Mark binds label to the instruction about to be emitted next. Marking
// the same label twice is a lowering bug.
func (b *Builder) Mark(label string) {
	utils.Assert(b.marked.Add(label), "sam: label %q marked twice", label)
	b.prog.Labels[label] = len(b.prog.Instrs)
}

func (b *Builder) emit(i Instr) {
	b.prog.Instrs = append(b.prog.Instrs, i)
}

func (b *Builder) Halt()         { b.emit(Instr{Op: OpHalt}) }
func (b *Builder) SetA8(v byte)  { b.emit(Instr{Op: OpSetA8, Imm8: v}) }
func (b *Builder) SetA32(v int32) { b.emit(Instr{Op: OpSetA32, Imm32: v}) }
func (b *Builder) SetX(v byte)   { b.emit(Instr{Op: OpSetX, Imm8: v}) }
func (b *Builder) CopyAToB()     { b.emit(Instr{Op: OpCopyAToB}) }
func (b *Builder) CopyAToC()     { b.emit(Instr{Op: OpCopyAToC}) }
func (b *Builder) CopyBToA()     { b.emit(Instr{Op: OpCopyBToA}) }
func (b *Builder) CopyXToA()     { b.emit(Instr{Op: OpCopyXToA}) }
func (b *Builder) CopyAToX()     { b.emit(Instr{Op: OpCopyAToX}) }
func (b *Builder) SwapBC()       { b.emit(Instr{Op: OpSwapBC}) }
func (b *Builder) AddConstToB(v int32) { b.emit(Instr{Op: OpAddConstToB, Imm32: v}) }
func (b *Builder) ReadAAtB8()    { b.emit(Instr{Op: OpReadAAtB8}) }
func (b *Builder) ReadAAtB32()   { b.emit(Instr{Op: OpReadAAtB32}) }
func (b *Builder) WriteAAtB8()   { b.emit(Instr{Op: OpWriteAAtB8}) }
func (b *Builder) WriteAAtB32()  { b.emit(Instr{Op: OpWriteAAtB32}) }
func (b *Builder) ReadXAtB()     { b.emit(Instr{Op: OpReadXAtB}) }
func (b *Builder) WriteXAtB()    { b.emit(Instr{Op: OpWriteXAtB}) }

func (b *Builder) Arith(op Op) { b.emit(Instr{Op: op}) }

func (b *Builder) Cmp(width8 bool) {
	if width8 {
		b.emit(Instr{Op: OpCmp8})
	} else {
		b.emit(Instr{Op: OpCmp32})
	}
}

func (b *Builder) XEq(v byte)  { b.emit(Instr{Op: OpXEq, Imm8: v}) }
func (b *Builder) XNeq(v byte) { b.emit(Instr{Op: OpXNeq, Imm8: v}) }

func (b *Builder) Jump(target string)     { b.emit(Instr{Op: OpJump, Target: target}) }
func (b *Builder) JumpIfX(target string)  { b.emit(Instr{Op: OpJumpIfX, Target: target}) }
func (b *Builder) JumpIfNX(target string) { b.emit(Instr{Op: OpJumpIfNX, Target: target}) }
func (b *Builder) Call(target string)     { b.emit(Instr{Op: OpCall, Target: target}) }
func (b *Builder) Ret()                   { b.emit(Instr{Op: OpRet}) }

func (b *Builder) PrintCharX() { b.emit(Instr{Op: OpPrintCharX}) }
func (b *Builder) StdinX()     { b.emit(Instr{Op: OpStdinX}) }
func (b *Builder) PrintA32()   { b.emit(Instr{Op: OpPrintA32}) }
func (b *Builder) PrintA8()    { b.emit(Instr{Op: OpPrintA8}) }

// InternString interns s as a data label and returns it, reusing an
// existing label if the same text has already been emitted in this
// program (a minor constant-pooling courtesy, not required by the source).
func (b *Builder) InternString(s string) string {
	if lbl, ok := b.strSeen[s]; ok {
		return lbl
	}
	lbl := b.NewLabel("str")
	b.prog.Strings = append(b.prog.Strings, StringLit{Label: lbl, Data: []byte(s)})
	b.strSeen[s] = lbl
	return lbl
}

func (b *Builder) PrintStr(label string, length int) {
	b.emit(Instr{Op: OpPrintStr, Target: label, Len: int32(length)})
}

// LoadStringAddr emits a SetA32 instruction whose operand is the absolute
// address the assembler resolves for an interned string label, rather than
// a literal constant (OpSetA32 stores either, distinguished by whether
// Target is set). This gives pointer-typed uses of a string literal (as
// opposed to print/println's special-cased PrintStr path) a way to load
// the literal's address as an ordinary value.
func (b *Builder) LoadStringAddr(label string) {
	b.emit(Instr{Op: OpSetA32, Target: label})
}

// LoadStackBase loads the assembler-resolved first-free tape address
// (one past code and string data) into A.
func (b *Builder) LoadStackBase() {
	b.emit(Instr{Op: OpSetA32, Target: StackBaseLabel})
}

func (b *Builder) Finish(entry string) Program {
	b.prog.Entry = entry
	return b.prog
}
