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

// Package sam implements the register-machine bytecode that sits between
// HIR and the Brainfuck-hosted interpreter: a small fixed instruction set
// over five registers (A, B, C, X, I), a buffer-oriented builder, a
// two-pass assembler, and a reference interpreter. Memory is a linear
// byte tape addressed through B; arbitrary-address access swaps B with C
// around the operation.
package sam

import "fmt"

// Op is a SAM opcode. Every instruction has a fixed on-tape size so the
// interpreter can advance I without decoding length separately from the
// opcode.
type Op byte

const (
	OpHalt Op = iota

	OpSetA8  // imm8  -> zero-extend into A
	OpSetA32 // imm32 -> A
	OpSetX   // imm8  -> X

	OpCopyAToB
	OpCopyAToC
	OpCopyBToA
	OpCopyXToA // A = zero-extend(X)
	OpCopyAToX // X = A & 0xff
	OpSwapBC

	OpAddConstToB // imm32 signed, B += imm

	OpReadAAtB8  // A = zero-extend(cell[B])
	OpReadAAtB32 // A = cell[B..B+4) little-endian
	OpWriteAAtB8 // cell[B] = A & 0xff
	OpWriteAAtB32
	OpReadXAtB
	OpWriteXAtB

	OpAdd8
	OpSub8
	OpMul8
	OpDiv8
	OpMod8
	OpAdd32
	OpSub32
	OpMul32
	OpDiv32
	OpMod32

	// OpCmp{8,32} sets X to the signed tri-state comparison of A against
	// cell(s) at B: 0xFF (A<mem, i.e. -1), 0x00 (equal), 0x01 (A>mem).
	OpCmp8
	OpCmp32

	// OpXEq/OpXNeq collapse the tri-state in X into a bool, so comparison
	// results can be materialized into A and stored like any other u8.
	OpXEq  // imm8: X = (X == imm) ? 1 : 0
	OpXNeq // imm8: X = (X != imm) ? 1 : 0

	OpJump     // offset32 signed, relative to the start of this instruction
	OpJumpIfX  // offset32 signed; taken when X != 0
	OpJumpIfNX // offset32 signed; taken when X == 0

	OpCall // addr32 absolute
	OpRet

	OpPrintCharX // output the byte in X
	OpStdinX     // X = next input byte, or 0 if exhausted
	OpPrintA32   // print A as unsigned decimal (u32 width)
	OpPrintA8    // print A&0xff as unsigned decimal (u8 width)
	OpPrintStr   // addr32, len32: print len bytes of program memory at addr
)

// Size is the fixed on-tape width of an instruction with this opcode,
// opcode byte included.
func (op Op) Size() int {
	switch op {
	case OpHalt, OpCopyAToB, OpCopyAToC, OpCopyBToA, OpCopyXToA, OpCopyAToX, OpSwapBC,
		OpReadAAtB8, OpReadAAtB32, OpWriteAAtB8, OpWriteAAtB32, OpReadXAtB, OpWriteXAtB,
		OpAdd8, OpSub8, OpMul8, OpDiv8, OpMod8,
		OpAdd32, OpSub32, OpMul32, OpDiv32, OpMod32,
		OpCmp8, OpCmp32, OpRet, OpPrintCharX, OpStdinX, OpPrintA32, OpPrintA8:
		return 1
	case OpSetA8, OpSetX, OpXEq, OpXNeq:
		return 2
	case OpSetA32, OpAddConstToB, OpJump, OpJumpIfX, OpJumpIfNX, OpCall:
		return 5
	case OpPrintStr:
		return 9
	default:
		panic(fmt.Sprintf("sam: unknown opcode %d", op))
	}
}

func (op Op) String() string {
	names := map[Op]string{
		OpHalt: "halt", OpSetA8: "set.a8", OpSetA32: "set.a32", OpSetX: "set.x",
		OpCopyAToB: "mov.a,b", OpCopyAToC: "mov.a,c", OpCopyBToA: "mov.b,a",
		OpCopyXToA: "mov.x,a", OpCopyAToX: "mov.a,x", OpSwapBC: "swap.b,c",
		OpAddConstToB: "add.b,imm", OpReadAAtB8: "ld.a8", OpReadAAtB32: "ld.a32",
		OpWriteAAtB8: "st.a8", OpWriteAAtB32: "st.a32", OpReadXAtB: "ld.x", OpWriteXAtB: "st.x",
		OpAdd8: "add8", OpSub8: "sub8", OpMul8: "mul8", OpDiv8: "div8", OpMod8: "mod8",
		OpAdd32: "add32", OpSub32: "sub32", OpMul32: "mul32", OpDiv32: "div32", OpMod32: "mod32",
		OpCmp8: "cmp8", OpCmp32: "cmp32", OpXEq: "x.eq", OpXNeq: "x.ne",
		OpJump: "jmp", OpJumpIfX: "jmp.x", OpJumpIfNX: "jmp.nx",
		OpCall: "call", OpRet: "ret",
		OpPrintCharX: "out.x", OpStdinX: "in.x", OpPrintA32: "out.dec32", OpPrintA8: "out.dec8",
		OpPrintStr: "out.str",
	}
	if n, ok := names[op]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", byte(op))
}
