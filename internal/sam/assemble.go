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
	"encoding/binary"

	"github.com/brainpluck/brainpluck/internal/utils"
)

// StackBaseLabel is a pseudo data label the assembler always resolves to
// the first tape address past the assembled image (4-aligned). The HIR
// bootstrap loads it into B so the call stack starts above code and
// string data.
const StackBaseLabel = "__stack_base"

// Image is the assembled result: a byte-addressable program occupying
// [0, CodeSize) followed by interned string data, plus the entry address
// SAM execution begins at.
type Image struct {
	Bytes     []byte
	CodeSize  int
	EntryAddr int
	// HaltAddr is the one-past-end address the interpreter (native or
	// BF-hosted) treats as the termination sentinel.
	HaltAddr int
}

// Assemble performs the two-pass encoding: pass 1 assigns a tape address
// to every instruction by accumulating fixed sizes, pass 2 emits concrete
// bytes with absolute call/data addresses and relative branch offsets
// resolved.
func Assemble(p Program) Image {
	// Pass 1: address of every instruction, by running size accumulation.
	addrs := make([]int, len(p.Instrs)+1)
	off := 0
	for i, instr := range p.Instrs {
		addrs[i] = off
		off += instr.Op.Size()
	}
	addrs[len(p.Instrs)] = off // one-past-end sentinel address
	codeSize := off

	labelAddr := make(map[string]int, len(p.Labels))
	for name, idx := range p.Labels {
		labelAddr[name] = addrs[idx]
	}

	strAddr := make(map[string]int, len(p.Strings)+1)
	cursor := codeSize
	for _, s := range p.Strings {
		strAddr[s.Label] = cursor
		cursor += len(s.Data)
	}
	strAddr[StackBaseLabel] = (cursor + 3) &^ 3

	entryAddr, ok := labelAddr[p.Entry]
	utils.Assert(ok, "sam: unresolved entry label %q", p.Entry)

	// Pass 2: emit concrete bytes.
	buf := make([]byte, 0, cursor)
	for i, instr := range p.Instrs {
		here := addrs[i]
		buf = appendInstr(buf, instr, here, labelAddr, strAddr)
	}
	utils.Assert(len(buf) == codeSize, "sam: encoded code size %d does not match computed size %d", len(buf), codeSize)
	for _, s := range p.Strings {
		buf = append(buf, s.Data...)
	}

	return Image{
		Bytes:     buf,
		CodeSize:  codeSize,
		EntryAddr: entryAddr,
		HaltAddr:  codeSize,
	}
}

func appendInstr(buf []byte, instr Instr, here int, labelAddr, strAddr map[string]int) []byte {
	buf = append(buf, byte(instr.Op))
	switch instr.Op {
	case OpHalt, OpCopyAToB, OpCopyAToC, OpCopyBToA, OpCopyXToA, OpCopyAToX, OpSwapBC,
		OpReadAAtB8, OpReadAAtB32, OpWriteAAtB8, OpWriteAAtB32, OpReadXAtB, OpWriteXAtB,
		OpAdd8, OpSub8, OpMul8, OpDiv8, OpMod8,
		OpAdd32, OpSub32, OpMul32, OpDiv32, OpMod32,
		OpCmp8, OpCmp32, OpRet, OpPrintCharX, OpStdinX, OpPrintA32, OpPrintA8:
		// no operands
	case OpSetA8, OpSetX, OpXEq, OpXNeq:
		buf = append(buf, instr.Imm8)
	case OpSetA32:
		if instr.Target != "" {
			// LoadStringAddr/LoadStackBase form: the operand is the
			// resolved address of a data label, not a literal constant.
			addr, ok := strAddr[instr.Target]
			utils.Assert(ok, "sam: unresolved data label %q", instr.Target)
			buf = append32(buf, uint32(addr))
		} else {
			buf = append32(buf, uint32(instr.Imm32))
		}
	case OpAddConstToB:
		buf = append32(buf, uint32(instr.Imm32))
	case OpJump, OpJumpIfX, OpJumpIfNX:
		target, ok := labelAddr[instr.Target]
		utils.Assert(ok, "sam: unresolved branch target %q", instr.Target)
		rel := int32(target - here)
		buf = append32(buf, uint32(rel))
	case OpCall:
		target, ok := labelAddr[instr.Target]
		utils.Assert(ok, "sam: unresolved call target %q", instr.Target)
		buf = append32(buf, uint32(target))
	case OpPrintStr:
		addr, ok := strAddr[instr.Target]
		utils.Assert(ok, "sam: unresolved string label %q", instr.Target)
		buf = append32(buf, uint32(addr))
		buf = append32(buf, uint32(instr.Len))
	default:
		panic("sam: unhandled opcode in encoder")
	}
	return buf
}

func append32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
