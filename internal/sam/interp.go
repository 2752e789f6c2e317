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
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brainpluck/brainpluck/internal/utils"
)

// DivModByZeroSentinel is written into X whenever a division or modulo
// instruction divides by zero: A is left unchanged and X is set to this
// sentinel, so the event is observable without the interpreter crashing,
// looping, or corrupting unrelated state. The Brainfuck-hosted
// interpreter implements the identical convention.
const DivModByZeroSentinel = 0xFF

// Interp is a direct reference interpreter over an assembled Image, used
// by the debug entry point and for checking that the Brainfuck-hosted
// interpreter produces identical output. No JIT, no caching, just
// fetch/decode/execute.
type Interp struct {
	tape  []byte
	A, C  uint32
	B     uint32
	I     uint32
	X     byte
	input []byte
	inPos int
	out   []byte
	log   *logrus.Logger

	tracing bool
	trace   []string
}

func NewInterp(img Image, input []byte) *Interp {
	tape := make([]byte, len(img.Bytes))
	copy(tape, img.Bytes)
	return &Interp{
		tape:  tape,
		I:     uint32(img.EntryAddr),
		input: input,
		log:   logrus.StandardLogger(),
	}
}

func (vm *Interp) ensure(addr uint32) {
	if int(addr) >= len(vm.tape) {
		grown := make([]byte, int(addr)+1)
		copy(grown, vm.tape)
		vm.tape = grown
	}
}

func (vm *Interp) readByte(addr uint32) byte {
	vm.ensure(addr)
	return vm.tape[addr]
}

func (vm *Interp) writeByte(addr uint32, v byte) {
	vm.ensure(addr)
	vm.tape[addr] = v
}

func (vm *Interp) read32(addr uint32) uint32 {
	vm.ensure(addr + 3)
	return binary.LittleEndian.Uint32(vm.tape[addr : addr+4])
}

func (vm *Interp) write32(addr uint32, v uint32) {
	vm.ensure(addr + 3)
	binary.LittleEndian.PutUint32(vm.tape[addr:addr+4], v)
}

// EnableTrace makes Run record one line per executed instruction:
// mnemonic plus the register file after execution. The trace is returned
// by Trace once Run finishes.
func (vm *Interp) EnableTrace() { vm.tracing = true }

func (vm *Interp) Trace() []string { return vm.trace }

// Run executes from the entry label until the halt sentinel address is
// reached, returning accumulated output bytes. haltAddr is img.HaltAddr.
func (vm *Interp) Run(haltAddr uint32) []byte {
	steps := 0
	for vm.I != haltAddr {
		vm.step()
		steps++
		utils.Assert(steps < 1<<30, "sam interpreter: exceeded step budget, likely runaway program")
	}
	return vm.out
}

func (vm *Interp) step() {
	op := Op(vm.readByte(vm.I))
	if vm.log.IsLevelEnabled(logrus.DebugLevel) {
		vm.log.WithFields(logrus.Fields{"I": vm.I, "op": op.String(), "A": vm.A, "B": vm.B, "X": vm.X}).Debug("sam step")
	}
	size := uint32(op.Size())
	advance := true

	switch op {
	case OpHalt:
		// unreachable in a well-formed program: the loop in Run stops at
		// HaltAddr before fetching this opcode. Kept for interpreter
		// completeness if a program halts early via explicit Jump here.
	case OpSetA8:
		vm.A = uint32(vm.readByte(vm.I + 1))
	case OpSetA32:
		vm.A = vm.read32(vm.I + 1)
	case OpSetX:
		vm.X = vm.readByte(vm.I + 1)
	case OpCopyAToB:
		vm.B = vm.A
	case OpCopyAToC:
		vm.C = vm.A
	case OpCopyBToA:
		vm.A = vm.B
	case OpCopyXToA:
		vm.A = uint32(vm.X)
	case OpCopyAToX:
		vm.X = byte(vm.A)
	case OpSwapBC:
		vm.B, vm.C = vm.C, vm.B
	case OpAddConstToB:
		vm.B = uint32(int64(vm.B) + int64(vm.read32(vm.I+1)))
	case OpReadAAtB8:
		vm.A = uint32(vm.readByte(vm.B))
	case OpReadAAtB32:
		vm.A = vm.read32(vm.B)
	case OpWriteAAtB8:
		vm.writeByte(vm.B, byte(vm.A))
	case OpWriteAAtB32:
		vm.write32(vm.B, vm.A)
	case OpReadXAtB:
		vm.X = vm.readByte(vm.B)
	case OpWriteXAtB:
		vm.writeByte(vm.B, vm.X)
	case OpAdd8:
		vm.A = uint32(byte(vm.A) + vm.readByte(vm.B))
	case OpSub8:
		vm.A = uint32(byte(vm.A) - vm.readByte(vm.B))
	case OpMul8:
		vm.A = uint32(byte(vm.A) * vm.readByte(vm.B))
	case OpDiv8:
		d := vm.readByte(vm.B)
		if d == 0 {
			vm.X = DivModByZeroSentinel
		} else {
			vm.A = uint32(byte(vm.A) / d)
		}
	case OpMod8:
		d := vm.readByte(vm.B)
		if d == 0 {
			vm.X = DivModByZeroSentinel
		} else {
			vm.A = uint32(byte(vm.A) % d)
		}
	case OpAdd32:
		vm.A = vm.A + vm.read32(vm.B)
	case OpSub32:
		vm.A = vm.A - vm.read32(vm.B)
	case OpMul32:
		vm.A = vm.A * vm.read32(vm.B)
	case OpDiv32:
		d := vm.read32(vm.B)
		if d == 0 {
			vm.X = DivModByZeroSentinel
		} else {
			vm.A = vm.A / d
		}
	case OpMod32:
		d := vm.read32(vm.B)
		if d == 0 {
			vm.X = DivModByZeroSentinel
		} else {
			vm.A = vm.A % d
		}
	case OpCmp8:
		vm.X = cmpTriState(int64(byte(vm.A)), int64(vm.readByte(vm.B)))
	case OpCmp32:
		vm.X = cmpTriState(int64(vm.A), int64(vm.read32(vm.B)))
	case OpXEq:
		if vm.X == vm.readByte(vm.I+1) {
			vm.X = 1
		} else {
			vm.X = 0
		}
	case OpXNeq:
		if vm.X != vm.readByte(vm.I+1) {
			vm.X = 1
		} else {
			vm.X = 0
		}
	case OpJump:
		rel := int32(vm.read32(vm.I + 1))
		vm.I = uint32(int64(vm.I) + int64(rel))
		advance = false
	case OpJumpIfX:
		if vm.X != 0 {
			rel := int32(vm.read32(vm.I + 1))
			vm.I = uint32(int64(vm.I) + int64(rel))
			advance = false
		}
	case OpJumpIfNX:
		if vm.X == 0 {
			rel := int32(vm.read32(vm.I + 1))
			vm.I = uint32(int64(vm.I) + int64(rel))
			advance = false
		}
	case OpCall:
		target := vm.read32(vm.I + 1)
		retAddr := vm.I + size
		// Push return address, then saved B, onto the stack at B (the
		// callee's frame base).
		vm.write32(vm.B, retAddr)
		vm.write32(vm.B+4, vm.B)
		vm.I = target
		advance = false
	case OpRet:
		savedB := vm.read32(vm.B + 4)
		retAddr := vm.read32(vm.B)
		vm.B = savedB
		vm.I = retAddr
		advance = false
	case OpPrintCharX:
		vm.out = append(vm.out, vm.X)
	case OpStdinX:
		if vm.inPos < len(vm.input) {
			vm.X = vm.input[vm.inPos]
			vm.inPos++
		} else {
			vm.X = 0
		}
	case OpPrintA32:
		vm.out = append(vm.out, []byte(fmt.Sprintf("%d", vm.A))...)
	case OpPrintA8:
		vm.out = append(vm.out, []byte(fmt.Sprintf("%d", byte(vm.A)))...)
	case OpPrintStr:
		addr := vm.read32(vm.I + 1)
		length := vm.read32(vm.I + 5)
		for i := uint32(0); i < length; i++ {
			vm.out = append(vm.out, vm.readByte(addr+i))
		}
	default:
		panic(fmt.Sprintf("sam interpreter: unhandled opcode %v", op))
	}

	if advance {
		vm.I += size
	}
	if vm.tracing {
		vm.trace = append(vm.trace,
			fmt.Sprintf("%-10s A=%d B=%d C=%d X=%d I=%d", op, vm.A, vm.B, vm.C, vm.X, vm.I))
	}
}

func cmpTriState(a, b int64) byte {
	switch {
	case a < b:
		return 0xFF
	case a > b:
		return 0x01
	default:
		return 0x00
	}
}
