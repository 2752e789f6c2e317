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
package wasmjit

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/brainpluck/brainpluck/internal/bf"
)

// Local and global indices inside run_bf.
const (
	locState = 0 // dispatch target
	locTmp   = 1 // input byte / scratch address
	locFresh = 2 // 1 on the first read attempt after a resume

	glbCellPtr = 0
	glbResume  = 1

	fnWrite = 0
	fnRead  = 1
)

// Module is the emitted result: the binary for the host to instantiate,
// plus the equivalent text rendering for diagnostics and tests.
type Module struct {
	Binary []byte
	Wat    string
	// NumBlocks is the number of dispatch blocks; resume-state NumBlocks
	// is the terminal "completed" state.
	NumBlocks int
}

// Compile parses, optimizes, and lowers a Brainfuck program to a Wasm
// module. Unmatched brackets surface as the error.
func Compile(src string) (*Module, error) {
	nodes, err := bf.Parse(src)
	if err != nil {
		return nil, errors.Wrap(err, "bf parse")
	}
	return Emit(bf.Optimize(nodes)), nil
}

// Emit lowers optimized IR. The emitted function's shape:
//
//	state <- resume; fresh <- state != 0
//	block $exit
//	  loop $dispatch
//	    block $bN-1 ... block $b0
//	      br_table on state (default: $exit)
//	    end; <block 0>; end; <block 1>; ... <block N-1>
//	  end
//	end
//	resume <- terminal; return 0
//
// Every br_table label i exits to the code of block i; terminators jump
// back to $dispatch with a new state. A run that completed parks
// resume-state at the terminal value, so reinvocation falls through the
// br_table default and returns 0 again without touching the tape.
func Emit(nodes []*bf.Node) *Module {
	blocks := split(nodes)
	n := len(blocks)
	logrus.WithField("blocks", n).Debug("wasmjit: emitting module")

	a := newAsm()
	a.globalGet(glbResume)
	a.localSet(locState)
	a.localGet(locState)
	a.iConst(0)
	a.simple(opI32Ne, "i32.ne")
	a.localSet(locFresh)

	a.blockStart("$exit")
	a.blockStartLoop("$dispatch")
	for i := n - 1; i >= 0; i-- {
		a.blockStart(fmt.Sprintf("$b%d", i))
	}
	a.localGet(locState)
	targets := make([]int, n)
	for i := range targets {
		targets[i] = i
	}
	a.brTable(targets, n+1)

	for i, blk := range blocks {
		a.end() // closes $b<i>; code for block i follows
		a.comment(fmt.Sprintf(";; block %d", i))
		if blk.readFirst {
			emitRead(a, i)
		}
		for _, node := range blk.code {
			emitNode(a, node)
		}
		emitTerminator(a, blk.t, i, n)
	}
	a.end() // $dispatch
	a.end() // $exit

	a.iConst(n)
	a.globalSet(glbResume)
	a.iConst(0)
	a.bin = append(a.bin, opEnd) // function end; implicit in the text form

	return &Module{
		Binary:    encodeModule(a.funcBody()),
		Wat:       renderWat(a, n),
		NumBlocks: n,
	}
}

// emitRead lowers the suspendable input read at the head of block k: a
// zero from the host means "no input": commit state and return 1, unless
// this is the first read after a resume, in which case the zero is a
// deliberate byte (the host repeats it once the module has observed the
// suspension) and is stored like any other value.
func emitRead(a *asm, k int) {
	a.call(fnRead, "$read_input_byte")
	a.localTee(locTmp)
	a.simple(opI32Eqz, "i32.eqz")
	a.ifStart()
	a.localGet(locFresh)
	a.simple(opI32Eqz, "i32.eqz")
	a.ifStart()
	a.iConst(k)
	a.globalSet(glbResume)
	a.iConst(1)
	a.simple(opReturn, "return")
	a.end()
	a.globalGet(glbCellPtr)
	a.iConst(0)
	a.store8()
	a.elseStart()
	a.globalGet(glbCellPtr)
	a.localGet(locTmp)
	a.store8()
	a.end()
	a.iConst(0)
	a.localSet(locFresh)
}

func emitNode(a *asm, n *bf.Node) {
	switch n.Kind {
	case bf.OpAddCell:
		a.globalGet(glbCellPtr)
		a.globalGet(glbCellPtr)
		a.load8u()
		a.iConst(n.Arg)
		a.simple(opI32Add, "i32.add")
		a.store8()
	case bf.OpMovePtr:
		a.globalGet(glbCellPtr)
		a.iConst(n.Arg)
		a.simple(opI32Add, "i32.add")
		if n.Arg < 0 {
			// A negative pointer is the dialect's hard fault: trap
			// immediately rather than on the next (wrapped) access.
			a.localTee(locTmp)
			a.iConst(0)
			a.simple(opI32LtS, "i32.lt_s")
			a.ifStart()
			a.simple(opUnreachable, "unreachable")
			a.end()
			a.localGet(locTmp)
		}
		a.globalSet(glbCellPtr)
	case bf.OpOutput:
		a.globalGet(glbCellPtr)
		a.load8u()
		a.call(fnWrite, "$write_output_byte")
	case bf.OpSetZero:
		a.globalGet(glbCellPtr)
		a.iConst(0)
		a.store8()
	case bf.OpAddMul:
		for _, term := range n.Terms {
			a.globalGet(glbCellPtr)
			a.iConst(term.Offset)
			a.simple(opI32Add, "i32.add")
			a.localTee(locTmp)
			a.localGet(locTmp)
			a.load8u()
			a.globalGet(glbCellPtr)
			a.load8u()
			a.iConst(term.Factor)
			a.simple(opI32Mul, "i32.mul")
			a.simple(opI32Add, "i32.add")
			a.store8()
		}
	case bf.OpLoop:
		// Input-free loops stay structured; the splitter guarantees no
		// suspension point is nested here.
		a.blockStart("")
		a.blockStartLoop("")
		a.globalGet(glbCellPtr)
		a.load8u()
		a.simple(opI32Eqz, "i32.eqz")
		a.brIf(1)
		for _, child := range n.Body {
			emitNode(a, child)
		}
		a.br(0)
		a.end()
		a.end()
	case bf.OpInput:
		panic("wasmjit: input node must be a block head")
	default:
		panic("wasmjit: unknown IR node")
	}
}

// emitTerminator closes block i of n. Label depths from block i's code:
// $dispatch is n-1-i, $exit is n-i.
func emitTerminator(a *asm, t terminator, i, n int) {
	dispatch := n - 1 - i
	exit := n - i
	switch t.kind {
	case termGoto:
		a.iConst(t.to)
		a.localSet(locState)
		a.br(dispatch)
	case termCond:
		a.globalGet(glbCellPtr)
		a.load8u()
		a.ifStart()
		a.iConst(t.to)
		a.localSet(locState)
		a.elseStart()
		a.iConst(t.elseTo)
		a.localSet(locState)
		a.end()
		a.br(dispatch)
	case termExit:
		a.br(exit)
	}
}

// ---------------------------------------------------------------------------
// asm appends every instruction to both the binary body and the text
// rendering, so the two can never drift apart.

type asm struct {
	bin    []byte
	wat    []string
	indent int
}

func newAsm() *asm { return &asm{} }

func (a *asm) text(line string) {
	a.wat = append(a.wat, strings.Repeat("  ", a.indent+2)+line)
}

func (a *asm) simple(op byte, w string) {
	a.bin = append(a.bin, op)
	a.text(w)
}

func (a *asm) iConst(v int) {
	a.bin = sleb(append(a.bin, opI32Const), int32(v))
	a.text(fmt.Sprintf("i32.const %d", v))
}

func (a *asm) idx(op byte, i int, w string) {
	a.bin = uleb(append(a.bin, op), uint32(i))
	a.text(w)
}

var localNames = [...]string{"$state", "$tmp", "$fresh"}
var globalNames = [...]string{"$cell_ptr", "$resume"}

func (a *asm) localGet(i int)  { a.idx(opLocalGet, i, "local.get "+localNames[i]) }
func (a *asm) localSet(i int)  { a.idx(opLocalSet, i, "local.set "+localNames[i]) }
func (a *asm) localTee(i int)  { a.idx(opLocalTee, i, "local.tee "+localNames[i]) }
func (a *asm) globalGet(i int) { a.idx(opGlobalGet, i, "global.get "+globalNames[i]) }
func (a *asm) globalSet(i int) { a.idx(opGlobalSet, i, "global.set "+globalNames[i]) }

func (a *asm) call(i int, name string) { a.idx(opCall, i, "call "+name) }

func (a *asm) load8u() {
	a.bin = append(a.bin, opI32Load8U, 0x00, 0x00) // align 1, offset 0
	a.text("i32.load8_u")
}

func (a *asm) store8() {
	a.bin = append(a.bin, opI32Store8, 0x00, 0x00)
	a.text("i32.store8")
}

func (a *asm) blockStart(label string) {
	a.bin = append(a.bin, opBlock, blockTypeNone)
	if label != "" {
		a.text("block " + label)
	} else {
		a.text("block")
	}
	a.indent++
}

func (a *asm) blockStartLoop(label string) {
	a.bin = append(a.bin, opLoop, blockTypeNone)
	if label != "" {
		a.text("loop " + label)
	} else {
		a.text("loop")
	}
	a.indent++
}

func (a *asm) ifStart() {
	a.bin = append(a.bin, opIf, blockTypeNone)
	a.text("if")
	a.indent++
}

func (a *asm) elseStart() {
	a.bin = append(a.bin, opElse)
	a.indent--
	a.text("else")
	a.indent++
}

func (a *asm) end() {
	a.bin = append(a.bin, opEnd)
	a.indent--
	a.text("end")
}

func (a *asm) br(depth int) {
	a.bin = uleb(append(a.bin, opBr), uint32(depth))
	a.text(fmt.Sprintf("br %d", depth))
}

func (a *asm) brIf(depth int) {
	a.bin = uleb(append(a.bin, opBrIf), uint32(depth))
	a.text(fmt.Sprintf("br_if %d", depth))
}

func (a *asm) brTable(targets []int, def int) {
	a.bin = uleb(append(a.bin, opBrTable), uint32(len(targets)))
	for _, t := range targets {
		a.bin = uleb(a.bin, uint32(t))
	}
	a.bin = uleb(a.bin, uint32(def))
	parts := make([]string, 0, len(targets)+1)
	for _, t := range targets {
		parts = append(parts, fmt.Sprintf("%d", t))
	}
	parts = append(parts, fmt.Sprintf("%d", def))
	a.text("br_table " + strings.Join(parts, " "))
}

func (a *asm) comment(c string) { a.text(c) }

// funcBody prepends the locals declaration (three i32s in one group).
func (a *asm) funcBody() []byte {
	body := uleb(nil, 1)
	body = uleb(body, 3)
	body = append(body, typeI32)
	return append(body, a.bin...)
}

func renderWat(a *asm, numBlocks int) string {
	var sb strings.Builder
	sb.WriteString("(module\n")
	sb.WriteString("  (import \"imports\" \"tape\" (memory 1))\n")
	sb.WriteString("  (import \"imports\" \"write_output_byte\" (func $write_output_byte (param i32)))\n")
	sb.WriteString("  (import \"imports\" \"read_input_byte\" (func $read_input_byte (result i32)))\n")
	sb.WriteString("  (global $cell_ptr (export \"cell_ptr\") (mut i32) (i32.const 0))\n")
	sb.WriteString("  (global $resume (mut i32) (i32.const 0))\n")
	sb.WriteString(fmt.Sprintf("  ;; %d dispatch blocks; terminal state %d\n", numBlocks, numBlocks))
	sb.WriteString("  (func $run_bf (export \"run_bf\") (result i32)\n")
	sb.WriteString("    (local $state i32) (local $tmp i32) (local $fresh i32)\n")
	for _, line := range a.wat {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString("  )\n)\n")
	return sb.String()
}
