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

// Package bfgen emits a Brainfuck program that interprets an assembled SAM
// image. Tape layout: even cells hold SAM program memory (byte a at cell
// 2a), odd cells hold the register file and scratch, anchored to a movable
// base at cell 2·P. Random access at I or B reduces to sliding the whole
// scratch block until it is adjacent to the wanted program cell; slides
// are accelerated by an unrolled binary staircase so a downstream
// optimizer folds each big move into a single pointer delta.
package bfgen

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brainpluck/brainpluck/internal/sam"
)

// Scratch slot layout. Slot i lives at the block's i-th odd cell. The
// register file comes first, then the decoded instruction, then the fixed
// work registers, then the decimal-digit bank and the temp pool.
const (
	slotI   = 0  // 4 bytes: instruction pointer
	slotP   = 4  // 4 bytes: block position, in pair-steps from origin
	slotA   = 8  // 4 bytes
	slotB   = 12 // 4 bytes: frame/stack pointer
	slotC   = 16 // 4 bytes
	slotX   = 20 // 1 byte
	slotOpc = 21 // decoded opcode
	slotFm  = 22 // dispatch "not yet matched" flag
	slotOps = 23 // 8 bytes: decoded operands
	slotW   = 31 // 4 bytes: work register (dividend, addresses)
	slotQ   = 35 // 4 bytes: quotient / secondary work
	slotDD  = 39 // 4 bytes: divisor / slide delta
	slotU   = 43 // 5 bytes: remainder (needs the 33rd bit)
	slotRes = 48 // comparison result
	slotF1  = 49 // handler loop flag
	slotF2  = 50 // slide loop flag
	slotG   = 51 // 10 bytes: decimal digits, most significant at slotG
	slotTmp = 61 // 36-cell temp pool (bitwise compares hold two bit banks)
	slotRun = 97 // main-loop flag

	numSlots = 98
)

// controlOps transfer to I themselves; everything else advances I by the
// instruction's fixed size after execution.
var controlOps = map[sam.Op]bool{
	sam.OpJump:     true,
	sam.OpJumpIfX:  true,
	sam.OpJumpIfNX: true,
	sam.OpCall:     true,
	sam.OpRet:      true,
}

// Generate emits the complete interpreter: a prelude writing img onto the
// even cells, register initialization, and the fetch/decode/execute loop
// that runs until I reaches the halt sentinel address.
func Generate(img sam.Image) string {
	g := &gen{e: &emitter{}}
	for i := slotTmp; i < slotRun; i++ {
		g.free = append(g.free, cellOf(i))
	}
	logrus.WithFields(logrus.Fields{
		"image": len(img.Bytes), "entry": img.EntryAddr, "halt": img.HaltAddr,
	}).Debug("bfgen: generating interpreter")

	// Prelude: SAM bytes onto even cells.
	for a, b := range img.Bytes {
		g.add(memCell(a), int(b))
	}
	g.e.moveTo(0)

	// Registers: I = entry, everything else starts zero (P = 0: the block
	// sits at the origin).
	g.addConstN(slotI, 4, uint32(img.EntryAddr))

	g.add(cellOf(slotRun), 1)
	g.loop(cellOf(slotRun), func() {
		g.step(img)
	})
	return g.e.sb.String()
}

// step emits one fetch/decode/execute/advance round.
func (g *gen) step(img sam.Image) {
	// Fetch: align the block to I and copy the opcode plus the maximum
	// operand run into scratch. Reading past the instruction is harmless;
	// handlers only consume the bytes their opcode defines.
	g.slideTo(slotI)
	g.copyVal(memCell(0), cellOf(slotOpc))
	for k := 0; k < 8; k++ {
		g.copyVal(memCell(k+1), cellOf(slotOps+k))
	}

	// Decode+execute: a decrement-and-branch chain over the opcode. Case
	// v runs when the count has reached zero and nothing matched yet.
	g.add(cellOf(slotFm), 1)
	for op := sam.Op(0); op <= sam.OpPrintStr; op++ {
		g.dispatchCase(op)
		g.add(cellOf(slotOpc), -1)
	}

	// Cleanup: every decoded/working slot back to zero for the next step.
	for s := slotOpc; s <= slotG+9; s++ {
		g.clear(cellOf(s))
	}

	// Halt test: stop when I reaches the one-past-end sentinel.
	g.addConstN(slotDD, 4, uint32(img.HaltAddr))
	g.cmpN(slotI, slotDD, 4, cellOf(slotRes))
	g.ifZero(cellOf(slotRes), func() {
		g.clear(cellOf(slotRun))
	})
	g.clear(cellOf(slotRes))
	g.clearN(slotDD, 4)
}

func (g *gen) dispatchCase(op sam.Op) {
	matched := g.take()
	count := g.take()
	g.copyVal(cellOf(slotFm), matched)
	g.copyVal(cellOf(slotOpc), count)
	g.loop(count, func() {
		g.clear(matched)
		g.clear(count)
	})
	g.loop(matched, func() {
		g.add(matched, -1)
		g.add(cellOf(slotFm), -1)
		g.execute(op)
		if !controlOps[op] {
			g.addConstN(slotI, 4, uint32(op.Size()))
		}
	})
	g.release(matched, count)
}

// execute emits the semantics of one opcode. On entry the block is
// aligned to I with operands decoded; memory-operand opcodes re-align to
// B (or a computed address) themselves.
func (g *gen) execute(op sam.Op) {
	o := func(k int) int { return cellOf(slotOps + k) }
	switch op {
	case sam.OpHalt:
		// Reached only by a stray jump; fall through to the advance.
	case sam.OpSetA8:
		g.clearN(slotA, 4)
		g.moveVal(o(0), cellOf(slotA))
	case sam.OpSetA32:
		g.clearN(slotA, 4)
		for k := 0; k < 4; k++ {
			g.moveVal(o(k), cellOf(slotA+k))
		}
	case sam.OpSetX:
		g.clear(cellOf(slotX))
		g.moveVal(o(0), cellOf(slotX))
	case sam.OpCopyAToB:
		g.clearN(slotB, 4)
		g.copyN(slotA, slotB, 4)
	case sam.OpCopyAToC:
		g.clearN(slotC, 4)
		g.copyN(slotA, slotC, 4)
	case sam.OpCopyBToA:
		g.clearN(slotA, 4)
		g.copyN(slotB, slotA, 4)
	case sam.OpCopyXToA:
		g.clearN(slotA, 4)
		g.copyVal(cellOf(slotX), cellOf(slotA))
	case sam.OpCopyAToX:
		g.clear(cellOf(slotX))
		g.copyVal(cellOf(slotA), cellOf(slotX))
	case sam.OpSwapBC:
		g.moveN(slotB, slotW, 4)
		g.moveN(slotC, slotB, 4)
		g.moveN(slotW, slotC, 4)
	case sam.OpAddConstToB:
		for k := 0; k < 4; k++ {
			c := o(k)
			g.loop(c, func() {
				g.add(c, -1)
				g.incCarry(slotB, k, 4)
			})
		}
	case sam.OpReadAAtB8:
		g.slideTo(slotB)
		g.clearN(slotA, 4)
		g.copyVal(memCell(0), cellOf(slotA))
	case sam.OpReadAAtB32:
		g.slideTo(slotB)
		g.clearN(slotA, 4)
		for k := 0; k < 4; k++ {
			g.copyVal(memCell(k), cellOf(slotA+k))
		}
	case sam.OpWriteAAtB8:
		g.slideTo(slotB)
		g.clear(memCell(0))
		g.copyVal(cellOf(slotA), memCell(0))
	case sam.OpWriteAAtB32:
		g.slideTo(slotB)
		for k := 0; k < 4; k++ {
			g.clear(memCell(k))
			g.copyVal(cellOf(slotA+k), memCell(k))
		}
	case sam.OpReadXAtB:
		g.slideTo(slotB)
		g.clear(cellOf(slotX))
		g.copyVal(memCell(0), cellOf(slotX))
	case sam.OpWriteXAtB:
		g.slideTo(slotB)
		g.clear(memCell(0))
		g.copyVal(cellOf(slotX), memCell(0))
	case sam.OpAdd8:
		g.slideTo(slotB)
		t := g.take()
		g.copyVal(memCell(0), t)
		g.loop(t, func() {
			g.add(t, -1)
			g.add(cellOf(slotA), 1)
		})
		g.release(t)
		g.clearN(slotA+1, 3)
	case sam.OpSub8:
		g.slideTo(slotB)
		t := g.take()
		g.copyVal(memCell(0), t)
		g.loop(t, func() {
			g.add(t, -1)
			g.add(cellOf(slotA), -1)
		})
		g.release(t)
		g.clearN(slotA+1, 3)
	case sam.OpMul8:
		g.slideTo(slotB)
		g.clearN(slotA+1, 3)
		m := g.take()
		n := g.take()
		g.copyVal(memCell(0), m)
		g.moveVal(cellOf(slotA), n)
		g.loop(m, func() {
			g.add(m, -1)
			t := g.take()
			g.copyVal(n, t)
			g.loop(t, func() {
				g.add(t, -1)
				g.add(cellOf(slotA), 1)
			})
			g.release(t)
		})
		g.clear(n)
		g.release(m, n)
	case sam.OpDiv8, sam.OpMod8:
		g.slideTo(slotB)
		g.clearN(slotDD, 4)
		g.copyVal(memCell(0), cellOf(slotDD))
		g.divModDispatch(op == sam.OpDiv8, true)
	case sam.OpAdd32:
		g.slideTo(slotB)
		for k := 0; k < 4; k++ {
			t := g.take()
			g.copyVal(memCell(k), t)
			kk := k
			g.loop(t, func() {
				g.add(t, -1)
				g.incCarry(slotA, kk, 4)
			})
			g.release(t)
		}
	case sam.OpSub32:
		g.slideTo(slotB)
		for k := 0; k < 4; k++ {
			t := g.take()
			g.copyVal(memCell(k), t)
			kk := k
			g.loop(t, func() {
				g.add(t, -1)
				g.decBorrow(slotA, kk, 4)
			})
			g.release(t)
		}
	case sam.OpMul32:
		g.slideTo(slotB)
		for k := 0; k < 4; k++ {
			g.copyVal(memCell(k), cellOf(slotDD+k))
		}
		g.moveN(slotA, slotW, 4)
		for j := 0; j < 4; j++ {
			c := cellOf(slotDD + j)
			jj := j
			g.loop(c, func() {
				g.add(c, -1)
				for k := 0; k+jj < 4; k++ {
					t := g.take()
					g.copyVal(cellOf(slotW+k), t)
					kk := k
					g.loop(t, func() {
						g.add(t, -1)
						g.incCarry(slotA, jj+kk, 4)
					})
					g.release(t)
				}
			})
		}
		g.clearN(slotW, 4)
	case sam.OpDiv32, sam.OpMod32:
		g.slideTo(slotB)
		for k := 0; k < 4; k++ {
			g.copyVal(memCell(k), cellOf(slotDD+k))
		}
		g.divModDispatch(op == sam.OpDiv32, false)
	case sam.OpCmp8:
		g.slideTo(slotB)
		t := g.take()
		g.copyVal(memCell(0), t)
		g.cmpByte(cellOf(slotA), t, cellOf(slotRes))
		g.clear(t)
		g.release(t)
		g.clear(cellOf(slotX))
		g.moveVal(cellOf(slotRes), cellOf(slotX))
	case sam.OpCmp32:
		g.slideTo(slotB)
		for k := 0; k < 4; k++ {
			g.copyVal(memCell(k), cellOf(slotDD+k))
		}
		g.cmpN(slotA, slotDD, 4, cellOf(slotRes))
		g.clear(cellOf(slotX))
		g.moveVal(cellOf(slotRes), cellOf(slotX))
		g.clearN(slotDD, 4)
	case sam.OpXEq, sam.OpXNeq:
		t := g.take()
		g.copyVal(cellOf(slotX), t)
		g.loop(o(0), func() {
			g.add(o(0), -1)
			g.add(t, -1)
		})
		g.clear(cellOf(slotX))
		if op == sam.OpXEq {
			g.ifZero(t, func() {
				g.add(cellOf(slotX), 1)
			})
		} else {
			g.ifNonzero(t, func() {
				g.add(cellOf(slotX), 1)
			})
		}
		g.clear(t)
		g.release(t)
	case sam.OpJump:
		g.addN(slotI, 4, slotOps, 4)
	case sam.OpJumpIfX, sam.OpJumpIfNX:
		taken := func() { g.addN(slotI, 4, slotOps, 4) }
		skip := func() { g.addConstN(slotI, 4, uint32(op.Size())) }
		if op == sam.OpJumpIfX {
			g.ifElse(cellOf(slotX), taken, skip)
		} else {
			g.ifElse(cellOf(slotX), skip, taken)
		}
	case sam.OpCall:
		// Push I+size (the would-be next I) and the callee frame base at
		// B, then transfer.
		g.copyN(slotI, slotW, 4)
		g.addConstN(slotW, 4, uint32(op.Size()))
		g.copyN(slotB, slotQ, 4)
		g.slideTo(slotB)
		for k := 0; k < 4; k++ {
			g.clear(memCell(k))
			g.moveVal(cellOf(slotW+k), memCell(k))
			g.clear(memCell(4 + k))
			g.moveVal(cellOf(slotQ+k), memCell(4+k))
		}
		g.clearN(slotI, 4)
		for k := 0; k < 4; k++ {
			g.moveVal(o(k), cellOf(slotI+k))
		}
	case sam.OpRet:
		g.slideTo(slotB)
		for k := 0; k < 4; k++ {
			g.copyVal(memCell(k), cellOf(slotW+k))
			g.copyVal(memCell(4+k), cellOf(slotQ+k))
		}
		g.clearN(slotI, 4)
		g.moveN(slotW, slotI, 4)
		g.clearN(slotB, 4)
		g.moveN(slotQ, slotB, 4)
	case sam.OpPrintCharX:
		g.out(cellOf(slotX))
	case sam.OpStdinX:
		g.clear(cellOf(slotX))
		g.in(cellOf(slotX))
	case sam.OpPrintA32:
		g.clearN(slotW, 4)
		g.copyN(slotA, slotW, 4)
		g.printDecimal()
	case sam.OpPrintA8:
		g.clearN(slotW, 4)
		g.copyVal(cellOf(slotA), cellOf(slotW))
		g.printDecimal()
	case sam.OpPrintStr:
		g.clearN(slotW, 4)
		g.clearN(slotQ, 4)
		for k := 0; k < 4; k++ {
			g.moveVal(o(k), cellOf(slotW+k))
			g.moveVal(o(4+k), cellOf(slotQ+k))
		}
		g.nonZeroN(slotQ, 4, cellOf(slotF1))
		g.loop(cellOf(slotF1), func() {
			g.clear(cellOf(slotF1))
			g.slideTo(slotW)
			g.out(memCell(0))
			g.incCarry(slotW, 0, 4)
			g.decBorrow(slotQ, 0, 4)
			g.nonZeroN(slotQ, 4, cellOf(slotF1))
		})
		g.clearN(slotW, 4)
	default:
		panic("bfgen: unhandled opcode " + op.String())
	}
}

// divModDispatch assumes the divisor sits in DD. When it is zero X gets
// the shared sentinel and A is untouched; otherwise A (its low byte for
// the 8-bit family) is divided, leaving the quotient or remainder in A.
func (g *gen) divModDispatch(wantQuotient, width8 bool) {
	g.isZeroN(slotDD, 4, cellOf(slotF1))
	g.ifElse(cellOf(slotF1),
		func() {
			g.clear(cellOf(slotX))
			g.add(cellOf(slotX), sam.DivModByZeroSentinel)
		},
		func() {
			g.clearN(slotW, 4)
			if width8 {
				g.moveVal(cellOf(slotA), cellOf(slotW))
				g.clearN(slotA, 4)
			} else {
				g.moveN(slotA, slotW, 4)
			}
			g.divCore()
			if wantQuotient {
				g.moveN(slotQ, slotA, 4)
				g.clearN(slotU, 5)
			} else {
				for k := 0; k < 4; k++ {
					g.moveVal(cellOf(slotU+k), cellOf(slotA+k))
				}
				g.clearN(slotQ, 4)
				g.clear(cellOf(slotU + 4))
			}
			g.clearN(slotW, 4)
		})
	g.clear(cellOf(slotF1))
	g.clearN(slotDD, 4)
}

// divCore performs restoring binary long division: W / DD -> quotient Q,
// remainder U. W is consumed (ends zero); DD is preserved. Q and U must
// be clear on entry. The 32 rounds run under a runtime counter so the
// loop body is emitted once.
func (g *gen) divCore() {
	g.clearN(slotQ, 4)
	g.clearN(slotU, 5)
	cnt := g.take()
	g.add(cnt, 32)
	g.loop(cnt, func() {
		g.add(cnt, -1)
		carry := g.take()
		g.shlN(slotW, 4, carry) // top bit of W falls into carry...
		g.shlN(slotU, 5, carry) // ...and shifts into the remainder
		g.clear(carry)
		g.shlN(slotQ, 4, carry)
		g.clear(carry)
		g.release(carry)

		// U >= DD? The 33rd remainder bit alone decides when set.
		g.clear(cellOf(slotRes))
		g.ifElse(cellOf(slotU+4),
			func() { g.add(cellOf(slotRes), 1) },
			func() { g.cmpN(slotU, slotDD, 4, cellOf(slotRes)) })
		ge := g.take()
		g.copyVal(cellOf(slotRes), ge)
		g.add(ge, 1) // 0 iff U < DD
		g.ifNonzero(ge, func() {
			g.subNCopy(slotU, 5, slotDD, 4)
			g.add(cellOf(slotQ), 1) // freshly shifted: low bit is 0
		})
		g.clear(ge)
		g.release(ge)
		g.clear(cellOf(slotRes))
	})
	g.release(cnt)
}

// printDecimal prints the value in W as unsigned decimal and consumes it.
// Digits are pushed most-significant-last into the digit bank, stored as
// digit+1 so unused bank cells stay zero and are skipped when printing.
func (g *gen) printDecimal() {
	g.isZeroN(slotW, 4, cellOf(slotF1))
	g.ifNonzero(cellOf(slotF1), func() {
		t := g.take()
		g.add(t, '0')
		g.out(t)
		g.clear(t)
		g.release(t)
	})
	g.clear(cellOf(slotF1))

	g.nonZeroN(slotW, 4, cellOf(slotF1))
	g.loop(cellOf(slotF1), func() {
		g.clear(cellOf(slotF1))
		g.clearN(slotDD, 4)
		g.add(cellOf(slotDD), 10)
		g.divCore()
		g.clearN(slotW, 4)
		g.moveN(slotQ, slotW, 4)
		g.clearN(slotDD, 4)
		for i := 8; i >= 0; i-- {
			g.moveVal(cellOf(slotG+i), cellOf(slotG+i+1))
		}
		g.moveVal(cellOf(slotU), cellOf(slotG))
		g.add(cellOf(slotG), 1)
		g.clearN(slotU, 5)
		g.nonZeroN(slotW, 4, cellOf(slotF1))
	})
	for i := 0; i < 10; i++ {
		c := cellOf(slotG + i)
		g.ifNonzero(c, func() {
			g.add(c, '0'-1)
			g.out(c)
			g.clear(c)
		})
	}
}

// ---------------------------------------------------------------------------
// Block slides

// slideTo moves the scratch block until P equals the 4-byte register at
// target, so the program byte at that address sits at the block's base
// cell.
func (g *gen) slideTo(target int) {
	g.cmpN(target, slotP, 4, cellOf(slotRes))
	g.ifNonzero(cellOf(slotRes), func() {
		tr := g.take()
		g.copyVal(cellOf(slotRes), tr)
		g.add(tr, 1) // 0 iff target < P
		g.ifNonzero(tr, func() {
			g.clearN(slotDD, 4)
			g.copyN(target, slotDD, 4)
			g.subNCopy(slotDD, 4, slotP, 4)
			g.slideLoop(true)
		})
		g.ifZero(tr, func() {
			g.clearN(slotDD, 4)
			g.copyN(slotP, slotDD, 4)
			g.subNCopy(slotDD, 4, target, 4)
			g.slideLoop(false)
		})
		g.clear(tr)
		g.release(tr)
	})
	g.clear(cellOf(slotRes))
}

// slideLoop consumes the pair-step delta in DD. High bytes drain in
// 128-pair strides; the final byte runs the bit-wise staircase, fully
// unrolled from bit 7 down so each stride is straight-line code.
func (g *gen) slideLoop(right bool) {
	g.nonZeroN(slotDD, 4, cellOf(slotF2))
	g.loop(cellOf(slotF2), func() {
		g.clear(cellOf(slotF2))
		hi := g.take()
		g.clear(hi)
		for k := 1; k < 4; k++ {
			g.ifNonzero(cellOf(slotDD+k), func() {
				g.clear(hi)
				g.add(hi, 1)
			})
		}
		g.ifElse(hi,
			func() {
				g.slideBlock(right, 128)
				g.subConstN(slotDD, 4, 128)
			},
			func() {
				// Staircase over the final byte: decompose into bits,
				// then one straight-line conditional stride per bit,
				// largest first. The bit cells ride along with the block
				// during each stride.
				bits := g.takeBits()
				g.bitSplit(cellOf(slotDD), bits)
				for b := 7; b >= 0; b-- {
					bit := bits[b]
					stride := 1 << b
					g.loop(bit, func() {
						g.add(bit, -1)
						g.slideBlock(right, stride)
					})
				}
				g.release(bits...)
			})
		g.clear(hi)
		g.release(hi)
		g.nonZeroN(slotDD, 4, cellOf(slotF2))
	})
}

// slideBlock physically moves every scratch slot by the given number of
// pair-steps and updates P. Odd cells outside the block are always zero
// (slides leave zeros behind), so each slot lands on an empty cell.
// Rightward slides move the rightmost slot first, leftward slides the
// leftmost, keeping sources and destinations disjoint.
func (g *gen) slideBlock(right bool, pairs int) {
	d := 2 * pairs
	hop := strings.Repeat(">", d)
	back := strings.Repeat("<", d)
	if right {
		g.addConstN(slotP, 4, uint32(pairs))
		for i := numSlots - 1; i >= 0; i-- {
			g.e.moveTo(cellOf(i))
			g.e.raw("[-" + hop + "+" + back + "]")
		}
		g.e.rebase(d)
	} else {
		g.subConstN(slotP, 4, uint32(pairs))
		for i := 0; i < numSlots; i++ {
			g.e.moveTo(cellOf(i))
			g.e.raw("[-" + back + "+" + hop + "]")
		}
		g.e.rebase(-d)
	}
}
