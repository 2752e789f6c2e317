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
package bfgen

import (
	"strings"

	"github.com/brainpluck/brainpluck/internal/utils"
)

// emitter accumulates Brainfuck text while tracking the cell pointer as an
// offset relative to the scratch block's base cell (2·P). Everything the
// generator does is expressed in relative offsets, which is what makes
// block slides sound: after a slide the base has moved under the cursor,
// the relative offset is preserved, and every subsequent moveTo still
// lands on the logical cell it names.
type emitter struct {
	sb  strings.Builder
	pos int
}

func (e *emitter) raw(s string) { e.sb.WriteString(s) }

func (e *emitter) moveTo(cell int) {
	d := cell - e.pos
	if d > 0 {
		e.sb.WriteString(strings.Repeat(">", d))
	} else if d < 0 {
		e.sb.WriteString(strings.Repeat("<", -d))
	}
	e.pos = cell
}

// rebase physically moves the cursor by d cells without changing the
// tracked relative position: it is called exactly when the block base has
// just moved by the same amount.
func (e *emitter) rebase(d int) {
	if d > 0 {
		e.sb.WriteString(strings.Repeat(">", d))
	} else {
		e.sb.WriteString(strings.Repeat("<", -d))
	}
}

// ---------------------------------------------------------------------------
// gen layers structured primitives over the emitter: conditionals built
// from the decrement-and-branch idiom, nondestructive copies, and
// arbitrary-width little-endian arithmetic over runs of scratch slots.

type gen struct {
	e    *emitter
	free []int // pool of scratch cells guaranteed zero between uses
}

// cellOf maps a scratch slot index to its cell offset: slot i is the i-th
// odd cell of the block.
func cellOf(slot int) int { return 2*slot + 1 }

// memCell maps a program-memory byte at SAM address P+k to its cell
// offset: even cells interleave with the block.
func memCell(k int) int { return 2 * k }

func (g *gen) take() int {
	utils.Assert(len(g.free) > 0, "bfgen: scratch temp pool exhausted")
	c := g.free[len(g.free)-1]
	g.free = g.free[:len(g.free)-1]
	return c
}

func (g *gen) release(cells ...int) {
	g.free = append(g.free, cells...)
}

// add emits a constant adjustment of the cell (wrapping).
func (g *gen) add(cell, n int) {
	n = ((n % 256) + 256) % 256
	if n == 0 {
		return
	}
	g.e.moveTo(cell)
	if n <= 128 {
		g.e.raw(strings.Repeat("+", n))
	} else {
		g.e.raw(strings.Repeat("-", 256-n))
	}
}

func (g *gen) clear(cell int) {
	g.e.moveTo(cell)
	g.e.raw("[-]")
}

func (g *gen) out(cell int) {
	g.e.moveTo(cell)
	g.e.raw(".")
}

func (g *gen) in(cell int) {
	g.e.moveTo(cell)
	g.e.raw(",")
}

// loop runs body while cell is nonzero. The body may slide the block; the
// closing bracket is emitted at the cell's (relative) position, which is
// exactly the loop's logical subject wherever the block physically sits.
func (g *gen) loop(cell int, body func()) {
	g.e.moveTo(cell)
	g.e.raw("[")
	body()
	g.e.moveTo(cell)
	g.e.raw("]")
}

// moveVal adds src into dst and zeroes src.
func (g *gen) moveVal(src, dst int) {
	g.loop(src, func() {
		g.add(src, -1)
		g.add(dst, 1)
	})
}

// copyVal adds src into dst, preserving src.
func (g *gen) copyVal(src, dst int) {
	t := g.take()
	g.loop(src, func() {
		g.add(src, -1)
		g.add(dst, 1)
		g.add(t, 1)
	})
	g.moveVal(t, src)
	g.release(t)
}

// ifNonzero runs body once if cell is nonzero, preserving cell.
func (g *gen) ifNonzero(cell int, body func()) {
	t := g.take()
	g.copyVal(cell, t)
	g.loop(t, func() {
		g.clear(t)
		body()
	})
	g.release(t)
}

// ifZero runs body once if cell is zero, preserving cell.
func (g *gen) ifZero(cell int, body func()) {
	t, f := g.take(), g.take()
	g.copyVal(cell, t)
	g.add(f, 1)
	g.loop(t, func() {
		g.clear(t)
		g.add(f, -1)
	})
	g.loop(f, func() {
		g.add(f, -1)
		body()
	})
	g.release(t, f)
}

// ifElse runs thenF when cell is nonzero, elseF otherwise.
func (g *gen) ifElse(cell int, thenF, elseF func()) {
	t, f := g.take(), g.take()
	g.copyVal(cell, t)
	g.add(f, 1)
	g.loop(t, func() {
		g.clear(t)
		g.add(f, -1)
		thenF()
	})
	g.loop(f, func() {
		g.add(f, -1)
		elseF()
	})
	g.release(t, f)
}

// ---------------------------------------------------------------------------
// Multi-byte arithmetic. Registers are w consecutive slots, little-endian.

func (g *gen) clearN(slot, w int) {
	for k := 0; k < w; k++ {
		g.clear(cellOf(slot + k))
	}
}

func (g *gen) moveN(src, dst, w int) {
	for k := 0; k < w; k++ {
		g.moveVal(cellOf(src+k), cellOf(dst+k))
	}
}

func (g *gen) copyN(src, dst, w int) {
	for k := 0; k < w; k++ {
		g.copyVal(cellOf(src+k), cellOf(dst+k))
	}
}

// incCarry adds one to byte k of the register at slot, propagating the
// carry when the byte wraps to zero, up to width w.
func (g *gen) incCarry(slot, k, w int) {
	c := cellOf(slot + k)
	g.add(c, 1)
	if k+1 < w {
		g.ifZero(c, func() {
			g.incCarry(slot, k+1, w)
		})
	}
}

// decBorrow subtracts one from byte k, borrowing from higher bytes when
// the byte is zero before the decrement.
func (g *gen) decBorrow(slot, k, w int) {
	c := cellOf(slot + k)
	if k+1 < w {
		g.ifZero(c, func() {
			g.decBorrow(slot, k+1, w)
		})
	}
	g.add(c, -1)
}

// addConstN adds the little-endian constant v to the register.
func (g *gen) addConstN(slot, w int, v uint32) {
	for k := 0; k < w; k++ {
		vk := int(v >> (8 * k) & 0xff)
		if vk == 0 {
			continue
		}
		if k == w-1 {
			g.add(cellOf(slot+k), vk)
			continue
		}
		t := g.take()
		g.add(t, vk)
		g.loop(t, func() {
			g.add(t, -1)
			g.incCarry(slot, k, w)
		})
		g.release(t)
	}
}

func (g *gen) subConstN(slot, w int, v uint32) {
	for k := 0; k < w; k++ {
		vk := int(v >> (8 * k) & 0xff)
		if vk == 0 {
			continue
		}
		if k == w-1 {
			g.add(cellOf(slot+k), -vk)
			continue
		}
		t := g.take()
		g.add(t, vk)
		g.loop(t, func() {
			g.add(t, -1)
			g.decBorrow(slot, k, w)
		})
		g.release(t)
	}
}

// addN adds src (width sw) into dst (width dw), consuming src.
func (g *gen) addN(dst, dw, src, sw int) {
	for k := 0; k < sw; k++ {
		c := cellOf(src + k)
		g.loop(c, func() {
			g.add(c, -1)
			g.incCarry(dst, k, dw)
		})
	}
}

// subNCopy subtracts src (width sw) from dst (width dw), preserving src.
func (g *gen) subNCopy(dst, dw, src, sw int) {
	for k := 0; k < sw; k++ {
		t := g.take()
		g.copyVal(cellOf(src+k), t)
		g.loop(t, func() {
			g.add(t, -1)
			g.decBorrow(dst, k, dw)
		})
		g.release(t)
	}
}

// isZeroN sets flag to 1 when the register is all-zero, else 0.
func (g *gen) isZeroN(slot, w, flag int) {
	g.clear(flag)
	g.add(flag, 1)
	for k := 0; k < w; k++ {
		g.ifNonzero(cellOf(slot+k), func() {
			g.clear(flag)
		})
	}
}

// nonZeroN sets flag to 1 when any byte of the register is nonzero.
func (g *gen) nonZeroN(slot, w, flag int) {
	g.clear(flag)
	for k := 0; k < w; k++ {
		g.ifNonzero(cellOf(slot+k), func() {
			g.clear(flag)
			g.add(flag, 1)
		})
	}
}

// cmpByte writes the tri-state comparison of the bytes at cells a and b
// into res: 255 (a<b), 0 (equal), 1 (a>b). a and b are preserved. Both
// bytes are bit-decomposed and compared most-significant bit first; every
// conditional below tests a 0/1 cell, keeping the whole comparison linear
// in the byte values (a simultaneous-countdown loop would re-copy a large
// counter on every iteration).
func (g *gen) cmpByte(a, b, res int) {
	ta := g.take()
	g.copyVal(a, ta)
	abits := g.takeBits()
	g.bitSplit(ta, abits)
	g.release(ta)
	tb := g.take()
	g.copyVal(b, tb)
	bbits := g.takeBits()
	g.bitSplit(tb, bbits)
	g.release(tb)

	g.clear(res)
	eq := g.take()
	g.add(eq, 1)
	for k := 7; k >= 0; k-- {
		ak, bk := abits[k], bbits[k]
		g.ifNonzero(eq, func() {
			g.ifElse(ak,
				func() {
					g.ifZero(bk, func() {
						g.add(res, 1)
						g.clear(eq)
					})
				},
				func() {
					g.ifNonzero(bk, func() {
						g.add(res, 255)
						g.clear(eq)
					})
				})
		})
		g.clear(ak)
		g.clear(bk)
	}
	g.clear(eq)
	g.release(eq)
	g.release(abits...)
	g.release(bbits...)
}

// cmpN compares two w-byte registers most-significant byte first, writing
// the tri-state into res. Both registers are preserved.
func (g *gen) cmpN(a, b, w, res int) {
	eq := g.take()
	g.clear(res)
	g.add(eq, 1)
	for k := w - 1; k >= 0; k-- {
		g.ifNonzero(eq, func() {
			g.cmpByte(cellOf(a+k), cellOf(b+k), res)
			g.ifNonzero(res, func() {
				g.clear(eq)
			})
		})
	}
	g.clear(eq)
	g.release(eq)
}

// halve moves floor(c/2) into q and c%2 into par, consuming c. q and par
// must be zero on entry. The parity toggle keeps the per-iteration work
// constant, which matters: this runs inside the interpreter's hottest
// loops.
func (g *gen) halve(c, q, par int) {
	g.loop(c, func() {
		g.add(c, -1)
		g.ifElse(par,
			func() {
				g.add(par, -1)
				g.add(q, 1)
			},
			func() {
				g.add(par, 1)
			})
	})
}

// bitSplit decomposes the byte at c into bits[0..7], LSB first, consuming
// c. The bit cells must be zero on entry.
func (g *gen) bitSplit(c int, bits []int) {
	for k := 0; k < 8; k++ {
		q := g.take()
		g.halve(c, q, bits[k])
		g.moveVal(q, c)
		g.release(q)
	}
}

func (g *gen) takeBits() []int {
	bits := make([]int, 8)
	for i := range bits {
		bits[i] = g.take()
	}
	return bits
}

// shlN shifts the w-byte register left one bit via bit decomposition.
// carry is the shifted-in bit on entry and the shifted-out bit on exit.
func (g *gen) shlN(slot, w, carry int) {
	for k := 0; k < w; k++ {
		c := cellOf(slot + k)
		bits := g.takeBits()
		g.bitSplit(c, bits)
		g.loop(carry, func() {
			g.add(carry, -1)
			g.add(c, 1)
		})
		for j := 0; j < 7; j++ {
			b := bits[j]
			amount := 2 << j
			g.loop(b, func() {
				g.add(b, -1)
				g.add(c, amount)
			})
		}
		g.moveVal(bits[7], carry)
		g.release(bits...)
	}
}
