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

// Package wasmjit lowers optimized Brainfuck IR to a WebAssembly module
// with Asyncify-style cooperative suspension: the program is split into
// numbered basic blocks at every input instruction, and run_bf() starts
// with a dispatch on an internal resume-state global selecting the block
// to continue at.
package wasmjit

import "github.com/brainpluck/brainpluck/internal/bf"

type termKind int

const (
	termGoto termKind = iota // unconditionally continue at To
	termCond                 // current cell nonzero ? To : ElseTo
	termExit                 // program complete: return 0
)

type terminator struct {
	kind       termKind
	to, elseTo int
}

// dispatchBlock is one resumable unit. If readFirst is set the block
// begins with the suspendable input read (its own index is the value saved
// into resume-state when the read suspends), followed by straight-line
// code. Loops that contain no input instruction stay structured inside
// code; loops that do are decomposed into header/body/after blocks.
type dispatchBlock struct {
	readFirst bool
	code      []*bf.Node
	t         terminator
}

type splitter struct {
	blocks []*dispatchBlock
}

// split builds the dispatch-block graph for a program. Block 0 is the
// entry; a program without input instructions yields exactly one block.
func split(nodes []*bf.Node) []*dispatchBlock {
	s := &splitter{}
	cur := s.newBlock()
	end := s.walk(nodes, cur)
	s.blocks[end].t = terminator{kind: termExit}
	return s.blocks
}

func (s *splitter) newBlock() int {
	s.blocks = append(s.blocks, &dispatchBlock{})
	return len(s.blocks) - 1
}

// walk appends seq to the open block cur, creating new blocks at each
// suspension point, and returns the block left open afterwards.
func (s *splitter) walk(seq []*bf.Node, cur int) int {
	for _, n := range seq {
		switch {
		case n.Kind == bf.OpInput:
			k := s.newBlock()
			s.blocks[k].readFirst = true
			s.blocks[cur].t = terminator{kind: termGoto, to: k}
			cur = k
		case n.Kind == bf.OpLoop && bf.ContainsInput(n.Body):
			// The loop head test must be re-reachable from the switch, so
			// it becomes its own block, re-entered from the body's end.
			head := s.newBlock()
			s.blocks[cur].t = terminator{kind: termGoto, to: head}
			bodyStart := s.newBlock()
			bodyEnd := s.walk(n.Body, bodyStart)
			s.blocks[bodyEnd].t = terminator{kind: termGoto, to: head}
			after := s.newBlock()
			s.blocks[head].t = terminator{kind: termCond, to: bodyStart, elseTo: after}
			cur = after
		default:
			s.blocks[cur].code = append(s.blocks[cur].code, n)
		}
	}
	return cur
}
