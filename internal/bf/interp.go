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
package bf

import "github.com/pkg/errors"

// Interp is the in-host reference interpreter: an expandable byte tape,
// 8-bit wrapping cells, input returning 0 once exhausted. It runs the IR
// rather than raw text, so it doubles as the reference evaluator for
// optimizer soundness tests (raw and optimized trees must behave alike).
type Interp struct {
	Tape  []byte
	Ptr   int
	input []byte
	inPos int
	out   []byte
}

func NewInterp(input []byte) *Interp {
	return &Interp{Tape: make([]byte, 64), input: input}
}

func (it *Interp) cell(off int) (*byte, error) {
	idx := it.Ptr + off
	if idx < 0 {
		return nil, errors.Errorf("cell pointer moved left of start (index %d)", idx)
	}
	for idx >= len(it.Tape) {
		it.Tape = append(it.Tape, make([]byte, len(it.Tape))...)
	}
	return &it.Tape[idx], nil
}

// Run executes nodes to completion and returns the accumulated output.
func (it *Interp) Run(nodes []*Node) ([]byte, error) {
	if err := it.exec(nodes); err != nil {
		return it.out, err
	}
	return it.out, nil
}

// RunSource parses, optimizes, and runs src in one step, the "Run" mode of
// the toolchain.
func RunSource(src string, input []byte) ([]byte, error) {
	nodes, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return NewInterp(input).Run(Optimize(nodes))
}

func (it *Interp) exec(nodes []*Node) error {
	for _, n := range nodes {
		switch n.Kind {
		case OpAddCell:
			c, err := it.cell(0)
			if err != nil {
				return err
			}
			*c += byte(n.Arg)
		case OpMovePtr:
			it.Ptr += n.Arg
			if it.Ptr < 0 {
				return errors.Errorf("cell pointer moved left of start (index %d)", it.Ptr)
			}
		case OpOutput:
			c, err := it.cell(0)
			if err != nil {
				return err
			}
			it.out = append(it.out, *c)
		case OpInput:
			c, err := it.cell(0)
			if err != nil {
				return err
			}
			if it.inPos < len(it.input) {
				*c = it.input[it.inPos]
				it.inPos++
			} else {
				*c = 0
			}
		case OpSetZero:
			c, err := it.cell(0)
			if err != nil {
				return err
			}
			*c = 0
		case OpAddMul:
			entry, err := it.cell(0)
			if err != nil {
				return err
			}
			v := *entry
			for _, term := range n.Terms {
				c, err := it.cell(term.Offset)
				if err != nil {
					return err
				}
				*c += v * byte(term.Factor)
			}
		case OpLoop:
			for {
				c, err := it.cell(0)
				if err != nil {
					return err
				}
				if *c == 0 {
					break
				}
				if err := it.exec(n.Body); err != nil {
					return err
				}
			}
		default:
			return errors.Errorf("unknown IR node %v", n.Kind)
		}
	}
	return nil
}
