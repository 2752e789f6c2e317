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

import "sort"

// Optimize applies the peephole passes in order: run coalescing (including
// net-zero runs), [-]/[+] to SetZero, and balanced add-multiply loops to
// AddMul+SetZero. The result reaches a fixed point after one pass: a second
// Optimize over its own output returns an equivalent tree.
func Optimize(nodes []*Node) []*Node {
	coal := coalesce(nodes)
	out := make([]*Node, 0, len(coal))
	for _, n := range coal {
		if n.Kind != OpLoop {
			out = append(out, n)
			continue
		}
		body := Optimize(n.Body)
		if zeroing(body) {
			out = append(out, &Node{Kind: OpSetZero})
			continue
		}
		if mul, ok := matchAddMul(body); ok {
			// Canonical lowering: the scatter-add followed by clearing
			// the entry cell. No terms degenerates to a plain SetZero.
			if len(mul.Terms) > 0 {
				out = append(out, mul)
			}
			out = append(out, &Node{Kind: OpSetZero})
			continue
		}
		n.Body = body
		out = append(out, n)
	}
	return out
}

// coalesce folds runs of AddCell and MovePtr, dropping net-zero runs so a
// zero-sum prefix like `+-` cannot defeat a later SetZero/AddMul match.
func coalesce(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if len(out) > 0 {
			last := out[len(out)-1]
			if n.Kind == OpAddCell && last.Kind == OpAddCell {
				last.Arg = (last.Arg + n.Arg) % 256
				if last.Arg == 0 {
					out = out[:len(out)-1]
				}
				continue
			}
			if n.Kind == OpMovePtr && last.Kind == OpMovePtr {
				last.Arg += n.Arg
				if last.Arg == 0 {
					out = out[:len(out)-1]
				}
				continue
			}
		}
		if n.Kind == OpAddCell && n.Arg%256 == 0 {
			continue
		}
		if n.Kind == OpMovePtr && n.Arg == 0 {
			continue
		}
		out = append(out, &Node{Kind: n.Kind, Arg: n.Arg, Body: n.Body, Terms: n.Terms})
	}
	return out
}

// zeroing reports whether body is exactly [-] or [+] after coalescing.
func zeroing(body []*Node) bool {
	return len(body) == 1 && body[0].Kind == OpAddCell &&
		(body[0].Arg == 1 || body[0].Arg == 255)
}

// matchAddMul recognizes a balanced add-multiply loop: a body of only
// MovePtr and AddCell whose net pointer movement is zero and whose net
// change to the entry cell is -1 per iteration. Such a loop adds
// entry*factor to each touched neighbor and clears the entry cell.
func matchAddMul(body []*Node) (*Node, bool) {
	off := 0
	adds := map[int]int{}
	for _, n := range body {
		switch n.Kind {
		case OpMovePtr:
			off += n.Arg
		case OpAddCell:
			adds[off] = (adds[off] + n.Arg) % 256
		default:
			return nil, false
		}
	}
	if off != 0 || adds[0] != 255 {
		return nil, false
	}
	terms := []MulTerm{}
	for o, f := range adds {
		if o == 0 || f == 0 {
			continue
		}
		terms = append(terms, MulTerm{Offset: o, Factor: f})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Offset < terms[j].Offset })
	return &Node{Kind: OpAddMul, Terms: terms}, true
}
