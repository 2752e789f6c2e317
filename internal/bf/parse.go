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

// Parse reads the eight Brainfuck commands out of src, ignoring every other
// byte, and builds the structured IR. Unmatched brackets are a fatal
// compile error for the JIT entry point.
func Parse(src string) ([]*Node, error) {
	root := []*Node{}
	// Stack of open loop bodies; index 0 is the root sequence.
	stack := []*[]*Node{&root}

	for i := 0; i < len(src); i++ {
		top := stack[len(stack)-1]
		switch src[i] {
		case '+':
			*top = append(*top, &Node{Kind: OpAddCell, Arg: 1})
		case '-':
			*top = append(*top, &Node{Kind: OpAddCell, Arg: 255})
		case '>':
			*top = append(*top, &Node{Kind: OpMovePtr, Arg: 1})
		case '<':
			*top = append(*top, &Node{Kind: OpMovePtr, Arg: -1})
		case '.':
			*top = append(*top, &Node{Kind: OpOutput})
		case ',':
			*top = append(*top, &Node{Kind: OpInput})
		case '[':
			loop := &Node{Kind: OpLoop}
			*top = append(*top, loop)
			stack = append(stack, &loop.Body)
		case ']':
			if len(stack) == 1 {
				return nil, errors.Errorf("unmatched ']' at byte %d", i)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 1 {
		return nil, errors.Errorf("%d unmatched '['", len(stack)-1)
	}
	return root, nil
}
