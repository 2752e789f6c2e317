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
package utils

import "fmt"

// Assert panics with a formatted message when cond is false. Used for
// internal invariants that a correct compiler should never violate.
func Assert(cond bool, format string, msg ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, msg...))
	}
}

// Any reports whether c equals any of cs.
func Any[T comparable](c T, cs ...T) bool {
	for _, cc := range cs {
		if c == cc {
			return true
		}
	}
	return false
}

func Unimplement() {
	panic("not implemented yet")
}

func ShouldNotReachHere() {
	panic("should not reach here")
}

func Abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
