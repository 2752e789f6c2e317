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
package hir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func checkSource(t *testing.T, src string) *Program {
	t.Helper()
	prog := ParseProgram(src)
	CheckProgram(prog)
	return prog
}

func TestCheckAcceptsWellTypedProgram(t *testing.T) {
	require.NotPanics(t, func() {
		checkSource(t, `
			fn add(a: u32, b: u32) -> u32 { a + b }
			fn main() {
				let x: u32 = add(1, 2);
				println(x);
			}
		`)
	})
}

func TestCheckRejectsUndeclaredVariable(t *testing.T) {
	require.Panics(t, func() {
		checkSource(t, `fn f() -> u32 { y }`)
	})
}

func TestCheckRejectsTypeMismatchInLet(t *testing.T) {
	require.Panics(t, func() {
		checkSource(t, `fn f() { let x: bool = 1; }`)
	})
}

func TestCheckRejectsWrongArgCount(t *testing.T) {
	require.Panics(t, func() {
		checkSource(t, `
			fn add(a: u32, b: u32) -> u32 { a + b }
			fn main() { add(1); }
		`)
	})
}

func TestCheckRejectsNonBoolIfCondition(t *testing.T) {
	require.Panics(t, func() {
		checkSource(t, `fn f(n: u32) { if n { } }`)
	})
}

func TestCheckAllowsPointerArithmetic(t *testing.T) {
	require.NotPanics(t, func() {
		checkSource(t, `
			fn f(p: &u8) -> &u8 {
				p + 1
			}
		`)
	})
}

func TestCheckRejectsDerefOfNonPointer(t *testing.T) {
	require.Panics(t, func() {
		checkSource(t, `fn f(n: u32) -> u32 { *n }`)
	})
}

func TestCheckAllowsRecursion(t *testing.T) {
	require.NotPanics(t, func() {
		checkSource(t, `
			fn fact(n: u32) -> u32 {
				if n == 0 {
					return 1;
				} else {
					return n * fact(n - 1);
				}
			}
		`)
	})
}

func TestCheckAllowsShadowing(t *testing.T) {
	require.NotPanics(t, func() {
		checkSource(t, `
			fn f(x: u32) -> u32 {
				let x: bool = true;
				if x {
					return 1;
				} else {
					return 2;
				}
			}
		`)
	})
}

func TestCheckPreludeOverloads(t *testing.T) {
	require.NotPanics(t, func() {
		checkSource(t, `
			fn f() {
				print("hello");
				print_char(65);
				let c: u8 = read_char();
				println(c);
			}
		`)
	})
}

func TestCheckLiteralAdoptsOtherOperandWidth(t *testing.T) {
	require.NotPanics(t, func() {
		checkSource(t, `
			fn f(i: u32) -> bool {
				i <= 46
			}
		`)
	})
}

func TestCheckRejectsShadowingPrelude(t *testing.T) {
	require.Panics(t, func() {
		checkSource(t, `fn print() {}`)
	})
}
