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
package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloHIR = `fn main() { println("hi"); }`

func TestCompileReturnsListingAndBF(t *testing.T) {
	res, err := Compile(helloHIR)
	require.NoError(t, err)
	assert.Contains(t, res.SAM, "call")
	assert.Contains(t, res.SAM, "halt (sentinel)")
	require.NotEmpty(t, res.BF)
	require.Equal(t, "", strings.Trim(res.BF, "+-<>[],."))
}

func TestCompileRejectsSyntaxError(t *testing.T) {
	_, err := Compile(`fn main( {`)
	require.Error(t, err)
}

func TestCompileRejectsSemanticError(t *testing.T) {
	_, err := Compile(`fn main() { undeclared = 1; }`)
	require.Error(t, err)
}

func TestCompileIsDeterministic(t *testing.T) {
	a, err := Compile(helloHIR)
	require.NoError(t, err)
	b, err := Compile(helloHIR)
	require.NoError(t, err)
	require.Equal(t, a.SAM, b.SAM)
	require.Equal(t, a.BF, b.BF)
}

func TestDebugProgramOutput(t *testing.T) {
	res, err := DebugProgram(`
		fn main() {
			let c: u8 = read_char();
			print_char(c);
			println("!");
		}
	`, "A", false)
	require.NoError(t, err)
	require.Equal(t, "A!\n", res.Output)
	require.Empty(t, res.Trace)
}

func TestDebugProgramTrace(t *testing.T) {
	res, err := DebugProgram(`fn main() { print_char(65); }`, "", true)
	require.NoError(t, err)
	require.Equal(t, "A", res.Output)
	require.NotEmpty(t, res.Trace)
}

func TestCompileBFToWasm(t *testing.T) {
	bin, err := CompileBFToWasm(",[.,]")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(bin), "\x00asm"))
}

func TestCompileBFToWasmRejectsUnmatchedBrackets(t *testing.T) {
	_, err := CompileBFToWasm("[[")
	require.Error(t, err)
}

func TestRunBF(t *testing.T) {
	out, err := RunBF(",+.", "A")
	require.NoError(t, err)
	require.Equal(t, "B", out)
}
