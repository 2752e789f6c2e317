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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A classic hand-sized Hello World, loops and all.
const helloWorld = `++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]
>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++.`

func TestParseIgnoresComments(t *testing.T) {
	nodes, err := Parse("this is + a comment > with ! embedded @ commands -")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, OpAddCell, nodes[0].Kind)
	assert.Equal(t, OpMovePtr, nodes[1].Kind)
	assert.Equal(t, OpAddCell, nodes[2].Kind)
}

func TestParseRejectsUnmatchedBrackets(t *testing.T) {
	_, err := Parse("+[+")
	require.Error(t, err)
	_, err = Parse("+]+")
	require.Error(t, err)
}

func TestHelloWorld(t *testing.T) {
	out, err := RunSource(helloWorld, nil)
	require.NoError(t, err)
	require.Equal(t, "Hello World!\n", string(out))
}

func TestCoalesceRuns(t *testing.T) {
	nodes, err := Parse("+++++ --- >>> <<<<")
	require.NoError(t, err)
	opt := Optimize(nodes)
	require.Len(t, opt, 2)
	assert.Equal(t, OpAddCell, opt[0].Kind)
	assert.Equal(t, 2, opt[0].Arg)
	assert.Equal(t, OpMovePtr, opt[1].Kind)
	assert.Equal(t, -1, opt[1].Arg)
}

func TestNetZeroRunsDropped(t *testing.T) {
	nodes, err := Parse("+-+- ><><")
	require.NoError(t, err)
	require.Empty(t, Optimize(nodes))
}

func TestSetZeroRecognized(t *testing.T) {
	for _, src := range []string{"[-]", "[+]"} {
		nodes, err := Parse(src)
		require.NoError(t, err)
		opt := Optimize(nodes)
		require.Len(t, opt, 1, src)
		assert.Equal(t, OpSetZero, opt[0].Kind, src)
	}
}

func TestAddMulRecognized(t *testing.T) {
	// [->>+++<<] adds 3*entry two cells right, then clears the entry.
	nodes, err := Parse("[->>+++<<]")
	require.NoError(t, err)
	opt := Optimize(nodes)
	require.Len(t, opt, 2)
	require.Equal(t, OpAddMul, opt[0].Kind)
	require.Equal(t, []MulTerm{{Offset: 2, Factor: 3}}, opt[0].Terms)
	require.Equal(t, OpSetZero, opt[1].Kind)
}

func TestUnbalancedLoopNotAddMul(t *testing.T) {
	// Net pointer movement nonzero: must stay a loop.
	nodes, err := Parse("[->+]")
	require.NoError(t, err)
	opt := Optimize(nodes)
	require.Len(t, opt, 1)
	require.Equal(t, OpLoop, opt[0].Kind)
}

func TestOptimizeIsFixedPointAfterOnePass(t *testing.T) {
	for _, src := range []string{helloWorld, "[-]", "[->>+++<<]", "+[>,.<]", "++[->++[->++<]<]"} {
		nodes, err := Parse(src)
		require.NoError(t, err)
		once := Optimize(nodes)
		twice := Optimize(once)
		require.Equal(t, flatten(once), flatten(twice), src)
	}
}

// flatten renders a tree as a comparable op listing.
func flatten(nodes []*Node) []string {
	out := []string{}
	for _, n := range nodes {
		out = append(out, n.String())
		if n.Kind == OpLoop {
			out = append(out, flatten(n.Body)...)
			out = append(out, "end")
		}
	}
	return out
}

// TestOptimizerSoundness runs raw and optimized trees side by side and
// requires identical output and tape state.
func TestOptimizerSoundness(t *testing.T) {
	programs := []struct {
		src   string
		input string
	}{
		{helloWorld, ""},
		{"++++[->++++<]>[->>+<<]", ""},
		{",[.,]", "abc"},
		{"+++[[-]+++[-]]", ""},
		{"++>+++[-<+>]<", ""},
	}
	for _, p := range programs {
		raw, err := Parse(p.src)
		require.NoError(t, err)
		rawVM := NewInterp([]byte(p.input))
		rawOut, err := rawVM.Run(raw)
		require.NoError(t, err, p.src)

		opt, err := Parse(p.src)
		require.NoError(t, err)
		optVM := NewInterp([]byte(p.input))
		optOut, err := optVM.Run(Optimize(opt))
		require.NoError(t, err, p.src)

		require.Equal(t, rawOut, optOut, p.src)
		require.Equal(t, trimTrailingZeros(rawVM.Tape), trimTrailingZeros(optVM.Tape), p.src)
		require.Equal(t, rawVM.Ptr, optVM.Ptr, p.src)
	}
}

func trimTrailingZeros(tape []byte) []byte {
	n := len(tape)
	for n > 0 && tape[n-1] == 0 {
		n--
	}
	return tape[:n]
}

func TestInputReturnsZeroWhenExhausted(t *testing.T) {
	out, err := RunSource(",.,.", []byte{65})
	require.NoError(t, err)
	require.Equal(t, []byte{65, 0}, out)
}

func TestPointerUnderflowIsError(t *testing.T) {
	_, err := RunSource("<", nil)
	require.Error(t, err)
}
