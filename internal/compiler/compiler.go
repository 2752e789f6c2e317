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

// Package compiler is the driver tying the front end, the SAM backend,
// and the two Brainfuck consumers into the embedder-facing entry points:
// parse, check, lower, assemble, emit. The panic-based internal failures
// of the lower layers are recovered here and surfaced as wrapped errors.
package compiler

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/brainpluck/brainpluck/internal/bf"
	"github.com/brainpluck/brainpluck/internal/bfgen"
	"github.com/brainpluck/brainpluck/internal/hir"
	"github.com/brainpluck/brainpluck/internal/sam"
	"github.com/brainpluck/brainpluck/internal/wasmjit"
)

// Version is exposed for diagnostics only.
const Version = "0.2.0"

// CompileResult is what compile() hands back to the embedder: the
// human-readable SAM listing and the generated Brainfuck program.
type CompileResult struct {
	SAM string
	BF  string
}

// DebugResult is the direct-interpretation result, bypassing Brainfuck.
type DebugResult struct {
	SAM    string
	Output string
	Trace  []string
}

// Compile runs the whole HIR pipeline. HIR syntax and semantic errors are
// fatal and unstructured; they surface as a single wrapped error.
func Compile(src string) (res *CompileResult, err error) {
	defer recoverToError(&err, "compile")
	start := time.Now()

	prog := hir.ParseProgram(src)
	logrus.WithField("functions", len(prog.Funcs)).Debug("parsed")
	hir.CheckProgram(prog)
	logrus.Debug("checked")
	img := sam.Assemble(sam.Lower(prog))
	logrus.WithField("bytes", len(img.Bytes)).Debug("assembled")
	text := bfgen.Generate(img)
	logrus.WithFields(logrus.Fields{
		"bf_len":  len(text),
		"elapsed": time.Since(start),
	}).Debug("emitted")

	return &CompileResult{SAM: sam.Disassemble(img), BF: text}, nil
}

// CompileBFToWasm parses, optimizes, and JIT-lowers a Brainfuck program
// to a Wasm module binary.
func CompileBFToWasm(src string) ([]byte, error) {
	m, err := wasmjit.Compile(src)
	if err != nil {
		return nil, err
	}
	return m.Binary, nil
}

// CompileBFToWat is CompileBFToWasm's text-format sibling, used by the
// debug tooling.
func CompileBFToWat(src string) (string, error) {
	m, err := wasmjit.Compile(src)
	if err != nil {
		return "", err
	}
	return m.Wat, nil
}

// DebugProgram lowers HIR to SAM and interprets the image directly,
// bypassing Brainfuck entirely. With trace enabled the result carries one
// line per executed instruction.
func DebugProgram(src, input string, trace bool) (res *DebugResult, err error) {
	defer recoverToError(&err, "debug")

	prog := hir.ParseProgram(src)
	hir.CheckProgram(prog)
	img := sam.Assemble(sam.Lower(prog))
	vm := sam.NewInterp(img, []byte(input))
	if trace {
		vm.EnableTrace()
	}
	out := vm.Run(uint32(img.HaltAddr))
	return &DebugResult{
		SAM:    sam.Disassemble(img),
		Output: string(out),
		Trace:  vm.Trace(),
	}, nil
}

// RunBF executes a Brainfuck program on the in-host reference
// interpreter.
func RunBF(src, input string) (string, error) {
	out, err := bf.RunSource(src, []byte(input))
	return string(out), err
}

// recoverToError converts the unstructured panics the front end and
// assembler use for fatal failures into a single error at the API
// boundary.
func recoverToError(err *error, phase string) {
	if r := recover(); r != nil {
		*err = errors.Errorf("%s: %v", phase, r)
	}
}
