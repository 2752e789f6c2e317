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
package wasmjit

// Wasm binary-format constants, per the spec's section and opcode tables.
// Only the handful of opcodes the BF lowering needs are named.
const (
	secType   = 1
	secImport = 2
	secFunc   = 3
	secGlobal = 6
	secExport = 7
	secCode   = 10

	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opElse        = 0x05
	opEnd         = 0x0b
	opBr          = 0x0c
	opBrIf        = 0x0d
	opBrTable     = 0x0e
	opReturn      = 0x0f
	opCall        = 0x10
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opLocalTee    = 0x22
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load8U   = 0x2d
	opI32Store8   = 0x3a
	opI32Const    = 0x41
	opI32Eqz      = 0x45
	opI32Ne       = 0x47
	opI32LtS      = 0x48
	opI32Add      = 0x6a
	opI32Mul      = 0x6c
	opUnreachable = 0x00

	typeI32       = 0x7f
	typeFunc      = 0x60
	blockTypeNone = 0x40
)

func uleb(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

func sleb(buf []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func name(buf []byte, s string) []byte {
	buf = uleb(buf, uint32(len(s)))
	return append(buf, s...)
}

// section wraps payload in a section header with its byte length.
func section(buf []byte, id byte, payload []byte) []byte {
	buf = append(buf, id)
	buf = uleb(buf, uint32(len(payload)))
	return append(buf, payload...)
}

// encodeModule assembles the fixed module shell around the run_bf body:
// two function types, the three host imports, the two globals, the two
// exports, and the single code entry.
func encodeModule(body []byte) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00} // magic + version

	// Type 0: () -> i32; type 1: (i32) -> ().
	types := uleb(nil, 2)
	types = append(types, typeFunc, 0x00, 0x01, typeI32)
	types = append(types, typeFunc, 0x01, typeI32, 0x00)
	out = section(out, secType, types)

	// Imports: the host-owned tape, then the two I/O hooks. Function
	// index space: write_output_byte=0, read_input_byte=1.
	imports := uleb(nil, 3)
	imports = name(imports, "imports")
	imports = name(imports, "tape")
	imports = append(imports, 0x02, 0x00) // memory, min only
	imports = uleb(imports, 1)
	imports = name(imports, "imports")
	imports = name(imports, "write_output_byte")
	imports = append(imports, 0x00)
	imports = uleb(imports, 1)
	imports = name(imports, "imports")
	imports = name(imports, "read_input_byte")
	imports = append(imports, 0x00)
	imports = uleb(imports, 0)
	out = section(out, secImport, imports)

	// run_bf is function index 2, type 0.
	funcs := uleb(nil, 1)
	funcs = uleb(funcs, 0)
	out = section(out, secFunc, funcs)

	// Globals: 0 = cell_ptr (exported), 1 = resume-state (internal).
	globals := uleb(nil, 2)
	for i := 0; i < 2; i++ {
		globals = append(globals, typeI32, 0x01)            // mut i32
		globals = append(globals, opI32Const, 0x00, opEnd)  // init 0
	}
	out = section(out, secGlobal, globals)

	exports := uleb(nil, 2)
	exports = name(exports, "run_bf")
	exports = append(exports, 0x00)
	exports = uleb(exports, 2)
	exports = name(exports, "cell_ptr")
	exports = append(exports, 0x03)
	exports = uleb(exports, 0)
	out = section(out, secExport, exports)

	code := uleb(nil, 1)
	code = uleb(code, uint32(len(body)))
	code = append(code, body...)
	return section(out, secCode, code)
}
