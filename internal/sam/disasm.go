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
package sam

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble renders an assembled Image as a one-instruction-per-line
// human-readable listing, the "sam" half of the compile entry point's
// return value: address, mnemonic, resolved operand, nothing fancier.
func Disassemble(img Image) string {
	var sb strings.Builder
	addr := 0
	for addr < img.CodeSize {
		op := Op(img.Bytes[addr])
		fmt.Fprintf(&sb, "%08x: %s", addr, op)
		switch op {
		case OpSetA8, OpSetX, OpXEq, OpXNeq:
			fmt.Fprintf(&sb, " %d", img.Bytes[addr+1])
		case OpSetA32:
			fmt.Fprintf(&sb, " %d", int32(binary.LittleEndian.Uint32(img.Bytes[addr+1:])))
		case OpAddConstToB:
			fmt.Fprintf(&sb, " %+d", int32(binary.LittleEndian.Uint32(img.Bytes[addr+1:])))
		case OpJump, OpJumpIfX, OpJumpIfNX:
			rel := int32(binary.LittleEndian.Uint32(img.Bytes[addr+1:]))
			fmt.Fprintf(&sb, " %08x", addr+int(rel))
		case OpCall:
			target := binary.LittleEndian.Uint32(img.Bytes[addr+1:])
			fmt.Fprintf(&sb, " %08x", target)
		case OpPrintStr:
			strAddr := binary.LittleEndian.Uint32(img.Bytes[addr+1:])
			length := binary.LittleEndian.Uint32(img.Bytes[addr+5:])
			fmt.Fprintf(&sb, " @%08x,%d", strAddr, length)
		}
		sb.WriteByte('\n')
		addr += op.Size()
	}
	fmt.Fprintf(&sb, "%08x: halt (sentinel)\n", img.HaltAddr)
	return sb.String()
}
