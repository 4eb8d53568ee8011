// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kgsl

// Z180 (2D/vector core) command stream layout, from
// drivers/gpu/msm/z180.c.
//
// Every IB submitted to the Z180 begins with a context state region that is
// restored on context switch, followed by the command region.
const (
	Z180_NUMTEXUNITS     = 4
	Z180_TEXUNITREGCOUNT = 25
	Z180_VG_REGCOUNT     = 0x39

	Z180_PACKETSIZE_BEGIN    = 3
	Z180_PACKETSIZE_G2DCOLOR = 2
	Z180_PACKETSIZE_TEXUNIT  = Z180_TEXUNITREGCOUNT * 2
	Z180_PACKETSIZE_REG      = Z180_VG_REGCOUNT * 2
	Z180_PACKETSIZE_STATE    = Z180_PACKETSIZE_TEXUNIT*Z180_NUMTEXUNITS +
		Z180_PACKETSIZE_REG + Z180_PACKETSIZE_BEGIN + Z180_PACKETSIZE_G2DCOLOR

	// Z180_PACKETSIZE_STATESTREAM is the size of the context state region in
	// words: the state packet rounded up to 32 bytes (0x140).
	Z180_PACKETSIZE_STATESTREAM = ((Z180_PACKETSIZE_STATE*4 + 31) &^ 31) / 4

	// Z180_STREAM_PACKET_CALL is the first word of each command region.
	Z180_STREAM_PACKET_CALL = 0x7c000275
)

// The command region encodes its own length in the low 12 bits of its third
// word. The length excludes the leading call packet (5 words) and the two
// trailing 0x7f000000 words.
const (
	Z180_CMD_LENGTH_WORD = 2
	Z180_CMD_LENGTH_MASK = 0xfff
	Z180_CMD_OVERHEAD    = 5 + 2
)

// Z180CmdWords returns the total size in words of a command region whose
// third word is lenWord.
func Z180CmdWords(lenWord uint32) uint32 {
	return lenWord&Z180_CMD_LENGTH_MASK + Z180_CMD_OVERHEAD
}
