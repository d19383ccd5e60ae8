// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pileup

// Common pileup components.

// These constants index the fixed per-position counters.  Every other base
// group (insertions, deletions, ambiguity codes) is kept in a map.
const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

// NBase is the number of regular base types.
const NBase = 4

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// ASCIIToEnumTable maps an ASCII base to its A/C/G/T/X enum.
var ASCIIToEnumTable = [256]byte{}

func init() {
	for i := range ASCIIToEnumTable {
		ASCIIToEnumTable[i] = BaseX
	}
	for e := BaseA; e < BaseX; e++ {
		ASCIIToEnumTable[EnumToASCIITable[e]] = e
	}
}

// baseEnum returns the fixed counter index for a single-base group, or BaseX
// for anything else.
func baseEnum(group string) byte {
	if len(group) != 1 {
		return BaseX
	}
	return ASCIIToEnumTable[group[0]]
}
