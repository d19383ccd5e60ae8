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

package alignment

import "github.com/grailbio/hts/sam"

// FinalFlags rebuilds the SAM flags of a resolved read from scratch.  rec is
// the read's alignment and mateRec its mate's, either of which may be nil
// for an unaligned read.  proper reports whether the pair's insert size is
// plausible; it is only consulted when both mates are aligned.
//
// Secondary and supplementary bits are never set: after resolution every
// read has at most one alignment.
func FinalFlags(m Mate, rec, mateRec *Record, proper bool) sam.Flags {
	var f sam.Flags
	if rec == nil {
		f |= sam.Unmapped
	} else if rec.IsReverse() {
		f |= sam.Reverse
	}
	if m == Unpaired {
		return f
	}
	f |= sam.Paired
	if m == Mate1 {
		f |= sam.Read1
	} else {
		f |= sam.Read2
	}
	if mateRec == nil {
		f |= sam.MateUnmapped
		return f
	}
	if rec != nil && proper {
		f |= sam.ProperPair
	}
	if mateRec.IsReverse() {
		f |= sam.MateReverse
	}
	return f
}
