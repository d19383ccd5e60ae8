// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package util

var revCompTable = [256]byte{}

func init() {
	for i := range revCompTable {
		revCompTable[i] = 'N'
	}
	for _, p := range [...][2]byte{{'A', 'T'}, {'C', 'G'}, {'G', 'C'}, {'T', 'A'}} {
		revCompTable[p[0]] = p[1]
		revCompTable[p[0]+'a'-'A'] = p[1] + 'a' - 'A'
	}
}

// ReverseComplement returns the reverse complement of seq.  Case is preserved
// for A/C/G/T; every other byte becomes 'N'.
func ReverseComplement(seq string) string {
	n := len(seq)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = revCompTable[seq[i]]
	}
	return string(out)
}

// Reverse returns s with its bytes in reverse order.  Used for quality
// strings, which travel with the sequence but are not complemented.
func Reverse(s string) string {
	n := len(s)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = s[i]
	}
	return string(out)
}
