// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package util_test

import (
	"testing"

	"github.com/grailbio/polypolish/util"
	"github.com/grailbio/testutil/expect"
)

func TestReverseComplement(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"A", "T"},
		{"GGTATCACTCAGGAAGC", "GCTTCCTGAGTGATACC"},
		{"GGGGaaaaaaaatttatatat", "atatataaattttttttCCCC"},
		{"atatataaattttttttCCCC", "GGGGaaaaaaaatttatatat"},
		{"ACGT123", "NNNACGT"},
	}
	for _, tt := range tests {
		expect.EQ(t, util.ReverseComplement(tt.in), tt.want)
	}
}

func TestReverse(t *testing.T) {
	expect.EQ(t, util.Reverse(""), "")
	expect.EQ(t, util.Reverse("IIF#"), "#FII")
	expect.EQ(t, util.Reverse(util.Reverse("ABCDE")), "ABCDE")
}
