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

package pileup_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/polypolish/alignment"
	"github.com/grailbio/polypolish/encoding/fasta"
	"github.com/grailbio/polypolish/pileup"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ctgSeq = "ACGTTGCAGGCTAACGTCAT"

func rec(t *testing.T, name, ref string, pos int, cigar, seq string) *alignment.Record {
	line := fmt.Sprintf("%s\t0\t%s\t%d\t60\t%s\t*\t0\t0\t%s\t*\tNM:i:0", name, ref, pos, cigar, seq)
	r, err := alignment.ParseRecord(line, alignment.Unpaired)
	require.NoError(t, err)
	return r
}

func assembly(t *testing.T, text string) fasta.Fasta {
	fa, err := fasta.New(strings.NewReader(text))
	require.NoError(t, err)
	return fa
}

func substitute(seq string, pos int, base byte) string {
	b := []byte(seq)
	b[pos] = base
	return string(b)
}

// readSet returns n unpaired reads spanning all of ctgSeq with G5A.
func readSet(t *testing.T, n int) *alignment.Set {
	set := alignment.NewSet(false)
	seq := substitute(ctgSeq, 5, 'A')
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("r%d", i)
		r := rec(t, name, "ctg", 1, "20M", seq)
		require.NoError(t, set.Add(&alignment.Read{Key: r.Key, Seq: seq, Placement: alignment.NewPlacement([]*alignment.Record{r})}))
	}
	return set
}

func TestAddTrimsHomopolymerTail(t *testing.T) {
	p := pileup.New("ctg", "CCGATTGCAAAT")
	require.NoError(t, p.Add(rec(t, "r", "ctg", 1, "11M", "CCGATTGCAAA"), 1))
	for pos := 0; pos < 7; pos++ {
		expect.EQ(t, p.Column(pos).Depth, 1.0, "pos %d", pos)
	}
	for pos := 7; pos < p.Len(); pos++ {
		expect.EQ(t, p.Column(pos).Depth, 0.0, "pos %d", pos)
	}
	expect.EQ(t, p.Column(6).Count("G"), 1)

	// A read ending on a lone T loses the T and the A before it.
	p = pileup.New("ctg", "CCGATTGCAAAT")
	require.NoError(t, p.Add(rec(t, "r", "ctg", 1, "12M", "CCGATTGCAAAT"), 0.5))
	expect.EQ(t, p.Column(6).Depth, 0.5)
	expect.EQ(t, p.Column(7).Depth, 0.5)
	expect.EQ(t, p.Column(8).Depth, 0.5)
	expect.EQ(t, p.Column(10).Depth, 0.0)
}

func TestAddIndels(t *testing.T) {
	p := pileup.New("ctg", "ACGTACGTAC")
	// Groups are A C G - T ACC C G T; the final T and the G before it are
	// trimmed.
	require.NoError(t, p.Add(rec(t, "r", "ctg", 1, "3M1D2M2I3M", "ACGTACCCGT"), 1))
	expect.EQ(t, p.Column(3).Count("-"), 1)
	expect.EQ(t, p.Column(5).Count("ACC"), 1)
	expect.EQ(t, p.Column(5).CountString(), "ACCx1")
	expect.EQ(t, p.Column(6).CountString(), "Cx1")
	expect.EQ(t, p.Column(7).Depth, 0.0)
}

func TestAddErrors(t *testing.T) {
	p := pileup.New("ctg", "ACGTACGT")
	err := p.Add(rec(t, "r", "other", 1, "4M", "ACGT"), 1)
	expect.True(t, errors.Is(errors.Precondition, err), "%v", err)
	err = p.Add(rec(t, "r", "ctg", 6, "4M", "ACGT"), 1)
	expect.True(t, errors.Is(errors.Precondition, err), "%v", err)
	err = p.Add(rec(t, "r", "ctg", 1, "2S2M", "ACGT"), 1)
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestBuildAndPolish(t *testing.T) {
	fa := assembly(t, ">ctg\n"+ctgSeq+"\n")
	piles, err := pileup.Build(readSet(t, 6), fa, pileup.DefaultOpts)
	require.NoError(t, err)
	require.Len(t, piles, 1)

	rec, st, err := piles[0].Polish(pileup.DefaultOpts, nil)
	require.NoError(t, err)
	want := substitute(ctgSeq, 5, 'A')
	assert.Equal(t, fasta.Record{Name: "ctg_polypolish", Seq: want}, rec)

	h := seahash.New()
	h.Write([]byte(want)) // nolint: errcheck
	assert.Equal(t, h.Sum64(), st.Checksum)
	assert.Equal(t, "ctg", st.Name)
	assert.Equal(t, 20, st.Len)
	assert.Equal(t, 20, st.PolishedLen)
	assert.Equal(t, 2, st.ZeroDepth)
	assert.Equal(t, 1, st.Changed)
	assert.InDelta(t, 90.0, st.Coverage, 1e-9)
	assert.InDelta(t, 95.0, st.EstimatedAccuracy, 1e-9)
	assert.InDelta(t, 5.4, st.MeanDepth, 1e-9)
}

func TestPolishIdempotent(t *testing.T) {
	fa := assembly(t, ">ctg\n"+substitute(ctgSeq, 5, 'A')+"\n")
	piles, err := pileup.Build(readSet(t, 10), fa, pileup.DefaultOpts)
	require.NoError(t, err)
	rec, st, err := piles[0].Polish(pileup.DefaultOpts, nil)
	require.NoError(t, err)
	assert.Equal(t, substitute(ctgSeq, 5, 'A'), rec.Seq)
	assert.Equal(t, 0, st.Changed)
	for pos := 0; pos < 18; pos++ {
		assert.Equal(t, pileup.Kept, piles[0].Call(pos, pileup.DefaultOpts).Status, "pos %d", pos)
	}
}

func TestPolishDeletion(t *testing.T) {
	// Every read lacks the G at position 5.
	fa := assembly(t, ">ctg\n"+ctgSeq+"\n")
	set := alignment.NewSet(false)
	seq := ctgSeq[:5] + ctgSeq[6:]
	for i := 0; i < 5; i++ {
		r := rec(t, fmt.Sprintf("r%d", i), "ctg", 1, "5M1D14M", seq)
		require.NoError(t, set.Add(&alignment.Read{Key: r.Key, Seq: seq, Placement: alignment.NewPlacement([]*alignment.Record{r})}))
	}
	piles, err := pileup.Build(set, fa, pileup.DefaultOpts)
	require.NoError(t, err)
	rec, st, err := piles[0].Polish(pileup.DefaultOpts, nil)
	require.NoError(t, err)
	assert.Equal(t, seq, rec.Seq)
	assert.Equal(t, 19, st.PolishedLen)
	assert.Equal(t, 1, st.Changed)
}

func TestBuildWeightsAndCareful(t *testing.T) {
	fa := assembly(t, ">ctg\n"+ctgSeq+"\n>other\n"+ctgSeq+"\n")
	set := alignment.NewSet(false)
	a := rec(t, "multi", "ctg", 1, "20M", ctgSeq)
	b := rec(t, "multi", "other", 1, "20M", ctgSeq)
	require.NoError(t, set.Add(&alignment.Read{Key: a.Key, Seq: ctgSeq, Placement: alignment.NewPlacement([]*alignment.Record{a, b})}))
	require.NoError(t, set.Add(&alignment.Read{Key: alignment.ReadKey{Name: "unaligned"}, Seq: ctgSeq}))

	piles, err := pileup.Build(set, fa, pileup.DefaultOpts)
	require.NoError(t, err)
	require.Len(t, piles, 2)
	assert.Equal(t, "ctg", piles[0].Name)
	assert.Equal(t, "other", piles[1].Name)
	for _, p := range piles {
		assert.Equal(t, 0.5, p.Column(0).Depth)
		assert.Equal(t, 1, p.Column(0).Count("A"))
	}

	opts := pileup.DefaultOpts
	opts.Careful = true
	piles, err = pileup.Build(set, fa, opts)
	require.NoError(t, err)
	for _, p := range piles {
		assert.Equal(t, 0.0, p.Column(0).Depth)
	}
}

func TestPolishAmbiguousReadsKeepBase(t *testing.T) {
	fa := assembly(t, ">ctg\n"+ctgSeq+"\n>other\n"+ctgSeq+"\n")
	set := alignment.NewSet(false)
	seq := substitute(ctgSeq, 5, 'A')
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("r%d", i)
		a := rec(t, name, "ctg", 1, "20M", seq)
		b := rec(t, name, "other", 1, "20M", seq)
		require.NoError(t, set.Add(&alignment.Read{Key: a.Key, Seq: seq, Placement: alignment.NewPlacement([]*alignment.Record{a, b})}))
	}
	piles, err := pileup.Build(set, fa, pileup.DefaultOpts)
	require.NoError(t, err)
	require.Len(t, piles, 2)
	for _, p := range piles {
		c := p.Call(5, pileup.DefaultOpts)
		assert.Equal(t, 3.0, c.Depth)
		assert.Equal(t, 6, p.Column(5).Count("A"))
		assert.Equal(t, pileup.LowDepth, c.Status)
		assert.Equal(t, "G", c.Group)

		polished, stats, err := p.Polish(pileup.DefaultOpts, nil)
		require.NoError(t, err)
		assert.Equal(t, ctgSeq, polished.Seq)
		assert.Equal(t, 0, stats.Changed)
	}

	// Full weight at the same count is deep enough to change the base.
	opts := pileup.DefaultOpts
	opts.MinDepth = 3
	c := piles[0].Call(5, opts)
	assert.Equal(t, pileup.Changed, c.Status)
	assert.Equal(t, "A", c.Group)
}

func TestBuildUnknownReference(t *testing.T) {
	fa := assembly(t, ">ctg\n"+ctgSeq+"\n")
	set := alignment.NewSet(false)
	r := rec(t, "r", "missing", 1, "4M", "ACGT")
	require.NoError(t, set.Add(&alignment.Read{Key: r.Key, Seq: "ACGT", Placement: alignment.NewPlacement([]*alignment.Record{r})}))
	_, err := pileup.Build(set, fa, pileup.DefaultOpts)
	expect.True(t, errors.Is(errors.Precondition, err), "%v", err)
	expect.HasSubstr(t, err.Error(), "missing")
}

func TestDebugRows(t *testing.T) {
	fa := assembly(t, ">ctg\n"+ctgSeq+"\n")
	piles, err := pileup.Build(readSet(t, 6), fa, pileup.DefaultOpts)
	require.NoError(t, err)
	var buf bytes.Buffer
	dw := pileup.NewDebugWriter(&buf)
	require.NoError(t, dw.WriteHeader())
	_, _, err = piles[0].Polish(pileup.DefaultOpts, dw)
	require.NoError(t, err)
	require.NoError(t, dw.Flush())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 21)
	assert.Equal(t, "name\tpos\tbase\tdepth\tthreshold\tpileup\tstatus\tnew_base", lines[0])
	assert.Equal(t, "ctg\t0\tA\t6.0\t5\tAx6\tkept\tA", lines[1])
	assert.Equal(t, "ctg\t5\tG\t6.0\t5\tAx6\tchanged\tA", lines[6])
	assert.Equal(t, "ctg\t18\tA\t0.0\t5\t\tlow_depth\tA", lines[19])
}

func TestPolishAll(t *testing.T) {
	fa := assembly(t, ">ctg\n"+ctgSeq+"\n>empty_cov\nACGTACGT\n>third\nTTGACCA\n")
	piles, err := pileup.Build(readSet(t, 6), fa, pileup.DefaultOpts)
	require.NoError(t, err)
	opts := pileup.DefaultOpts
	opts.Parallelism = 2

	var debug bytes.Buffer
	recs, stats, err := pileup.PolishAll(context.Background(), piles, opts, &debug)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Len(t, stats, 3)
	assert.Equal(t, []fasta.Record{
		{Name: "ctg_polypolish", Seq: substitute(ctgSeq, 5, 'A')},
		{Name: "empty_cov_polypolish", Seq: "ACGTACGT"},
		{Name: "third_polypolish", Seq: "TTGACCA"},
	}, recs)
	assert.Equal(t, 0.0, stats[1].Coverage)
	assert.Equal(t, 8, stats[1].ZeroDepth)

	lines := strings.Split(strings.TrimSuffix(debug.String(), "\n"), "\n")
	require.Len(t, lines, 1+20+8+7)
	assert.True(t, strings.HasPrefix(lines[0], "name\t"))
	assert.True(t, strings.HasPrefix(lines[1], "ctg\t0\t"))
	assert.True(t, strings.HasPrefix(lines[21], "empty_cov\t0\t"))
	assert.True(t, strings.HasPrefix(lines[29], "third\t0\t"))

	recs2, _, err := pileup.PolishAll(context.Background(), piles, pileup.DefaultOpts, nil)
	require.NoError(t, err)
	assert.Equal(t, recs, recs2)
}

func TestPolishAllInvalidOpts(t *testing.T) {
	opts := pileup.DefaultOpts
	opts.MinFraction = 2
	_, _, err := pileup.PolishAll(context.Background(), nil, opts, nil)
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
}
