package fasta_test

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/polypolish/encoding/fasta"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

var fastaData = ">seq1\n" + "ACGTA\nCGTAC\nGT\n" + ">seq2 A viral sequence\n" + "acgt\n" + "ACGT\n"

func TestGet(t *testing.T) {
	tests := []struct {
		seq   string
		start uint64
		end   uint64
		want  string
		err   error
	}{
		{"seq1", 1, 2, "C", nil},
		{"seq1", 1, 6, "CGTAC", nil},
		{"seq1", 0, 12, "ACGTACGTACGT", nil},
		{"seq1", 10, 12, "GT", nil},
		{"seq2", 0, 8, "ACGTACGT", nil},
		{"seq2", 2, 5, "GTA", nil},
		{"seq0", 0, 1, "", fmt.Errorf("sequence not found: seq0")},
		{"seq1", 10, 13, "", fmt.Errorf("invalid query range")},
		{"seq1", 4, 3, "", fmt.Errorf("start must be less than end")},
	}
	fa, err := fasta.New(strings.NewReader(fastaData))
	assert.NoError(t, err)
	for _, tt := range tests {
		got, err := fa.Get(tt.seq, tt.start, tt.end)
		if (err == nil && tt.err != nil) || (err != nil && tt.err == nil) {
			t.Errorf("unexpected error: want %v, got %v", tt.err, err)
		}
		if got != tt.want {
			t.Errorf("unexpected sequence: want %s, got %s", tt.want, got)
		}
	}
}

func TestLength(t *testing.T) {
	tests := []struct {
		seq  string
		want uint64
		err  error
	}{
		{"seq1", 12, nil},
		{"seq2", 8, nil},
		{"seq0", 0, fmt.Errorf("sequence not found: seq0")},
	}
	fa, err := fasta.New(strings.NewReader(fastaData))
	assert.NoError(t, err)
	for _, tt := range tests {
		got, err := fa.Len(tt.seq)
		if (err == nil && tt.err != nil) || (err != nil && tt.err == nil) {
			t.Errorf("unexpected error: want %v, got %v", tt.err, err)
		}
		if got != tt.want {
			t.Errorf("unexpected length: want %v, got %v", tt.want, got)
		}
	}
}

func TestSeqNames(t *testing.T) {
	fa, err := fasta.New(strings.NewReader(fastaData))
	assert.NoError(t, err)
	expect.EQ(t, fa.SeqNames(), []string{"seq1", "seq2"})
	seq, err := fasta.Seq(fa, "seq2")
	assert.NoError(t, err)
	expect.EQ(t, seq, "ACGTACGT")
	_, err = fasta.Seq(fa, "seq3")
	expect.HasSubstr(t, err.Error(), "sequence not found")
}

func TestMalformed(t *testing.T) {
	for _, tt := range []struct {
		data, err string
	}{
		{"", "no sequences"},
		{"\n\n", "no sequences"},
		{"ACGT\n>seq1\nACGT\n", "before the first header"},
		{">\nACGT\n", "without a name"},
		{">seq1\n>seq2\nACGT\n", "seq1 is empty"},
		{">seq1\nACGT\n>seq2\n", "seq2 is empty"},
		{">seq1\nACGT\n>seq1 again\nAC\n", "duplicate sequence name seq1"},
	} {
		_, err := fasta.New(strings.NewReader(tt.data))
		if err == nil {
			t.Errorf("%q: expected an error", tt.data)
			continue
		}
		expect.HasSubstr(t, err.Error(), tt.err)
	}
}

func TestLoadAndWrite(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)
	ctx := vcontext.Background()

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write([]byte(fastaData))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	in := filepath.Join(tempDir, "in.fa.gz")
	assert.NoError(t, ioutil.WriteFile(in, gz.Bytes(), 0644))

	fa, err := fasta.Load(ctx, in)
	assert.NoError(t, err)
	expect.EQ(t, fa.SeqNames(), []string{"seq1", "seq2"})

	recs := []fasta.Record{{Name: "seq1_polypolish", Seq: "ACGT"}, {Name: "seq2_polypolish", Seq: "GG"}}
	want := ">seq1_polypolish\nACGT\n>seq2_polypolish\nGG\n"
	var buf bytes.Buffer
	assert.NoError(t, fasta.Write(&buf, recs))
	expect.EQ(t, buf.String(), want)

	for _, name := range []string{"out.fa", "out.fa.gz"} {
		out := filepath.Join(tempDir, name)
		assert.NoError(t, fasta.WriteFile(ctx, out, recs))
		fa, err := fasta.Load(ctx, out)
		assert.NoError(t, err)
		seq, err := fasta.Seq(fa, "seq2_polypolish")
		assert.NoError(t, err)
		expect.EQ(t, seq, "GG")
	}
	plain, err := ioutil.ReadFile(filepath.Join(tempDir, "out.fa"))
	assert.NoError(t, err)
	expect.EQ(t, string(plain), want)

	_, err = fasta.Load(ctx, filepath.Join(tempDir, "missing.fa"))
	if err == nil {
		t.Error("expected an error for a missing file")
	}
}
