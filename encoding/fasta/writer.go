package fasta

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/polypolish/util"
)

// Record is one named sequence to be written.
type Record struct {
	Name string
	Seq  string
}

// Write writes recs to w, each sequence on a single line.
func Write(w io.Writer, recs []Record) error {
	for _, r := range recs {
		if _, err := fmt.Fprintf(w, ">%s\n%s\n", r.Name, r.Seq); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes recs to path, gzip compressed when path ends in ".gz".
func WriteFile(ctx context.Context, path string, recs []Record) error {
	return util.WriteFile(ctx, path, func(w io.Writer) error {
		return Write(w, recs)
	})
}
