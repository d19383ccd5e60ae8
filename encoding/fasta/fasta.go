// Package fasta reads and writes assemblies in FASTA format.  FASTA files
// consist of a number of named sequences that may be interrupted by
// newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// whitespace immediately after '>'.  Any text after it is ignored.  For
// example, '>chr1 A viral sequence' becomes 'chr1'.
//
// Assemblies are held in memory, with bases converted to upper case.
package fasta

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

const (
	bufferInitSize = 1024 * 1024 * 300 // 300 MB
)

// Fasta represents FASTA-formatted data, consisting of a set of named
// sequences.
type Fasta interface {
	// Get returns a substring of the given sequence name at the given
	// coordinates, which are treated as a 0-based half-open interval
	// [start, end). Get is thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the given sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns the names of all sequences, in the order of appearance in
	// the FASTA file.
	SeqNames() []string
}

type fasta struct {
	seqs     map[string]string
	seqNames []string
}

func (f *fasta) add(name string, seq *strings.Builder) error {
	if name == "" {
		return errors.Errorf("malformed FASTA file: sequence without a name")
	}
	if seq.Len() == 0 {
		return errors.Errorf("malformed FASTA file: sequence %s is empty", name)
	}
	if _, ok := f.seqs[name]; ok {
		return errors.Errorf("malformed FASTA file: duplicate sequence name %s", name)
	}
	f.seqs[name] = strings.ToUpper(seq.String())
	f.seqNames = append(f.seqNames, name)
	seq.Reset()
	return nil
}

// New creates a new Fasta that holds all the FASTA data from the given reader
// in memory.  It fails on empty input, unnamed or empty sequences and
// duplicate names.
func New(r io.Reader) (Fasta, error) {
	f := &fasta{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	var (
		seqName string
		seq     strings.Builder
		started bool
	)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			if started {
				if err := f.add(seqName, &seq); err != nil {
					return nil, err
				}
			}
			started = true
			if fields := strings.Fields(line[1:]); len(fields) > 0 {
				seqName = fields[0]
			} else {
				seqName = ""
			}
			continue
		}
		if !started {
			return nil, errors.Errorf("malformed FASTA file: sequence data before the first header")
		}
		seq.WriteString(line)
	}
	if scanner.Err() != nil {
		return nil, errors.Wrap(scanner.Err(), "couldn't read FASTA data")
	}
	if !started {
		return nil, errors.Errorf("malformed FASTA file: no sequences")
	}
	if err := f.add(seqName, &seq); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads the (optionally compressed) FASTA file at path.
func Load(ctx context.Context, path string) (fa Fasta, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if e := infile.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if fa, err = New(reader); err != nil {
		err = errors.Wrap(err, path)
	}
	return
}

// Get implements Fasta.Get().
func (f *fasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	if end > uint64(len(s)) {
		return "", errors.Errorf("invalid query range %d - %d for sequence %s with length %d",
			start, end, seqName, len(s))
	}
	return s[start:end], nil
}

// Len implements Fasta.Len().
func (f *fasta) Len(seq string) (uint64, error) {
	s, ok := f.seqs[seq]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seq)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *fasta) SeqNames() []string {
	return f.seqNames
}

// Seq returns the whole of the named sequence.
func Seq(f Fasta, name string) (string, error) {
	n, err := f.Len(name)
	if err != nil {
		return "", err
	}
	return f.Get(name, 0, n)
}
