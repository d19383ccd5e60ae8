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
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/polypolish/alignment"
	"github.com/grailbio/polypolish/encoding/fasta"
	"github.com/grailbio/polypolish/insertsize"
	"github.com/grailbio/polypolish/pileup"
	"github.com/grailbio/polypolish/selector"
	"github.com/grailbio/polypolish/util"
	"v.io/x/lib/cmdline"
)

// Values of -select.
const (
	selectNone    = "none"
	selectFilter  = "filter"
	selectResolve = "resolve"
)

// Collection of options set via cmdline flags
type polishFlags struct {
	maxErrors       int
	minDepth        int
	fractionValid   float64
	fractionInvalid float64
	careful         bool
	parallelism     int
	debug           string
	out             string
	selection       string
	policy          string
	seed            int64
}

func (f *polishFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.maxErrors, "max-errors", alignment.DefaultLoadOpts.MaxErrors, "Ignore alignments with more than this many mismatches and indels")
	fs.IntVar(&f.minDepth, "min-depth", pileup.DefaultOpts.MinDepth, "A base must occur at least this many times in the pileup to be considered valid")
	fs.Float64Var(&f.fractionValid, "fraction-valid", pileup.DefaultOpts.MinFraction, "A base must make up at least this fraction of the pileup depth to be considered valid")
	fs.Float64Var(&f.fractionInvalid, "fraction-invalid", pileup.DefaultOpts.FractionInvalid, "Leave a position unchanged when a second base makes up at least this fraction of the depth; 0 disables the check")
	fs.BoolVar(&f.careful, "careful", pileup.DefaultOpts.Careful, "Ignore any reads with multiple alignments")
	fs.IntVar(&f.parallelism, "parallelism", 0, "Maximum number of sequences polished at once; 0 = runtime.NumCPU()")
	fs.StringVar(&f.debug, "debug", "", "Optional per-base TSV path")
	fs.StringVar(&f.selection, "select", selectNone, `How multi-aligned reads are narrowed before polishing:
'none' keeps every alignment, 'filter' drops alignments by insert size and
reference policy, 'resolve' reduces every read to one alignment.`)
	fs.StringVar(&f.policy, "policy", selector.PolicyMask, "Reference policy used by -select: 'mask', 'informative' or 'none'")
	fs.Int64Var(&f.seed, "seed", 0, "Seed for random tie breaks")
}

func (f polishFlags) pileupOpts() pileup.Opts {
	return pileup.Opts{
		MinDepth:        f.minDepth,
		MinFraction:     f.fractionValid,
		FractionInvalid: f.fractionInvalid,
		Careful:         f.careful,
		Parallelism:     f.parallelism,
	}
}

func newCmdPolish() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "polish",
		Short:    "Polish an assembly with short-read alignments",
		ArgsName: "assembly sam [sam2]",
	}
	var f polishFlags
	f.register(&cmd.Flags)
	cmd.Flags.StringVar(&f.out, "out", "", "Polished FASTA path; empty writes to stdout")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 && len(argv) != 3 {
			return fmt.Errorf("polish takes an assembly and one or two SAM files, but got %v", argv)
		}
		return polish(vcontext.Background(), f, argv[0], argv[1:])
	})
	return cmd
}

// load reads the assembly and the alignments.
func load(ctx context.Context, f polishFlags, assembly string, sams []string) (fasta.Fasta, *alignment.Set, error) {
	fa, err := fasta.Load(ctx, assembly)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("%s: %d sequences", assembly, len(fa.SeqNames()))
	set, err := alignment.Load(ctx, sams, alignment.LoadOpts{MaxErrors: f.maxErrors})
	if err != nil {
		return nil, nil, err
	}
	set.Summarize().Log("loaded")
	return fa, set, nil
}

// selectAlignments narrows the candidates of set as requested by
// f.selection.  The insert size distribution is returned for paired sets.
func selectAlignments(set *alignment.Set, fa fasta.Fasta, f polishFlags) (*insertsize.Distribution, error) {
	switch f.selection {
	case selectNone:
		return nil, nil
	case selectFilter, selectResolve:
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown -select value %q", f.selection))
	}
	policy, err := selector.ParsePolicy(f.policy, fa)
	if err != nil {
		return nil, err
	}
	var dist *insertsize.Distribution
	if set.Paired {
		if dist, err = insertsize.Estimate(set); err != nil {
			return nil, err
		}
		dist.Log()
	}
	sel := selector.New(set, dist, policy, rand.New(rand.NewSource(f.seed)))
	if f.selection == selectResolve {
		return dist, sel.Run()
	}
	sel.FilterByInsertSize()
	if err := sel.FilterByPolicy(); err != nil {
		return nil, err
	}
	set.Summarize().Log("filtered")
	return dist, nil
}

// polished holds the output of polishing until it is written.
type polished struct {
	recs  []fasta.Record
	debug bytes.Buffer
}

// polishSet piles up set against fa and polishes every sequence in memory.
// The debug table is kept only when f.debug is set.
func polishSet(ctx context.Context, fa fasta.Fasta, set *alignment.Set, f polishFlags) (*polished, error) {
	opts := f.pileupOpts()
	piles, err := pileup.Build(set, fa, opts)
	if err != nil {
		return nil, err
	}
	out := &polished{}
	var debug io.Writer
	if f.debug != "" {
		debug = &out.debug
	}
	if out.recs, _, err = pileup.PolishAll(ctx, piles, opts, debug); err != nil {
		return nil, err
	}
	return out, nil
}

// write writes the debug table, if requested, and then the polished
// sequences to f.out, or stdout.
func (p *polished) write(ctx context.Context, f polishFlags) error {
	if f.debug != "" {
		err := util.WriteFile(ctx, f.debug, func(w io.Writer) error {
			_, err := p.debug.WriteTo(w)
			return err
		})
		if err != nil {
			return err
		}
	}
	if f.out == "" {
		w := bufio.NewWriter(os.Stdout)
		if err := fasta.Write(w, p.recs); err != nil {
			return err
		}
		return w.Flush()
	}
	return fasta.WriteFile(ctx, f.out, p.recs)
}

// polishAssembly polishes fa with set and writes the results.  No output
// file is created unless every sequence succeeds.
func polishAssembly(ctx context.Context, fa fasta.Fasta, set *alignment.Set, f polishFlags) error {
	out, err := polishSet(ctx, fa, set, f)
	if err != nil {
		return err
	}
	return out.write(ctx, f)
}

func polish(ctx context.Context, f polishFlags, assembly string, sams []string) error {
	if err := f.pileupOpts().Validate(); err != nil {
		return err
	}
	fa, set, err := load(ctx, f, assembly, sams)
	if err != nil {
		return err
	}
	if _, err := selectAlignments(set, fa, f); err != nil {
		return err
	}
	return polishAssembly(ctx, fa, set, f)
}
