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
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/polypolish/alignment"
	"v.io/x/lib/cmdline"
)

type resolveFlags struct {
	polishFlags
	// samOut lists the resolved SAM paths, one per input file.
	samOut string
}

func newCmdResolve() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "resolve",
		Short:    "Reduce every read to a single alignment",
		ArgsName: "assembly sam [sam2]",
	}
	var f resolveFlags
	f.register(&cmd.Flags)
	cmd.Flags.StringVar(&f.samOut, "sam-out", "", "Comma-separated output SAM paths, one per input SAM file")
	cmd.Flags.StringVar(&f.out, "out", "", "Optional path for an assembly polished with the resolved alignments")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 && len(argv) != 3 {
			return fmt.Errorf("resolve takes an assembly and one or two SAM files, but got %v", argv)
		}
		return resolve(vcontext.Background(), f, argv[0], argv[1:])
	})
	return cmd
}

func resolve(ctx context.Context, f resolveFlags, assembly string, sams []string) error {
	paths := strings.Split(f.samOut, ",")
	if f.samOut == "" || len(paths) != len(sams) {
		return fmt.Errorf("-sam-out must name %d output paths, got %q", len(sams), f.samOut)
	}
	f.selection = selectResolve
	if err := f.pileupOpts().Validate(); err != nil {
		return err
	}
	fa, set, err := load(ctx, f.polishFlags, assembly, sams)
	if err != nil {
		return err
	}
	dist, err := selectAlignments(set, fa, f.polishFlags)
	if err != nil {
		return err
	}
	proper := func(a, b *alignment.Record) bool { return dist != nil && dist.Proper(a, b) }
	reads, err := alignment.Resolve(set, proper)
	if err != nil {
		return err
	}
	// Polish before writing anything so that a failure leaves no outputs.
	var out *polished
	if f.out != "" {
		if out, err = polishSet(ctx, fa, set, f.polishFlags); err != nil {
			return err
		}
	}
	if err := alignment.WriteResolved(ctx, set, reads, paths); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return out.write(ctx, f.polishFlags)
}
