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

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/polypolish/filter"
	"github.com/grailbio/polypolish/insertsize"
	"v.io/x/lib/cmdline"
)

type filterFlags struct {
	in1, in2, out1, out2 string
	orientation          string
	low, high            float64
}

func newCmdFilter() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "filter",
		Short: "Tag alignments that are not part of a concordant read pair",
	}
	var f filterFlags
	cmd.Flags.StringVar(&f.in1, "in1", "", "Input SAM file of mate 1 alignments")
	cmd.Flags.StringVar(&f.in2, "in2", "", "Input SAM file of mate 2 alignments")
	cmd.Flags.StringVar(&f.out1, "out1", "", "Output SAM file of mate 1 alignments")
	cmd.Flags.StringVar(&f.out2, "out2", "", "Output SAM file of mate 2 alignments")
	cmd.Flags.StringVar(&f.orientation, "orientation", filter.DefaultOpts.Orientation.String(),
		"Expected pair orientation: 'fr', 'rf', 'ff', 'rr' or 'auto'")
	cmd.Flags.Float64Var(&f.low, "low", filter.DefaultOpts.Low, "Percentile of the insert size distribution used as the low threshold")
	cmd.Flags.Float64Var(&f.high, "high", filter.DefaultOpts.High, "Percentile of the insert size distribution used as the high threshold")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("filter takes no positional arguments, but got %v", argv)
		}
		if f.in1 == "" || f.in2 == "" || f.out1 == "" || f.out2 == "" {
			return fmt.Errorf("filter requires -in1, -in2, -out1 and -out2")
		}
		return runFilter(vcontext.Background(), f)
	})
	return cmd
}

func runFilter(ctx context.Context, f filterFlags) error {
	orient, err := insertsize.ParseOrientation(f.orientation)
	if err != nil {
		return err
	}
	opts := filter.Opts{Orientation: orient, Low: f.low, High: f.high}
	stats, err := filter.Run(ctx, [2]string{f.in1, f.in2}, [2]string{f.out1, f.out2}, opts)
	if err != nil {
		return err
	}
	log.Printf("alignments before filtering: %d", stats.Total())
	log.Printf("alignments after filtering: %d", stats.Pass[0]+stats.Pass[1])
	return nil
}
