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

/*
polypolish corrects a genome assembly with short-read alignments, including
inside repeats.  Every alignment of every read is used: a read aligned to N
places adds 1/N depth to each, and a position is changed only when a single
base group wins by both count and fraction.

Subcommands:

  polish   pile up the alignments of one (unpaired) or two (mate 1, mate 2)
           SAM files against the assembly and write the polished FASTA.
           With -select, multi-aligned reads are first narrowed by insert
           size and a reference policy (filter) or resolved to one
           alignment each (resolve).
  filter   tag alignments that are not part of a concordant pair with
           ZP:Z:fail, so that polish ignores them.
  resolve  reduce every read to a single alignment and write one SAM file
           per mate with rebuilt flags; optionally polish with the result.

The aligner must report all alignments of each read (e.g. bwa mem -a).

Sample usage:
polypolish filter \
    -in1 r1.sam -in2 r2.sam \
    -out1 r1.filtered.sam -out2 r2.filtered.sam
polypolish polish \
    -out polished.fasta \
    -debug polish.tsv \
    assembly.fasta r1.filtered.sam r2.filtered.sam
*/
package main
