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
package pileup

import (
	"io"
	"strconv"

	"github.com/grailbio/base/tsv"
)

// DebugHeader names the columns of the per-base debug table.
var DebugHeader = []string{"name", "pos", "base", "depth", "threshold", "pileup", "status", "new_base"}

// DebugWriter writes one tab-separated row per called position: sequence
// name, 0-based position, reference base, depth, threshold, pileup counts,
// status and the chosen base group.
type DebugWriter struct {
	w *tsv.Writer
}

// NewDebugWriter returns a DebugWriter on w.  It does not write a header.
func NewDebugWriter(w io.Writer) *DebugWriter {
	return &DebugWriter{w: tsv.NewWriter(w)}
}

// WriteHeader writes the header line.
func (d *DebugWriter) WriteHeader() error {
	for _, h := range DebugHeader {
		d.w.WriteString(h)
	}
	return d.w.EndLine()
}

// Write writes the row for c, called on p.
func (d *DebugWriter) Write(p *Pileup, c Call) error {
	d.w.WriteString(p.Name)
	d.w.WriteUint32(uint32(c.Pos))
	d.w.WriteString(c.Base)
	d.w.WriteString(strconv.FormatFloat(c.Depth, 'f', 1, 64))
	d.w.WriteUint32(uint32(c.Threshold))
	d.w.WriteString(p.cols[c.Pos].CountString())
	d.w.WriteString(c.Status.String())
	d.w.WriteString(c.Group)
	return d.w.EndLine()
}

// Flush flushes buffered rows to the underlying writer.
func (d *DebugWriter) Flush() error { return d.w.Flush() }
