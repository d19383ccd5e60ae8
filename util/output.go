// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package util

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
)

// WriteFile creates path and calls fn with a buffered writer for it.  The
// output is gzip-compressed when path ends in ".gz".  Buffers are flushed and
// the file closed before returning; the first error encountered is
// returned.
func WriteFile(ctx context.Context, path string, fn func(w io.Writer) error) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	var (
		dst io.Writer = out.Writer(ctx)
		gz  *gzip.Writer
	)
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(dst)
		dst = gz
	}
	w := bufio.NewWriter(dst)
	if err = fn(w); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if gz != nil {
		err = gz.Close()
	}
	return err
}
