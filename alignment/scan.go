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

package alignment

import (
	"bufio"
	"context"
	"fmt"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Long reads with long tag sets can exceed bufio's default token size.
const maxLineSize = 64 << 20

// ScanLines calls fn for each line of the (optionally compressed) SAM text
// file at path.  Errors returned by fn are annotated with the path, line
// number and line content.
func ScanLines(ctx context.Context, path string, fn func(line string) error) (err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(nil, maxLineSize)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if err = fn(line); err != nil {
			return errors.E(fmt.Sprintf("%s:%d: %q", path, lineno, line), err)
		}
	}
	if err = scanner.Err(); err != nil {
		return errors.E(fmt.Sprintf("read %s", path), err)
	}
	return nil
}

// IsHeader reports whether a SAM text line is a header line.
func IsHeader(line string) bool { return line[0] == '@' }
