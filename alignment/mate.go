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

// Package alignment holds the aligner's reports for a read set: SAM text
// records grouped per mate-qualified read, the loader that reconstructs
// secondary alignments and filters out unusable ones, and the writer for
// resolved output.
package alignment

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Mate identifies which end of a read pair a record belongs to.
type Mate uint8

const (
	// Unpaired is used for reads loaded from a single alignment file.
	Unpaired Mate = iota
	// Mate1 is the first read of a pair.
	Mate1
	// Mate2 is the second read of a pair.
	Mate2
)

// Other returns the opposite mate.  Unpaired has no opposite.
func (m Mate) Other() Mate {
	switch m {
	case Mate1:
		return Mate2
	case Mate2:
		return Mate1
	}
	return Unpaired
}

func (m Mate) String() string {
	switch m {
	case Mate1:
		return "1"
	case Mate2:
		return "2"
	}
	return ""
}

// ReadKey identifies one read: the template name plus the mate.
type ReadKey struct {
	Name string
	Mate Mate
}

// String returns the conventional "name/1" rendering.
func (k ReadKey) String() string {
	if k.Mate == Unpaired {
		return k.Name
	}
	return k.Name + "/" + k.Mate.String()
}

// Less orders keys by name, then mate.
func (k ReadKey) Less(o ReadKey) bool {
	if k.Name != o.Name {
		return k.Name < o.Name
	}
	return k.Mate < o.Mate
}

// ParseReadKey builds the key of a read named qname found in the file for
// the given mate.  A trailing "/1" or "/2" is stripped, and must agree with
// mate.  Unpaired names are used as they are.
func ParseReadKey(qname string, mate Mate) (ReadKey, error) {
	if mate == Unpaired {
		return ReadKey{Name: qname}, nil
	}
	n := len(qname)
	if n > 2 && qname[n-2] == '/' && (qname[n-1] == '1' || qname[n-1] == '2') {
		if got := Mate(qname[n-1] - '0'); got != mate {
			return ReadKey{}, errors.E(errors.Precondition,
				fmt.Sprintf("read %s: expected mate suffix /%v in this file", qname, mate))
		}
		qname = qname[:n-2]
	}
	return ReadKey{Name: qname, Mate: mate}, nil
}
