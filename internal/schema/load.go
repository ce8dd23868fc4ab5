// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package schema

import (
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sqlwrap/sqlwrap/internal/util/lazyerrors"
)

// Load reads and validates a structure in YAML format:
//
//	tables:
//	  - name: books
//	    columns:
//	      - {name: title, type: TEXT PRIMARY KEY}
//	      - {name: author, type: INTEGER}
//	    foreign_keys:
//	      - {column: author, references: authors(id)}
func Load(r io.Reader) (*Structure, error) {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)

	var s Structure
	if err := d.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, lazyerrors.Error(err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

// LoadFile reads and validates a structure from the YAML file.
func LoadFile(path string) (*Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	defer f.Close() //nolint:errcheck // read-only file

	return Load(f)
}
