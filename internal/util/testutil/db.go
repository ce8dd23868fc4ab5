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

package testutil

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// nonWord matches characters that are not valid in file names on all platforms.
var nonWord = regexp.MustCompile(`\W`)

// DatabasePath returns a path to the database file in the test's temporary directory.
//
// The file does not exist yet; it is removed together with the directory when test finishes.
func DatabasePath(tb testing.TB) string {
	tb.Helper()

	name := strings.ToLower(nonWord.ReplaceAllString(tb.Name(), "_"))

	return filepath.Join(tb.TempDir(), name+".db")
}
