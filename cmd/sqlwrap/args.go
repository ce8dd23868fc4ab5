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

package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sqlwrap/sqlwrap/sqlwrap"
)

// null is the argument value that means SQL NULL.
const null = "NULL"

// quote encloses an argument value that is always passed as text.
const quote = "'"

// parseValue converts an argument value to an integer, a finite float, nil, or a string.
//
// A value enclosed in single quotes is passed as a string without them,
// so '007' keeps leading zeros and 'NULL' is text.
func parseValue(s string) any {
	if len(s) >= 2 && strings.HasPrefix(s, quote) && strings.HasSuffix(s, quote) {
		return s[1 : len(s)-1]
	}

	if s == null {
		return nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}

	return s
}

// parseFilter parses `column<op>value` arguments.
func parseFilter(args []string) (sqlwrap.Filter, error) {
	res := make(sqlwrap.Filter, len(args))

	for _, arg := range args {
		i := strings.IndexAny(arg, "=!<>")
		if i <= 0 {
			return nil, fmt.Errorf("invalid filter %q: expected column<op>value", arg)
		}

		col, rest := arg[:i], arg[i:]

		var op sqlwrap.Op

		// two-character operators go first
		for _, o := range sqlwrap.Ops {
			if strings.HasPrefix(rest, string(o)) {
				op = o
				break
			}
		}

		if op == "" {
			return nil, fmt.Errorf("invalid filter %q: unknown operator", arg)
		}

		if _, ok := res[col]; ok {
			return nil, fmt.Errorf("invalid filter %q: duplicate column %q", arg, col)
		}

		v := parseValue(rest[len(op):])

		if op == sqlwrap.Eq {
			res[col] = v
			continue
		}

		res[col] = sqlwrap.Compare(op, v)
	}

	return res, nil
}

// parseValues parses `column=value` arguments.
func parseValues(args []string) (sqlwrap.Row, error) {
	res := make(sqlwrap.Row, len(args))

	for _, arg := range args {
		col, v, ok := strings.Cut(arg, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid value %q: expected column=value", arg)
		}

		if _, ok := res[col]; ok {
			return nil, fmt.Errorf("invalid value %q: duplicate column %q", arg, col)
		}

		res[col] = parseValue(v)
	}

	return res, nil
}

// parseSorts parses `column[:asc|:desc]` arguments.
func parseSorts(args []string) []sqlwrap.Sort {
	res := make([]sqlwrap.Sort, len(args))

	for i, arg := range args {
		col, order, _ := strings.Cut(arg, ":")
		res[i] = sqlwrap.Sort{Column: col, Order: sqlwrap.Order(strings.ToUpper(order))}
	}

	return res
}
