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

package query

import (
	"database/sql/driver"
	"errors"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/sqlwrap/sqlwrap/internal/util/lazyerrors"
)

// Op is a comparison operator of a condition.
type Op string

// Valid comparison operators.
const (
	Eq Op = "="
	Ne Op = "!="
	Gt Op = ">"
	Ge Op = ">="
	Lt Op = "<"
	Le Op = "<="
)

// Ops lists valid comparison operators, longest first.
var Ops = []Op{Ne, Ge, Le, Eq, Gt, Lt}

// Order is a sorting order.
type Order string

// Valid sorting orders.
const (
	Asc  Order = "ASC"
	Desc Order = "DESC"
)

var (
	// ErrInvalidComparison indicates an unknown operator or a value that can't be used with the operator.
	ErrInvalidComparison = errors.New("invalid comparison")

	// ErrInvalidSorting indicates an unknown sorting order.
	ErrInvalidSorting = errors.New("invalid sorting")
)

// Condition compares a column with a value.
//
// A nil value is compared with IS NULL (Eq) or IS NOT NULL (Ne).
// A slice value (except []byte) is compared with IN (Eq) or NOT IN (Ne).
type Condition struct {
	Column string
	Op     Op
	Value  any
}

// Equality returns the condition's value if it is a plain equality (not IN) condition.
func (c Condition) Equality() (any, bool) {
	if c.Op != Eq || isList(c.Value) {
		return nil, false
	}

	return c.Value, true
}

// predicate returns squirrel predicate for the condition.
func (c Condition) predicate() (sq.Sqlizer, error) {
	list := isList(c.Value)

	switch c.Op {
	case Eq:
		return sq.Eq{c.Column: c.Value}, nil
	case Ne:
		return sq.NotEq{c.Column: c.Value}, nil
	case Gt, Ge, Lt, Le:
		if c.Value == nil || list {
			return nil, lazyerrors.Errorf(
				"%w: column %q can't be compared with %T using %q", ErrInvalidComparison, c.Column, c.Value, c.Op,
			)
		}
	default:
		return nil, lazyerrors.Errorf(
			"%w: %q (valid comparison operators are: =, !=, >, >=, <, <=)", ErrInvalidComparison, c.Op,
		)
	}

	switch c.Op {
	case Gt:
		return sq.Gt{c.Column: c.Value}, nil
	case Ge:
		return sq.GtOrEq{c.Column: c.Value}, nil
	case Lt:
		return sq.Lt{c.Column: c.Value}, nil
	default:
		return sq.LtOrEq{c.Column: c.Value}, nil
	}
}

// Sort orders results by a column.
//
// Zero Order means Asc.
type Sort struct {
	Column string
	Order  Order
}

// orderBy returns ORDER BY clause part for the sort.
func (s Sort) orderBy() (string, error) {
	o := Order(strings.ToUpper(string(s.Order)))

	switch o {
	case "":
		o = Asc
	case Asc, Desc:
	default:
		return "", lazyerrors.Errorf("%w: %q (valid sorting orders are: ASC, DESC)", ErrInvalidSorting, s.Order)
	}

	return s.Column + " " + string(o), nil
}

// isList returns true if v is a slice or array that is not a valid driver value (like []byte).
func isList(v any) bool {
	if v == nil || driver.IsValue(v) {
		return false
	}

	k := reflect.ValueOf(v).Kind()

	return k == reflect.Slice || k == reflect.Array
}
