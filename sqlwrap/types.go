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

package sqlwrap

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/sqlwrap/sqlwrap/internal/query"
	"github.com/sqlwrap/sqlwrap/internal/schema"
)

// Structure describes all tables of a database.
type Structure = schema.Structure

// Table describes a single table.
type Table = schema.Table

// Column describes a single table column.
type Column = schema.Column

// ForeignKey describes a table's foreign key constraint.
type ForeignKey = schema.ForeignKey

// NewStructure returns a validated structure with the given tables.
func NewStructure(tables ...*Table) (*Structure, error) {
	return schema.New(tables...)
}

// LoadStructureFile reads and validates a structure from the YAML file.
func LoadStructureFile(path string) (*Structure, error) {
	return schema.LoadFile(path)
}

// RowID is the name of the implicit column present in every table.
const RowID = schema.RowID

// Row maps column names to values.
type Row map[string]any

// Op is a comparison operator.
type Op = query.Op

// Comparison operators.
const (
	Eq = query.Eq // equal
	Ne = query.Ne // not equal
	Gt = query.Gt // greater than
	Ge = query.Ge // greater than or equal
	Lt = query.Lt // less than
	Le = query.Le // less than or equal
)

// Ops lists valid comparison operators, two-character ones first.
var Ops = slices.Clone(query.Ops)

// Order is a sorting order.
type Order = query.Order

// Sorting orders.
const (
	Asc  = query.Asc
	Desc = query.Desc
)

// Sort orders results by a column; zero Order means Asc.
type Sort = query.Sort

// Cond compares a column with a value using a specific operator.
type Cond struct {
	Op    Op
	Value any
}

// Compare returns a filter condition for the operator and value.
func Compare(op Op, value any) Cond {
	return Cond{Op: op, Value: value}
}

// Filter maps column names to values or [Cond] conditions. All conditions must match.
//
// A plain value is compared for equality.
// A nil value matches NULL with Eq and non-NULL with Ne.
// A slice value (except []byte) matches any of its elements with Eq and none of them with Ne.
//
// An empty filter matches every row.
type Filter map[string]any

// conditions validates the filter against the table and returns its conditions sorted by column.
func (f Filter) conditions(t *Table) ([]query.Condition, error) {
	columns := maps.Keys(f)
	slices.Sort(columns)

	res := make([]query.Condition, 0, len(columns))

	for _, col := range columns {
		if err := t.CheckColumn(col); err != nil {
			return nil, err
		}

		c := query.Condition{Column: col, Op: Eq, Value: f[col]}

		if cond, ok := f[col].(Cond); ok {
			c.Op = cond.Op
			c.Value = cond.Value
		}

		res = append(res, c)
	}

	return res, nil
}

// GetParams represents optional parameters of [Database.GetAll] and [Database.Get].
type GetParams struct {
	// Columns to return. Duplicates are ignored.
	// If empty, all declared columns are returned.
	Columns []string

	// Results order.
	Sort []Sort
}

// columns validates and returns requested columns.
func (p *GetParams) columns(t *Table) ([]string, error) {
	if p == nil || len(p.Columns) == 0 {
		return t.ColumnNames(), nil
	}

	res := make([]string, 0, len(p.Columns))

	for _, c := range p.Columns {
		if err := t.CheckColumn(c); err != nil {
			return nil, err
		}

		if !slices.Contains(res, c) {
			res = append(res, c)
		}
	}

	return res, nil
}

// sorts validates and returns requested sorting.
func (p *GetParams) sorts(t *Table) ([]Sort, error) {
	if p == nil {
		return nil, nil
	}

	for _, s := range p.Sort {
		if err := t.CheckColumn(s.Column); err != nil {
			return nil, err
		}
	}

	return p.Sort, nil
}

// hasKey returns true if the row has the given column (case-insensitive).
func (r Row) hasKey(column string) bool {
	for k := range r {
		if strings.EqualFold(k, column) {
			return true
		}
	}

	return false
}
