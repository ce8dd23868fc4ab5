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

// Package query builds SQLite statements for table management and row operations.
//
// Table and column names are expected to be validated by the schema package;
// they are interpolated into statements as is.
// Values are always passed as arguments for question-mark placeholders.
package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/sqlwrap/sqlwrap/internal/schema"
	"github.com/sqlwrap/sqlwrap/internal/util/lazyerrors"
)

// CreateTable returns CREATE TABLE statement for the given table.
//
// It does nothing if the table already exists.
func CreateTable(t *schema.Table) string {
	defs := make([]string, 0, len(t.Columns)+len(t.ForeignKeys))

	for _, c := range t.Columns {
		defs = append(defs, strings.TrimSpace(c.Name+" "+c.Type))
	}

	for _, fk := range t.ForeignKeys {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s", fk.Column, fk.References))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(defs, ", "))
}

// DropTable returns DROP TABLE statement for the given table.
//
// It does nothing if the table does not exist.
func DropTable(name string) string {
	return "DROP TABLE IF EXISTS " + name
}

// DeleteAll returns a statement that removes every row from the given table.
func DeleteAll(name string) string {
	return "DELETE FROM " + name
}

// TableExists returns a query that returns a single row if the given table exists.
func TableExists(name string) (string, []any, error) {
	q, args, err := sq.Select("name").
		From("sqlite_master").
		Where(sq.Eq{"type": "table"}).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return "", nil, lazyerrors.Error(err)
	}

	return q, args, nil
}

// Select returns SELECT DISTINCT query for the given columns of rows matching all conditions,
// ordered by sorts.
//
// Without conditions, all rows match.
func Select(table string, columns []string, conds []Condition, sorts []Sort) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, lazyerrors.New("no columns to select")
	}

	b := sq.Select(columns...).Distinct().From(table)

	for _, c := range conds {
		p, err := c.predicate()
		if err != nil {
			return "", nil, err
		}

		b = b.Where(p)
	}

	for _, s := range sorts {
		o, err := s.orderBy()
		if err != nil {
			return "", nil, err
		}

		b = b.OrderBy(o)
	}

	q, args, err := b.ToSql()
	if err != nil {
		return "", nil, lazyerrors.Error(err)
	}

	return q, args, nil
}

// Insert returns INSERT statement for a single row with the given values.
//
// Columns are sorted by name.
// If there are no values, a row with default values is inserted.
func Insert(table string, values map[string]any) (string, []any, error) {
	if len(values) == 0 {
		return "INSERT INTO " + table + " DEFAULT VALUES", nil, nil
	}

	q, args, err := sq.Insert(table).SetMap(values).ToSql()
	if err != nil {
		return "", nil, lazyerrors.Error(err)
	}

	return q, args, nil
}

// UpdateByRowID returns UPDATE statement that sets values of the row with the given rowid.
//
// Columns are sorted by name.
func UpdateByRowID(table string, values map[string]any, rowID int64) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, lazyerrors.New("no values to update")
	}

	q, args, err := sq.Update(table).SetMap(values).Where(sq.Eq{schema.RowID: rowID}).ToSql()
	if err != nil {
		return "", nil, lazyerrors.Error(err)
	}

	return q, args, nil
}

// Delete returns DELETE statement for rows matching all conditions.
//
// Without conditions, all rows match.
func Delete(table string, conds []Condition) (string, []any, error) {
	b := sq.Delete(table)

	for _, c := range conds {
		p, err := c.predicate()
		if err != nil {
			return "", nil, err
		}

		b = b.Where(p)
	}

	q, args, err := b.ToSql()
	if err != nil {
		return "", nil, lazyerrors.Error(err)
	}

	return q, args, nil
}
