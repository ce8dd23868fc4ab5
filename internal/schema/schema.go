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

// Package schema describes the structure of a database: its tables, their columns and foreign keys.
//
// All table and column names are validated so that they can be safely
// interpolated into SQL statements without quoting.
package schema

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/sqlwrap/sqlwrap/internal/util/lazyerrors"
)

// RowID is the name of the implicit column present in every table.
const RowID = "rowid"

// Errors returned by structure validation and lookups.
var (
	// ErrInvalidName indicates a table or column name that is not a valid identifier.
	ErrInvalidName = errors.New("invalid name")

	// ErrUnknownTable indicates a table missing from the database structure.
	ErrUnknownTable = errors.New("table is not in the database structure")

	// ErrUnknownColumn indicates a column missing from the table in the database structure.
	ErrUnknownColumn = errors.New("column is not in the table")
)

// namePattern matches names that start with a letter or underscore
// and contain only letters, digits and underscores.
var namePattern = regexp.MustCompile(`(?i)^[a-z_][a-z0-9_]*$`)

// ValidateName returns ErrInvalidName if name is not a valid table or column name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return lazyerrors.Errorf(
			"%w: %q must start with a letter or underscore and can only contain letters, numbers and underscores",
			ErrInvalidName, name,
		)
	}

	return nil
}

// Column describes a single table column.
type Column struct {
	// Column name.
	Name string `yaml:"name"`

	// Column type with constraints, as specified in CREATE TABLE statement.
	// For example: `TEXT PRIMARY KEY`, `INTEGER NOT NULL`.
	Type string `yaml:"type"`
}

// ForeignKey describes a table's foreign key constraint.
type ForeignKey struct {
	// Referencing column of this table.
	Column string `yaml:"column"`

	// Referenced table and column(s), for example: `authors(id)`.
	References string `yaml:"references"`
}

// ReferencedTable returns the name of the table referenced by the foreign key.
func (fk ForeignKey) ReferencedTable() string {
	t, _, _ := strings.Cut(fk.References, "(")
	return strings.TrimSpace(t)
}

// Table describes a single table.
type Table struct {
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys"`
}

// Validate checks that the table and column names are valid,
// and that all foreign keys reference declared columns.
func (t *Table) Validate() error {
	if err := ValidateName(t.Name); err != nil {
		return err
	}

	if len(t.Columns) == 0 {
		return lazyerrors.Errorf("table %q has no columns", t.Name)
	}

	seen := make(map[string]struct{}, len(t.Columns))

	for _, c := range t.Columns {
		if err := ValidateName(c.Name); err != nil {
			return err
		}

		n := strings.ToLower(c.Name)
		if _, ok := seen[n]; ok {
			return lazyerrors.Errorf("%w: duplicate column %q in table %q", ErrInvalidName, c.Name, t.Name)
		}

		seen[n] = struct{}{}
	}

	for _, fk := range t.ForeignKeys {
		if err := t.CheckColumn(fk.Column); err != nil {
			return err
		}

		if strings.TrimSpace(fk.References) == "" {
			return lazyerrors.Errorf("foreign key %q of table %q references nothing", fk.Column, t.Name)
		}
	}

	return nil
}

// HasColumn returns true if the table has a column with the given name (case-insensitive).
//
// The implicit rowid column is present in every table.
func (t *Table) HasColumn(name string) bool {
	if strings.EqualFold(name, RowID) {
		return true
	}

	return slices.ContainsFunc(t.Columns, func(c Column) bool {
		return strings.EqualFold(c.Name, name)
	})
}

// CheckColumn returns ErrUnknownColumn if the table does not have a column with the given name.
func (t *Table) CheckColumn(name string) error {
	if !t.HasColumn(name) {
		return lazyerrors.Errorf("%w: column %q is missing from table %q", ErrUnknownColumn, name, t.Name)
	}

	return nil
}

// ColumnNames returns declared column names in declaration order.
func (t *Table) ColumnNames() []string {
	res := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		res[i] = c.Name
	}

	return res
}

// Structure describes all tables of a database.
type Structure struct {
	// Tables in declaration order.
	Tables []*Table `yaml:"tables"`
}

// New returns a validated structure with the given tables.
func New(tables ...*Table) (*Structure, error) {
	s := &Structure{Tables: tables}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks all tables and ensures that table names are unique.
func (s *Structure) Validate() error {
	seen := make(map[string]struct{}, len(s.Tables))

	for _, t := range s.Tables {
		if t == nil {
			return lazyerrors.New("nil table in the database structure")
		}

		if err := t.Validate(); err != nil {
			return err
		}

		if _, ok := seen[t.Name]; ok {
			return lazyerrors.Errorf("%w: duplicate table %q", ErrInvalidName, t.Name)
		}

		seen[t.Name] = struct{}{}
	}

	return nil
}

// Table returns a table by name, or ErrUnknownTable.
func (s *Structure) Table(name string) (*Table, error) {
	i := slices.IndexFunc(s.Tables, func(t *Table) bool {
		return t.Name == name
	})
	if i < 0 {
		return nil, lazyerrors.Errorf("%w: %q", ErrUnknownTable, name)
	}

	return s.Tables[i], nil
}

// Names returns sorted table names.
func (s *Structure) Names() []string {
	res := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		res[i] = t.Name
	}

	slices.Sort(res)

	return res
}

// Ordered returns tables so that every referenced table precedes the tables referencing it.
// Otherwise, declaration order is kept. A reference cycle is broken at its first declared table,
// which goes after the other tables of the cycle.
//
// Tables should be created in that order and cleared or dropped in the reverse one.
func (s *Structure) Ordered() []*Table {
	const (
		visiting = iota + 1
		visited
	)

	state := make(map[*Table]int, len(s.Tables))
	res := make([]*Table, 0, len(s.Tables))

	var visit func(t *Table)
	visit = func(t *Table) {
		if state[t] != 0 {
			return
		}

		state[t] = visiting

		for _, fk := range t.ForeignKeys {
			// SQLite table names are case-insensitive
			i := slices.IndexFunc(s.Tables, func(r *Table) bool {
				return strings.EqualFold(r.Name, fk.ReferencedTable())
			})
			if i >= 0 {
				visit(s.Tables[i])
			}
		}

		state[t] = visited
		res = append(res, t)
	}

	for _, t := range s.Tables {
		visit(t)
	}

	return res
}
