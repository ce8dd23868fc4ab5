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
	"context"
	"database/sql"
	"errors"

	"github.com/sqlwrap/sqlwrap/internal/query"
	"github.com/sqlwrap/sqlwrap/internal/util/lazyerrors"
)

// CreateTable creates the table from the database structure if it does not already exist.
func (d *Database) CreateTable(ctx context.Context, table string) error {
	t, err := d.s.Table(table)
	if err != nil {
		return err
	}

	_, err = d.exec(ctx, query.CreateTable(t))

	return err
}

// CreateAllTables creates all tables from the database structure,
// referenced tables before the tables referencing them.
func (d *Database) CreateAllTables(ctx context.Context) error {
	for _, t := range d.s.Ordered() {
		if err := d.CreateTable(ctx, t.Name); err != nil {
			return err
		}
	}

	return nil
}

// DropTable removes the table if it exists.
func (d *Database) DropTable(ctx context.Context, table string) error {
	t, err := d.s.Table(table)
	if err != nil {
		return err
	}

	_, err = d.exec(ctx, query.DropTable(t.Name))

	return err
}

// DropAllTables removes all tables of the database structure,
// referencing tables before the tables they reference.
func (d *Database) DropAllTables(ctx context.Context) error {
	tables := d.s.Ordered()

	for i := len(tables) - 1; i >= 0; i-- {
		if err := d.DropTable(ctx, tables[i].Name); err != nil {
			return err
		}
	}

	return nil
}

// ResetTable removes every row from the table.
func (d *Database) ResetTable(ctx context.Context, table string) error {
	t, err := d.s.Table(table)
	if err != nil {
		return err
	}

	_, err = d.exec(ctx, query.DeleteAll(t.Name))

	return err
}

// ResetAllTables removes every row from all tables of the database structure,
// referencing tables before the tables they reference.
func (d *Database) ResetAllTables(ctx context.Context) error {
	tables := d.s.Ordered()

	for i := len(tables) - 1; i >= 0; i-- {
		if err := d.ResetTable(ctx, tables[i].Name); err != nil {
			return err
		}
	}

	return nil
}

// TableExists returns true if the table exists in the database.
//
// The table must be declared in the database structure.
func (d *Database) TableExists(ctx context.Context, table string) (bool, error) {
	t, err := d.s.Table(table)
	if err != nil {
		return false, err
	}

	q, args, err := query.TableExists(t.Name)
	if err != nil {
		return false, lazyerrors.Error(err)
	}

	d.m.Lock()
	defer d.m.Unlock()

	tx, err := d.begin(ctx)
	if err != nil {
		return false, err
	}

	var name string

	switch err = tx.QueryRowContext(ctx, q, args...).Scan(&name); {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, lazyerrors.Error(err)
	}
}
