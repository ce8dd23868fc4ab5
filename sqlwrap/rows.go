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

	"github.com/sqlwrap/sqlwrap/internal/query"
	"github.com/sqlwrap/sqlwrap/internal/util/lazyerrors"
)

// GetAll returns all distinct rows of the table that match the filter.
//
// Params may be nil; see [GetParams].
func (d *Database) GetAll(ctx context.Context, table string, filter Filter, params *GetParams) ([]Row, error) {
	t, err := d.s.Table(table)
	if err != nil {
		return nil, err
	}

	conds, err := filter.conditions(t)
	if err != nil {
		return nil, err
	}

	columns, err := params.columns(t)
	if err != nil {
		return nil, err
	}

	sorts, err := params.sorts(t)
	if err != nil {
		return nil, err
	}

	q, args, err := query.Select(t.Name, columns, conds, sorts)
	if err != nil {
		return nil, err
	}

	return d.query(ctx, columns, q, args...)
}

// Get returns the first row of the table that matches the filter, or nil if there is none.
//
// Params may be nil; see [GetParams].
func (d *Database) Get(ctx context.Context, table string, filter Filter, params *GetParams) (Row, error) {
	rows, err := d.GetAll(ctx, table, filter, params)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return rows[0], nil
}

// Put updates the first row of the table that matches the filter, or inserts a new row if there is none.
//
// Both updated and inserted rows get the given values together with the filter's plain equality values
// (for columns not present in values).
// An empty filter never matches, so a new row is always inserted.
//
// It returns the rowid of the updated or inserted row.
func (d *Database) Put(ctx context.Context, table string, filter Filter, values Row) (int64, error) {
	return d.put(ctx, table, filter, values, false)
}

// Upsert is an alias for [Database.Put].
func (d *Database) Upsert(ctx context.Context, table string, filter Filter, values Row) (int64, error) {
	return d.put(ctx, table, filter, values, false)
}

// Post inserts a new row with the given values and returns its rowid.
func (d *Database) Post(ctx context.Context, table string, values Row) (int64, error) {
	return d.put(ctx, table, nil, values, true)
}

// Insert is an alias for [Database.Post].
func (d *Database) Insert(ctx context.Context, table string, values Row) (int64, error) {
	return d.put(ctx, table, nil, values, true)
}

// put implements Put and Post.
func (d *Database) put(ctx context.Context, table string, filter Filter, values Row, insert bool) (int64, error) {
	t, err := d.s.Table(table)
	if err != nil {
		return 0, err
	}

	conds, err := filter.conditions(t)
	if err != nil {
		return 0, err
	}

	merged := make(Row, len(values)+len(conds))

	for col, v := range values {
		if err = t.CheckColumn(col); err != nil {
			return 0, err
		}

		merged[col] = v
	}

	for _, c := range conds {
		v, ok := c.Equality()
		if !ok || merged.hasKey(c.Column) {
			continue
		}

		merged[c.Column] = v
	}

	// lookup and update or insert must not interleave with other calls
	d.m.Lock()
	defer d.m.Unlock()

	if !insert && len(conds) > 0 {
		var q string
		var args []any

		if q, args, err = query.Select(t.Name, []string{RowID}, conds, nil); err != nil {
			return 0, err
		}

		var rows []Row

		if rows, err = d.queryLocked(ctx, []string{RowID}, q, args...); err != nil {
			return 0, err
		}

		if len(rows) > 0 {
			rowID, ok := rows[0][RowID].(int64)
			if !ok {
				return 0, lazyerrors.Errorf("unexpected rowid %[1]v (%[1]T)", rows[0][RowID])
			}

			if len(merged) == 0 {
				return rowID, nil
			}

			if q, args, err = query.UpdateByRowID(t.Name, merged, rowID); err != nil {
				return 0, err
			}

			if _, err = d.execLocked(ctx, q, args...); err != nil {
				return 0, err
			}

			return rowID, nil
		}
	}

	q, args, err := query.Insert(t.Name, merged)
	if err != nil {
		return 0, err
	}

	res, err := d.execLocked(ctx, q, args...)
	if err != nil {
		return 0, err
	}

	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	return rowID, nil
}

// Delete removes all rows of the table that match the filter and returns their number.
//
// An empty filter matches every row.
func (d *Database) Delete(ctx context.Context, table string, filter Filter) (int64, error) {
	t, err := d.s.Table(table)
	if err != nil {
		return 0, err
	}

	conds, err := filter.conditions(t)
	if err != nil {
		return 0, err
	}

	q, args, err := query.Delete(t.Name, conds)
	if err != nil {
		return 0, err
	}

	res, err := d.exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	return n, nil
}
