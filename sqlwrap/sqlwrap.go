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

// Package sqlwrap provides a convenience wrapper around an embedded SQLite database.
//
// Tables are created from a declared [Structure].
// Rows are inserted, updated, retrieved and deleted using maps of column names to values;
// all SQL statements are built by the package and executed with parameters.
//
// All changes are accumulated in a single pending transaction that is started by the first statement.
// They are saved by [Database.Commit]; [Database.Close] discards uncommitted changes.
package sqlwrap

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register database/sql driver

	"github.com/sqlwrap/sqlwrap/internal/util/fsql"
	"github.com/sqlwrap/sqlwrap/internal/util/lazyerrors"
	"github.com/sqlwrap/sqlwrap/internal/util/resource"
)

// memory is the special database path for an in-memory database.
const memory = ":memory:"

// OpenParams represents parameters of [Open].
type OpenParams struct {
	// Database file path, `file:` URI, or ":memory:".
	// The file is created if it does not exist (unless ReadOnly is set).
	Path string

	// Database structure. It is validated by Open.
	Structure *Structure

	// Logger for statements and events. If nil, nothing is logged.
	Logger *zap.Logger

	// Enforce foreign key constraints.
	ForeignKeys bool

	// Open the database in read-only mode.
	ReadOnly bool
}

// Database represents an open SQLite database with a declared structure.
//
// Its methods are safe for concurrent use, but statements are executed one at a time
// over a single connection.
//
//nolint:vet // for readability
type Database struct {
	s  *Structure
	db *fsql.DB
	l  *zap.Logger

	m      sync.Mutex
	tx     *fsql.Tx // pending transaction or nil
	closed bool

	token *resource.Token
}

// Open opens the database file and validates the structure.
//
// Tables are not created automatically; see [Database.CreateTable] and [Database.CreateAllTables].
func Open(ctx context.Context, params *OpenParams) (*Database, error) {
	if params.Structure == nil {
		return nil, lazyerrors.New("no database structure")
	}

	if err := params.Structure.Validate(); err != nil {
		return nil, err
	}

	dsn, err := dataSourceName(params)
	if err != nil {
		return nil, err
	}

	l := params.Logger
	if l == nil {
		l = zap.NewNop()
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	sqlDB.SetConnMaxIdleTime(0)
	sqlDB.SetConnMaxLifetime(0)

	// a single connection holds the pending transaction and the in-memory database (if any)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, lazyerrors.Errorf("%s: %w", params.Path, err)
	}

	d := &Database{
		s:     params.Structure,
		db:    fsql.WrapDB(sqlDB, "sqlite", l),
		l:     l,
		token: resource.NewToken(),
	}

	resource.Track(d, d.token)

	var version string
	if err = d.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		l.Warn("Failed to query SQLite version.", zap.Error(err))
	}

	l.Debug(
		"Database opened.",
		zap.String("path", params.Path), zap.String("dsn", dsn), zap.String("sqlite", version),
		zap.Strings("tables", params.Structure.Names()),
	)

	return d, nil
}

// dataSourceName returns SQLite URI for the given parameters.
func dataSourceName(params *OpenParams) (string, error) {
	p := params.Path
	if p == "" {
		return "", lazyerrors.New("no database path")
	}

	var u *url.URL

	switch {
	case p == memory:
		u = &url.URL{Scheme: "file", Opaque: memory}

	case strings.HasPrefix(p, "file:"):
		var err error
		if u, err = url.Parse(p); err != nil {
			return "", lazyerrors.Errorf("invalid SQLite URI %q: %w", p, err)
		}

		if u.Opaque == "" {
			u.Opaque = u.Path
		}

	default:
		u = &url.URL{Scheme: "file", Opaque: p}
	}

	q := u.Query()

	if params.ForeignKeys {
		q.Add("_pragma", "foreign_keys(1)")
	}

	if params.ReadOnly {
		q.Set("mode", "ro")
	}

	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Structure returns the database structure.
func (d *Database) Structure() *Structure {
	return d.s
}

// Commit saves all changes made since the last commit or rollback.
//
// It does nothing if there are no pending changes.
func (d *Database) Commit() error {
	d.m.Lock()
	defer d.m.Unlock()

	if d.closed {
		return ErrClosed
	}

	if d.tx == nil {
		return nil
	}

	tx := d.tx
	d.tx = nil

	if err := tx.Commit(); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Rollback discards all changes made since the last commit or rollback.
//
// It does nothing if there are no pending changes.
func (d *Database) Rollback() error {
	d.m.Lock()
	defer d.m.Unlock()

	if d.closed {
		return ErrClosed
	}

	return d.rollback()
}

// rollback discards the pending transaction, if any.
//
// It should be called with the mutex held.
func (d *Database) rollback() error {
	if d.tx == nil {
		return nil
	}

	tx := d.tx
	d.tx = nil

	if err := tx.Rollback(); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// Close discards uncommitted changes and closes the database.
//
// It is safe to call Close multiple times.
func (d *Database) Close() error {
	d.m.Lock()
	defer d.m.Unlock()

	if d.closed {
		return nil
	}

	d.closed = true
	resource.Untrack(d, d.token)

	if d.tx != nil {
		d.l.Debug("Discarding uncommitted changes.")
	}

	rbErr := d.rollback()

	if err := d.db.Close(); err != nil {
		return lazyerrors.Error(err)
	}

	if rbErr != nil {
		return rbErr
	}

	d.l.Debug("Database closed.")

	return nil
}

// begin returns the pending transaction, starting a new one if needed.
//
// It should be called with the mutex held.
func (d *Database) begin(ctx context.Context) (*fsql.Tx, error) {
	if d.closed {
		return nil, ErrClosed
	}

	if d.tx != nil {
		return d.tx, nil
	}

	// the transaction outlives the call that started it
	tx, err := d.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	d.tx = tx

	return tx, nil
}

// exec executes a statement in the pending transaction.
func (d *Database) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	d.m.Lock()
	defer d.m.Unlock()

	return d.execLocked(ctx, q, args...)
}

// execLocked is exec that should be called with the mutex held.
func (d *Database) execLocked(ctx context.Context, q string, args ...any) (sql.Result, error) {
	tx, err := d.begin(ctx)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// query executes a query in the pending transaction
// and returns all rows as maps from the given column names to values.
func (d *Database) query(ctx context.Context, columns []string, q string, args ...any) ([]Row, error) {
	d.m.Lock()
	defer d.m.Unlock()

	return d.queryLocked(ctx, columns, q, args...)
}

// queryLocked is query that should be called with the mutex held.
func (d *Database) queryLocked(ctx context.Context, columns []string, q string, args ...any) ([]Row, error) {
	tx, err := d.begin(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	defer rows.Close() //nolint:errcheck // error is checked by rows.Err below

	actual, err := rows.Columns()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if len(actual) != len(columns) {
		return nil, lazyerrors.Errorf("expected columns %q, got %q", columns, actual)
	}

	var res []Row

	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))

		for i := range values {
			dest[i] = &values[i]
		}

		if err = rows.Scan(dest...); err != nil {
			return nil, lazyerrors.Error(err)
		}

		row := make(Row, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}

		res = append(res, row)
	}

	if err = rows.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// Describe implements prometheus.Collector.
func (d *Database) Describe(ch chan<- *prometheus.Desc) {
	d.db.Describe(ch)
}

// Collect implements prometheus.Collector.
func (d *Database) Collect(ch chan<- prometheus.Metric) {
	d.db.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Database)(nil)
)
