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

// Package fsql provides [database/sql] utilities.
package fsql

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sqlwrap/sqlwrap/internal/util/lazyerrors"
	"github.com/sqlwrap/sqlwrap/internal/util/resource"
)

// DB wraps [*database/sql.DB] with tracing, metrics, logging, and resource tracking.
//
// It exposes the subset of *sql.DB methods we use.
// Statements that return multiple rows are executed in transactions, see [Tx].
type DB struct {
	*metricsCollector

	sqlDB *sql.DB
	o     *observer
	token *resource.Token
}

// WrapDB creates a new DB.
//
// Name is used for metric label values, etc.
// Logger (that will be named) is used for query logging.
func WrapDB(db *sql.DB, name string, l *zap.Logger) *DB {
	if db == nil {
		return nil
	}

	mc := newMetricsCollector(name, db.Stats)

	res := &DB{
		metricsCollector: mc,
		sqlDB:            db,
		o: &observer{
			l: l.Named(name),
			m: mc,
		},
		token: resource.NewToken(),
	}

	resource.Track(res, res.token)

	return res
}

// Close calls [*sql.DB.Close].
func (db *DB) Close() error {
	resource.Untrack(db, db.token)
	return db.sqlDB.Close()
}

// QueryRowContext calls [*sql.DB.QueryRowContext].
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	ctx, done := db.o.start(ctx, "QueryRowContext", query, args)

	row := db.sqlDB.QueryRowContext(ctx, query, args...)

	done(nil, row.Err())

	return row
}

// BeginTx calls [*sql.DB.BeginTx].
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	sqlTx, err := db.sqlDB.BeginTx(ctx, opts)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	db.o.l.Debug("Transaction started.")

	return wrapTx(sqlTx, db.o), nil
}

// check interfaces
var (
	_ prometheus.Collector = (*DB)(nil)
)
