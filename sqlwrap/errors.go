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
	"errors"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/sqlwrap/sqlwrap/internal/query"
	"github.com/sqlwrap/sqlwrap/internal/schema"
)

// Errors returned for invalid structures, names, filters, and sorting.
//
// Errors returned by SQLite itself are passed through; use [errors.As] with [*sqlite.Error]
// or [IsConstraintViolation] to inspect them.
var (
	// ErrInvalidName indicates a table or column name that is not a valid identifier.
	ErrInvalidName = schema.ErrInvalidName

	// ErrUnknownTable indicates a table missing from the database structure.
	ErrUnknownTable = schema.ErrUnknownTable

	// ErrUnknownColumn indicates a column missing from the table in the database structure.
	ErrUnknownColumn = schema.ErrUnknownColumn

	// ErrInvalidComparison indicates an unknown comparison operator
	// or a value that can't be used with the operator.
	ErrInvalidComparison = query.ErrInvalidComparison

	// ErrInvalidSorting indicates an unknown sorting order.
	ErrInvalidSorting = query.ErrInvalidSorting

	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("database is closed")
)

// IsConstraintViolation returns true if err is caused by a failed SQLite constraint:
// UNIQUE, PRIMARY KEY, NOT NULL, CHECK or FOREIGN KEY.
func IsConstraintViolation(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}

	// extended result codes keep the primary code in the lower 8 bits
	return e.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
}
