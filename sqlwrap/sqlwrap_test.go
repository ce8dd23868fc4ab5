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
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlwrap/sqlwrap/internal/util/testutil"
)

// testStructure returns a structure with two related tables.
func testStructure(t testing.TB) *Structure {
	t.Helper()

	s, err := NewStructure(
		&Table{
			Name: "books",
			Columns: []Column{
				{Name: "title", Type: "TEXT UNIQUE PRIMARY KEY"},
				{Name: "pages", Type: "INTEGER"},
				{Name: "author", Type: "INTEGER"},
			},
			ForeignKeys: []ForeignKey{
				{Column: "author", References: "authors(id)"},
			},
		},
		&Table{
			Name: "authors",
			Columns: []Column{
				{Name: "id", Type: "INTEGER PRIMARY KEY AUTOINCREMENT"},
				{Name: "name", Type: "TEXT"},
			},
		},
	)
	require.NoError(t, err)

	return s
}

// setup opens a new database with all tables created.
//
// Zero params fields are filled with test defaults.
func setup(t testing.TB, params *OpenParams) *Database {
	t.Helper()

	if params == nil {
		params = new(OpenParams)
	}

	if params.Path == "" {
		params.Path = testutil.DatabasePath(t)
	}

	if params.Structure == nil {
		params.Structure = testStructure(t)
	}

	if params.Logger == nil {
		params.Logger = testutil.Logger(t)
	}

	ctx := testutil.Ctx(t)

	d, err := Open(ctx, params)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, d.Close())
	})

	require.NoError(t, d.CreateAllTables(ctx))

	return d
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)

	t.Run("Invalid", func(t *testing.T) {
		t.Parallel()

		_, err := Open(ctx, &OpenParams{Path: testutil.DatabasePath(t)})
		require.ErrorContains(t, err, "no database structure")

		_, err = Open(ctx, &OpenParams{Structure: testStructure(t)})
		require.ErrorContains(t, err, "no database path")

		s := &Structure{Tables: []*Table{{Name: "bad name", Columns: []Column{{Name: "x"}}}}}
		_, err = Open(ctx, &OpenParams{Path: testutil.DatabasePath(t), Structure: s})
		require.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("CreatesFile", func(t *testing.T) {
		t.Parallel()

		path := testutil.DatabasePath(t)

		d, err := Open(ctx, &OpenParams{Path: path, Structure: testStructure(t)})
		require.NoError(t, err)
		require.NoError(t, d.Close())

		_, err = os.Stat(path)
		require.NoError(t, err)

		// second call is a no-op
		require.NoError(t, d.Close())
	})

	t.Run("ReadOnlyMissing", func(t *testing.T) {
		t.Parallel()

		_, err := Open(ctx, &OpenParams{Path: testutil.DatabasePath(t), Structure: testStructure(t), ReadOnly: true})
		require.Error(t, err)
	})

	t.Run("Memory", func(t *testing.T) {
		t.Parallel()

		d := setup(t, &OpenParams{Path: ":memory:"})

		exists, err := d.TableExists(ctx, "books")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestDataSourceName(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		params   OpenParams
		expected string
	}{
		"Path": {
			params:   OpenParams{Path: "data/test.db"},
			expected: "file:data/test.db",
		},
		"Memory": {
			params:   OpenParams{Path: ":memory:", ForeignKeys: true},
			expected: "file::memory:?_pragma=foreign_keys%281%29",
		},
		"URI": {
			params:   OpenParams{Path: "file:///tmp/test.db?cache=shared", ReadOnly: true},
			expected: "file:/tmp/test.db?cache=shared&mode=ro",
		},
		"OpaqueURI": {
			params:   OpenParams{Path: "file:test.db"},
			expected: "file:test.db",
		},
	} {
		name, tc := name, tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			actual, err := dataSourceName(&tc.params)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestTables(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	d := setup(t, nil)

	for _, table := range []string{"books", "authors"} {
		exists, err := d.TableExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	// tables are created only if they don't exist
	require.NoError(t, d.CreateTable(ctx, "books"))

	require.NoError(t, d.DropTable(ctx, "books"))

	exists, err := d.TableExists(ctx, "books")
	require.NoError(t, err)
	assert.False(t, exists)

	// dropping is a no-op for missing tables
	require.NoError(t, d.DropTable(ctx, "books"))

	require.NoError(t, d.DropAllTables(ctx))

	exists, err = d.TableExists(ctx, "authors")
	require.NoError(t, err)
	assert.False(t, exists)

	// missing table
	err = d.ResetTable(ctx, "authors")
	require.ErrorContains(t, err, "no such table: authors")

	// undeclared table
	for _, err := range []error{
		d.CreateTable(ctx, "readers"),
		d.DropTable(ctx, "readers"),
		d.ResetTable(ctx, "readers"),
	} {
		assert.ErrorIs(t, err, ErrUnknownTable)
	}

	_, err = d.TableExists(ctx, "readers")
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	d := setup(t, nil)

	id, err := d.Post(ctx, "books", Row{"title": "Dune", "pages": 412})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = d.Insert(ctx, "books", Row{"title": "Emma", "pages": 474})
	require.NoError(t, err)

	row, err := d.Get(ctx, "books", Filter{"title": "Dune", "pages": 412}, nil)
	require.NoError(t, err)
	assert.Equal(t, Row{"title": "Dune", "pages": int64(412), "author": nil}, row)

	row, err = d.Get(ctx, "books", Filter{"title": "Ulysses"}, nil)
	require.NoError(t, err)
	assert.Nil(t, row)

	rows, err := d.GetAll(ctx, "books", Filter{"author": nil}, &GetParams{
		Columns: []string{"title", "rowid", "title"},
		Sort:    []Sort{{Column: "pages", Order: Desc}},
	})
	require.NoError(t, err)

	expected := []Row{
		{"title": "Emma", "rowid": int64(2)},
		{"title": "Dune", "rowid": int64(1)},
	}
	assert.Equal(t, expected, rows)

	rows, err = d.GetAll(ctx, "books", nil, &GetParams{Columns: []string{"title"}, Sort: []Sort{{Column: "title"}}})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"title": "Dune"}, {"title": "Emma"}}, rows)
}

func TestFilter(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	d := setup(t, nil)

	for i, title := range []string{"A", "B", "C", "D"} {
		_, err := d.Post(ctx, "books", Row{"title": title, "pages": (i + 1) * 100})
		require.NoError(t, err)
	}

	_, err := d.Post(ctx, "books", Row{"title": "E"})
	require.NoError(t, err)

	titles := func(t *testing.T, f Filter) []string {
		t.Helper()

		rows, err := d.GetAll(ctx, "books", f, &GetParams{Columns: []string{"title"}, Sort: []Sort{{Column: "title"}}})
		require.NoError(t, err)

		res := make([]string, len(rows))
		for i, r := range rows {
			res[i] = r["title"].(string)
		}

		return res
	}

	for name, tc := range map[string]struct {
		filter   Filter
		expected []string
	}{
		"Eq":       {Filter{"pages": 200}, []string{"B"}},
		"EqCond":   {Filter{"pages": Compare(Eq, 200)}, []string{"B"}},
		"Ne":       {Filter{"pages": Compare(Ne, 200)}, []string{"A", "C", "D"}},
		"Gt":       {Filter{"pages": Compare(Gt, 200)}, []string{"C", "D"}},
		"Ge":       {Filter{"pages": Compare(Ge, 200)}, []string{"B", "C", "D"}},
		"Lt":       {Filter{"pages": Compare(Lt, 200)}, []string{"A"}},
		"Le":       {Filter{"pages": Compare(Le, 200)}, []string{"A", "B"}},
		"Null":     {Filter{"pages": nil}, []string{"E"}},
		"NotNull":  {Filter{"pages": Compare(Ne, nil)}, []string{"A", "B", "C", "D"}},
		"In":       {Filter{"pages": []int{100, 400}}, []string{"A", "D"}},
		"NotIn":    {Filter{"pages": Compare(Ne, []int{100, 400})}, []string{"B", "C"}},
		"Combined": {Filter{"pages": Compare(Gt, 100), "title": Compare(Lt, "D")}, []string{"B", "C"}},
		"Empty":    {Filter{}, []string{"A", "B", "C", "D", "E"}},
		"NoMatch":  {Filter{"title": "Z"}, []string{}},
	} {
		name, tc := name, tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, titles(t, tc.filter))
		})
	}

	t.Run("Errors", func(t *testing.T) {
		t.Parallel()

		_, err := d.GetAll(ctx, "books", Filter{"isbn": "123"}, nil)
		assert.ErrorIs(t, err, ErrUnknownColumn)

		_, err = d.GetAll(ctx, "books", Filter{"pages": Compare("LIKE", "1%")}, nil)
		assert.ErrorIs(t, err, ErrInvalidComparison)

		_, err = d.GetAll(ctx, "books", Filter{"pages": Compare(Gt, nil)}, nil)
		assert.ErrorIs(t, err, ErrInvalidComparison)

		_, err = d.GetAll(ctx, "books", nil, &GetParams{Columns: []string{"isbn"}})
		assert.ErrorIs(t, err, ErrUnknownColumn)

		_, err = d.GetAll(ctx, "books", nil, &GetParams{Sort: []Sort{{Column: "isbn"}}})
		assert.ErrorIs(t, err, ErrUnknownColumn)

		_, err = d.GetAll(ctx, "books", nil, &GetParams{Sort: []Sort{{Column: "pages", Order: "UP"}}})
		assert.ErrorIs(t, err, ErrInvalidSorting)

		_, err = d.Get(ctx, "readers", nil, nil)
		assert.ErrorIs(t, err, ErrUnknownTable)
	})
}

func TestDistinct(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	d := setup(t, nil)

	for _, name := range []string{"Bob", "Bob", "Alice", "Bob"} {
		_, err := d.Post(ctx, "authors", Row{"name": name})
		require.NoError(t, err)
	}

	rows, err := d.GetAll(ctx, "authors", nil, &GetParams{Columns: []string{"name"}, Sort: []Sort{{Column: "name"}}})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"name": "Alice"}, {"name": "Bob"}}, rows)

	// rows with different ids are different
	rows, err = d.GetAll(ctx, "authors", Filter{"name": "Bob"}, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestPut(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	d := setup(t, nil)

	inserted, err := d.Put(ctx, "books", Filter{"title": "Dune"}, Row{"pages": 412})
	require.NoError(t, err)

	updated, err := d.Upsert(ctx, "books", Filter{"title": "Dune"}, Row{"pages": 500})
	require.NoError(t, err)
	assert.Equal(t, inserted, updated)

	rows, err := d.GetAll(ctx, "books", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"title": "Dune", "pages": int64(500), "author": nil}}, rows)

	t.Run("ChangeKey", func(t *testing.T) {
		id, err := d.Put(ctx, "books", Filter{"title": "Dune", "pages": 500}, Row{"title": "Dune Messiah", "pages": 256})
		require.NoError(t, err)
		assert.Equal(t, inserted, id)

		row, err := d.Get(ctx, "books", Filter{"rowid": id}, &GetParams{Columns: []string{"title", "pages"}})
		require.NoError(t, err)
		assert.Equal(t, Row{"title": "Dune Messiah", "pages": int64(256)}, row)
	})

	t.Run("ComparisonNotMerged", func(t *testing.T) {
		id, err := d.Put(ctx, "books", Filter{"title": "Emma", "pages": Compare(Gt, 1000)}, Row{"author": nil})
		require.NoError(t, err)

		row, err := d.Get(ctx, "books", Filter{"rowid": id}, nil)
		require.NoError(t, err)
		assert.Equal(t, Row{"title": "Emma", "pages": nil, "author": nil}, row)
	})

	t.Run("NoValues", func(t *testing.T) {
		id, err := d.Put(ctx, "books", Filter{"title": "Emma"}, nil)
		require.NoError(t, err)

		row, err := d.Get(ctx, "books", Filter{"title": "Emma"}, &GetParams{Columns: []string{"rowid"}})
		require.NoError(t, err)
		assert.Equal(t, row["rowid"], id)
	})

	t.Run("EmptyFilterInserts", func(t *testing.T) {
		_, err := d.Put(ctx, "authors", nil, Row{"name": "Bob"})
		require.NoError(t, err)

		_, err = d.Put(ctx, "authors", Filter{}, Row{"name": "Bob"})
		require.NoError(t, err)

		rows, err := d.GetAll(ctx, "authors", nil, nil)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("DefaultValues", func(t *testing.T) {
		id, err := d.Post(ctx, "authors", nil)
		require.NoError(t, err)

		row, err := d.Get(ctx, "authors", Filter{"id": id}, nil)
		require.NoError(t, err)
		assert.Equal(t, Row{"id": id, "name": nil}, row)
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := d.Put(ctx, "books", Filter{"title": "Dune"}, Row{"isbn": "123"})
		assert.ErrorIs(t, err, ErrUnknownColumn)

		_, err = d.Put(ctx, "books", Filter{"isbn": "123"}, Row{"pages": 1})
		assert.ErrorIs(t, err, ErrUnknownColumn)

		_, err = d.Post(ctx, "readers", Row{"name": "Bob"})
		assert.ErrorIs(t, err, ErrUnknownTable)
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	d := setup(t, nil)

	for i := 1; i <= 5; i++ {
		_, err := d.Post(ctx, "books", Row{"title": fmt.Sprintf("Book %d", i), "pages": i * 10})
		require.NoError(t, err)
	}

	n, err := d.Delete(ctx, "books", Filter{"pages": Compare(Ge, 40)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = d.Delete(ctx, "books", Filter{"title": "Book 5"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = d.Delete(ctx, "books", Filter{"isbn": 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	require.NoError(t, d.ResetTable(ctx, "books"))

	rows, err := d.GetAll(ctx, "books", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = d.Post(ctx, "authors", Row{"name": "Bob"})
	require.NoError(t, err)

	require.NoError(t, d.ResetAllTables(ctx))

	rows, err = d.GetAll(ctx, "authors", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTransactions(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	path := testutil.DatabasePath(t)
	s := testStructure(t)

	open := func(t *testing.T) *Database {
		t.Helper()

		d, err := Open(ctx, &OpenParams{Path: path, Structure: s, Logger: testutil.Logger(t)})
		require.NoError(t, err)

		return d
	}

	d := open(t)
	require.NoError(t, d.CreateAllTables(ctx))
	require.NoError(t, d.Commit())

	_, err := d.Post(ctx, "authors", Row{"name": "Committed"})
	require.NoError(t, err)
	require.NoError(t, d.Commit())

	_, err = d.Post(ctx, "authors", Row{"name": "RolledBack"})
	require.NoError(t, err)
	require.NoError(t, d.Rollback())

	_, err = d.Post(ctx, "authors", Row{"name": "Discarded"})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	// no pending changes
	d = open(t)
	require.NoError(t, d.Commit())
	require.NoError(t, d.Rollback())

	rows, err := d.GetAll(ctx, "authors", nil, &GetParams{Columns: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"name": "Committed"}}, rows)

	require.NoError(t, d.Close())

	_, err = d.GetAll(ctx, "authors", nil, nil)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = d.Post(ctx, "authors", Row{"name": "Closed"})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = d.TableExists(ctx, "authors")
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, d.Commit(), ErrClosed)
	assert.ErrorIs(t, d.Rollback(), ErrClosed)
}

func TestConstraints(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)

	t.Run("PrimaryKey", func(t *testing.T) {
		t.Parallel()

		d := setup(t, nil)

		_, err := d.Post(ctx, "books", Row{"title": "Dune"})
		require.NoError(t, err)

		_, err = d.Post(ctx, "books", Row{"title": "Dune"})
		require.Error(t, err)
		assert.True(t, IsConstraintViolation(err))

		// the pending transaction is still usable
		rows, err := d.GetAll(ctx, "books", nil, nil)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("ForeignKeyDisabled", func(t *testing.T) {
		t.Parallel()

		d := setup(t, nil)

		_, err := d.Post(ctx, "books", Row{"title": "Dune", "author": 42})
		require.NoError(t, err)
	})

	t.Run("ForeignKeyEnabled", func(t *testing.T) {
		t.Parallel()

		d := setup(t, &OpenParams{ForeignKeys: true})

		_, err := d.Post(ctx, "books", Row{"title": "Dune", "author": 42})
		require.Error(t, err)
		assert.True(t, IsConstraintViolation(err))

		id, err := d.Post(ctx, "authors", Row{"name": "Frank Herbert"})
		require.NoError(t, err)

		_, err = d.Post(ctx, "books", Row{"title": "Dune", "author": id})
		require.NoError(t, err)
	})

	t.Run("ForeignKeyResetAndDrop", func(t *testing.T) {
		t.Parallel()

		d := setup(t, &OpenParams{ForeignKeys: true})

		id, err := d.Post(ctx, "authors", Row{"name": "Frank Herbert"})
		require.NoError(t, err)

		for _, title := range []string{"Dune", "Dune Messiah"} {
			_, err = d.Put(ctx, "books", Filter{"title": title}, Row{"author": id})
			require.NoError(t, err)
		}

		require.NoError(t, d.ResetAllTables(ctx))

		for _, table := range []string{"books", "authors"} {
			rows, err := d.GetAll(ctx, table, nil, nil)
			require.NoError(t, err)
			assert.Empty(t, rows, table)
		}

		id, err = d.Post(ctx, "authors", Row{"name": "Jane Austen"})
		require.NoError(t, err)

		_, err = d.Post(ctx, "books", Row{"title": "Emma", "author": id})
		require.NoError(t, err)

		require.NoError(t, d.DropAllTables(ctx))

		for _, table := range []string{"books", "authors"} {
			exists, err := d.TableExists(ctx, table)
			require.NoError(t, err)
			assert.False(t, exists, table)
		}

		require.NoError(t, d.CreateAllTables(ctx))
	})

	t.Run("Other", func(t *testing.T) {
		t.Parallel()

		assert.False(t, IsConstraintViolation(nil))
		assert.False(t, IsConstraintViolation(ErrClosed))
	})
}

func TestConcurrentPosts(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	d := setup(t, nil)

	const n = 20

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, err := d.Upsert(ctx, "books", Filter{"title": fmt.Sprintf("Book %02d", i%(n/2))}, Row{"pages": i})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	rows, err := d.GetAll(ctx, "books", nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, n/2)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	d := setup(t, nil)

	_, err := d.Post(ctx, "authors", Row{"name": "Bob"})
	require.NoError(t, err)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(d))

	n, err := promtestutil.GatherAndCount(reg, "sqlwrap_sqldb_statements_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestOps(t *testing.T) {
	t.Parallel()

	assert.ElementsMatch(t, []Op{Eq, Ne, Gt, Ge, Lt, Le}, Ops)

	// operators that are prefixes of others go last
	for i, op := range Ops {
		for _, later := range Ops[i+1:] {
			assert.False(t, strings.HasPrefix(string(later), string(op)), "%q before %q", op, later)
		}
	}
}
