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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sqlwrap/sqlwrap/sqlwrap"
)

// tablesParams represents `create`, `drop`, and `reset` parameters.
type tablesParams struct {
	Tables []string `arg:"" optional:"" name:"table" help:"Table names; all tables if none are given."`
}

// tableParams represents `exists` parameters.
type tableParams struct {
	Table string `arg:"" help:"Table name."`
}

// filterParams represents `delete` parameters.
//
//nolint:lll // some tags are long
type filterParams struct {
	Table   string   `arg:""                        help:"Table name."`
	Filters []string `arg:"" optional:"" name:"filter" help:"Filters in the form column<op>value, <op> is one of =, !=, >, >=, <, <=; NULL is SQL NULL, numbers are passed as numbers unless quoted like '007'." sep:"none"`
}

// getParams represents `get` and `get-all` parameters.
//
//nolint:lll // some tags are long
type getParams struct {
	Table   string   `arg:""                        help:"Table name."`
	Filters []string `arg:"" optional:"" name:"filter" help:"Filters in the form column<op>value, <op> is one of =, !=, >, >=, <, <=; NULL is SQL NULL, numbers are passed as numbers unless quoted like '007'." sep:"none"`
	Column  []string `short:"c"                      help:"Columns to print; all declared columns if none are given."`
	Sort    []string `short:"s"                      help:"Sort by columns in the form column[:asc|:desc]."`
}

// putParams represents `put` parameters.
//
//nolint:lll // some tags are long
type putParams struct {
	Table   string   `arg:""                        help:"Table name."`
	Filters []string `arg:"" optional:"" name:"filter" help:"Filters in the form column<op>value, <op> is one of =, !=, >, >=, <, <=; NULL is SQL NULL, numbers are passed as numbers unless quoted like '007'." sep:"none"`
	Set     []string `help:"Values in the form column=value; NULL is SQL NULL, numbers are passed as numbers unless quoted like '007'." sep:"none"`
}

// postParams represents `post` parameters.
type postParams struct {
	Table string   `arg:"" help:"Table name."`
	Set   []string `help:"Values in the form column=value; NULL is SQL NULL, numbers are passed as numbers unless quoted like '007'." sep:"none"`
}

// forTables calls one for each given table, or all when no tables are given.
func forTables(ctx context.Context, tables []string, one func(context.Context, string) error, all func(context.Context) error) error {
	if len(tables) == 0 {
		return all(ctx)
	}

	for _, t := range tables {
		if err := one(ctx, t); err != nil {
			return err
		}
	}

	return nil
}

// get runs `get` or `get-all` command.
func get(ctx context.Context, d *sqlwrap.Database, p *getParams, first bool, enc *json.Encoder) error {
	f, err := parseFilter(p.Filters)
	if err != nil {
		return err
	}

	gp := &sqlwrap.GetParams{
		Columns: p.Column,
		Sort:    parseSorts(p.Sort),
	}

	if first {
		var row sqlwrap.Row
		if row, err = d.Get(ctx, p.Table, f, gp); err != nil {
			return err
		}

		return enc.Encode(row)
	}

	rows, err := d.GetAll(ctx, p.Table, f, gp)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err = enc.Encode(row); err != nil {
			return err
		}
	}

	return nil
}

// execute runs a command with the given parameters against the database.
// Results are written to w as JSON, one value per line.
//
// It does not commit changes.
func execute(ctx context.Context, d *sqlwrap.Database, p *cliParams, cmd string, w io.Writer) error {
	enc := json.NewEncoder(w)

	switch cmd {
	case "create":
		return forTables(ctx, p.Create.Tables, d.CreateTable, d.CreateAllTables)

	case "drop":
		return forTables(ctx, p.Drop.Tables, d.DropTable, d.DropAllTables)

	case "reset":
		return forTables(ctx, p.Reset.Tables, d.ResetTable, d.ResetAllTables)

	case "exists":
		exists, err := d.TableExists(ctx, p.Exists.Table)
		if err != nil {
			return err
		}

		return enc.Encode(exists)

	case "get":
		return get(ctx, d, &p.Get, true, enc)

	case "get-all":
		return get(ctx, d, &p.GetAll, false, enc)

	case "put":
		f, err := parseFilter(p.Put.Filters)
		if err != nil {
			return err
		}

		values, err := parseValues(p.Put.Set)
		if err != nil {
			return err
		}

		rowID, err := d.Put(ctx, p.Put.Table, f, values)
		if err != nil {
			return err
		}

		return enc.Encode(map[string]int64{sqlwrap.RowID: rowID})

	case "post":
		values, err := parseValues(p.Post.Set)
		if err != nil {
			return err
		}

		rowID, err := d.Post(ctx, p.Post.Table, values)
		if err != nil {
			return err
		}

		return enc.Encode(map[string]int64{sqlwrap.RowID: rowID})

	case "delete":
		f, err := parseFilter(p.Delete.Filters)
		if err != nil {
			return err
		}

		n, err := d.Delete(ctx, p.Delete.Table, f)
		if err != nil {
			return err
		}

		return enc.Encode(map[string]int64{"deleted": n})

	default:
		return fmt.Errorf("unhandled command %q", cmd)
	}
}
