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

// Command sqlwrap manages and queries SQLite databases described by a structure file.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sqlwrap/sqlwrap/build/version"
	"github.com/sqlwrap/sqlwrap/internal/util/ctxutil"
	"github.com/sqlwrap/sqlwrap/internal/util/logging"
	"github.com/sqlwrap/sqlwrap/internal/util/must"
	"github.com/sqlwrap/sqlwrap/internal/util/observability"
	"github.com/sqlwrap/sqlwrap/sqlwrap"
)

// The cliParams struct represents all command-line commands, fields and flags.
// It's used for parsing the user input.
//
//nolint:lll // some tags are long
type cliParams struct {
	Version     kong.VersionFlag `help:"Print version to stdout and exit." env:"-"`
	DB          string           `default:"sqlwrap.db"   help:"Database file path, 'file:' URI, or ':memory:'." name:"db"`
	Schema      string           `default:"sqlwrap.yaml" help:"Database structure file."`
	ForeignKeys bool             `default:"false"        help:"Enforce foreign key constraints."`
	ReadOnly    bool             `default:"false"        help:"Open the database in read-only mode."`

	Log struct {
		Level  string `default:"info"    help:"${help_log_level}"`
		Format string `default:"console" help:"${help_log_format}" enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`

	OtelTracesEndpoint string `default:"" help:"OpenTelemetry OTLP/HTTP traces endpoint (host:port)." name:"otel-traces-endpoint"`
	DumpMetrics        bool   `default:"false" help:"Dump metrics to stderr on exit."`

	Create tablesParams `cmd:"" help:"Create tables if they do not exist."`
	Drop   tablesParams `cmd:"" help:"Drop tables if they exist."`
	Reset  tablesParams `cmd:"" help:"Delete all rows from tables."`
	Exists tableParams  `cmd:"" help:"Print whether the table exists."`
	Get    getParams    `cmd:"" help:"Print the first matching row."`
	GetAll getParams    `cmd:"" help:"Print all distinct matching rows." name:"get-all"`
	Put    putParams    `cmd:"" help:"Update the first matching row or insert a new one, print its rowid."`
	Post   postParams   `cmd:"" help:"Insert a new row, print its rowid."`
	Delete filterParams `cmd:"" help:"Delete matching rows, print their number."`
}

// cli represents parsed command-line arguments.
var cli cliParams

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	kongOptions = []kong.Option{
		kong.Vars{
			"enum_log_format": strings.Join(logging.Formats, ","),

			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logging.Formats, "', '")),
			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),

			"version": version.Get().Version,
		},
		kong.DefaultEnvars("SQLWRAP"),
	}
)

func main() {
	kongCtx := kong.Parse(&cli, kongOptions...)

	// the first word of "get-all <table> <filter> ..."
	cmd := strings.Fields(kongCtx.Command())[0]

	if err := run(cmd); err != nil {
		zap.L().Sugar().Fatalf("%s failed: %s.", cmd, err)
	}
}

// setupLogger setups zap logger.
func setupLogger() *zap.Logger {
	level, err := zapcore.ParseLevel(cli.Log.Level)
	if err != nil {
		log.Fatal(err)
	}

	logging.Setup(level, cli.Log.Format)
	l := zap.L()

	info := version.Get()
	l.Debug(
		"Starting sqlwrap "+info.Version+"...",
		zap.String("commit", info.Commit),
		zap.Bool("dirty", info.Dirty),
		zap.String("package", info.Package),
		zap.Any("buildEnvironment", info.BuildEnvironment),
	)

	return l
}

// dumpMetrics dumps all Prometheus metrics of the given gatherer to stderr.
func dumpMetrics(g prometheus.Gatherer) {
	mfs := must.NotFail(g.Gather())

	for _, mf := range mfs {
		must.NotFail(expfmt.MetricFamilyToText(os.Stderr, mf))
	}
}

// run sets up environment based on provided flags and runs the given command.
func run(cmd string) error {
	logger := setupLogger()

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
		logger.Sugar().Warnf("Failed to set GOMAXPROCS: %s.", err)
	}

	ctx, stop := ctxutil.SigTerm(context.Background())
	defer stop()

	shutdown, err := observability.SetupOtel("sqlwrap", cli.OtelTracesEndpoint)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shutdown OpenTelemetry.", zap.Error(err))
		}
	}()

	s, err := sqlwrap.LoadStructureFile(cli.Schema)
	if err != nil {
		return err
	}

	d, err := sqlwrap.Open(ctx, &sqlwrap.OpenParams{
		Path:        cli.DB,
		Structure:   s,
		Logger:      logger.Named("sqlwrap"),
		ForeignKeys: cli.ForeignKeys,
		ReadOnly:    cli.ReadOnly,
	})
	if err != nil {
		return err
	}

	defer func() {
		if err := d.Close(); err != nil {
			logger.Error("Failed to close database.", zap.Error(err))
		}
	}()

	if cli.DumpMetrics {
		r := prometheus.NewRegistry()
		r.MustRegister(d)

		defer dumpMetrics(r)
	}

	if err = execute(ctx, d, &cli, cmd, os.Stdout); err != nil {
		return err
	}

	return d.Commit()
}
