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

package fsql

import (
	"context"
	"database/sql"
	"time"

	"github.com/AlekSi/pointer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// observer logs, traces, and counts statements executed by DB and Tx.
type observer struct {
	l *zap.Logger
	m *metricsCollector
}

// start logs the beginning of the statement execution and starts a tracing span.
//
// The returned function should be called with the statement's result (if any) and error.
func (o *observer) start(ctx context.Context, method, query string, args []any) (context.Context, func(sql.Result, error)) {
	start := time.Now()

	ctx, span := otel.Tracer("").Start(
		ctx,
		"fsql."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.statement", query),
		),
	)

	fields := []any{zap.Any("args", args)}
	o.l.Sugar().With(fields...).Debugf(">>> %s", query)

	return ctx, func(res sql.Result, err error) {
		// to differentiate between 0 and nil
		var ra *int64

		if res != nil {
			if rav, e := res.RowsAffected(); e == nil {
				ra = pointer.ToInt64(rav)
				span.SetAttributes(attribute.Int64("db.rows_affected", rav))
			}
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()

		o.m.observe(method, err)

		fields = append(fields, zap.Int64p("rows", ra), zap.Duration("time", time.Since(start)), zap.Error(err))
		o.l.Sugar().With(fields...).Debugf("<<< %s", query)
	}
}

// event logs and counts a transaction event such as commit or rollback.
func (o *observer) event(method string, err error) {
	o.m.observe(method, err)

	if err != nil {
		o.l.Debug("Transaction "+method+" failed.", zap.Error(err))
		return
	}

	o.l.Debug("Transaction " + method + " done.")
}
