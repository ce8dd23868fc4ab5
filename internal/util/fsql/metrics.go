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
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// Parts of Prometheus metric names.
const (
	namespace = "sqlwrap"
	subsystem = "sqldb"
)

// metricsCollector exposes DB's state as Prometheus metrics.
type metricsCollector struct {
	stats      func() sql.DBStats
	open       *prometheus.Desc
	inUse      *prometheus.Desc
	waitCount  *prometheus.Desc
	statements *prometheus.CounterVec
}

// newMetricsCollector creates a new metricsCollector.
//
// Name is used as a constant label value.
func newMetricsCollector(name string, stats func() sql.DBStats) *metricsCollector {
	labels := prometheus.Labels{
		"name": name,
	}

	return &metricsCollector{
		stats: stats,
		open: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "open"),
			"The number of established connections both in use and idle.",
			nil, labels,
		),
		inUse: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "in_use"),
			"The number of connections currently in use.",
			nil, labels,
		),
		waitCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "wait_count_total"),
			"The total number of connections waited for.",
			nil, labels,
		),
		statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        "statements_total",
				Help:        "The total number of executed statements and transaction events.",
				ConstLabels: labels,
			},
			[]string{"method", "result"},
		),
	}
}

// observe counts a single statement or transaction event.
func (c *metricsCollector) observe(method string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	c.statements.WithLabelValues(method, result).Inc()
}

// Describe implements prometheus.Collector.
func (c *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.open
	ch <- c.inUse
	ch <- c.waitCount

	c.statements.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.stats()

	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stats.InUse))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(stats.WaitCount))

	c.statements.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*metricsCollector)(nil)
)
