// Package collectors provides prometheus collectors for this driver's
// process-wide connection and cursor statistics (SPEC_FULL.md §9 "Why a
// separate prometheus submodule"). It lives in its own module, mirroring
// go-hdb/prometheus, so that applications which don't use prometheus never
// pull in its dependency graph transitively.
package collectors

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	monetdb "github.com/MonetDB/go-monetdb"
)

const namespace = "monetdb"

type collector struct {
	fn func() monetdb.Stats

	openConnections *prometheus.Desc
	openCursors     *prometheus.Desc
	queries         *prometheus.Desc
	roundtrip       *prometheus.Desc
}

func newCollector(fn func() monetdb.Stats, subsystem string, labels prometheus.Labels) prometheus.Collector {
	// fqName: namespace, subsystem, name
	fqName := func(name string) string { return strings.Join([]string{namespace, subsystem, name}, "_") }
	return &collector{
		fn: fn,
		openConnections: prometheus.NewDesc(
			fqName("open_connections"),
			fmt.Sprintf("The number of established %s connections.", subsystem),
			nil,
			labels,
		),
		openCursors: prometheus.NewDesc(
			fqName("open_cursors"),
			fmt.Sprintf("The number of open %s cursors.", subsystem),
			nil,
			labels,
		),
		queries: prometheus.NewDesc(
			fqName("queries_total"),
			fmt.Sprintf("The total number of statements executed by %s.", subsystem),
			nil,
			labels,
		),
		roundtrip: prometheus.NewDesc(
			fqName("roundtrip_milliseconds"),
			fmt.Sprintf("Round-trip latency of statements executed through database/sql by %s, in milliseconds.", subsystem),
			nil,
			labels,
		),
	}
}

// Describe implements Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.openConnections
	ch <- c.openCursors
	ch <- c.queries
	ch <- c.roundtrip
}

func buckets(h *monetdb.StatsHistogram) map[float64]uint64 {
	b := make(map[float64]uint64, len(h.Buckets))
	for k, v := range h.Buckets {
		b[float64(k)] = v
	}
	return b
}

// Collect implements Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.fn()
	ch <- prometheus.MustNewConstMetric(c.openConnections, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.openCursors, prometheus.GaugeValue, float64(stats.OpenCursors))
	ch <- prometheus.MustNewConstMetric(c.queries, prometheus.CounterValue, float64(stats.Queries))
	if h := stats.RoundtripTimes; h != nil {
		ch <- prometheus.MustNewConstHistogram(c.roundtrip, h.Count, float64(h.Sum), buckets(h))
	}
}

// NewCollector returns a prometheus.Collector exporting the process-wide
// driver statistics tracked by monetdb.StatsSnapshot, labeled with dbName.
func NewCollector(dbName string) prometheus.Collector {
	return newCollector(monetdb.StatsSnapshot, "driver", prometheus.Labels{"db_name": dbName})
}
