// Package sink writes resolved records to their destination: a CSV file
// or a MySQL/Postgres table.
//
// Every sink writes a record at most once per call; Flush makes written
// records durable and must succeed before the crawl checkpoint advances.
package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/repo-star-census/pkg/resolve"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for output sinks.
var (
	recordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_records_written_total",
		Help: "Total records written by sink driver",
	}, []string{"driver"})
)

// Drivers.
const (
	DriverCSV   = "csv"
	DriverMySQL = "mysql"
	DriverPgx   = "pgx"
)

// Columns is the fixed output column order.
var Columns = []string{
	"repo_id",
	"node_id",
	"full_name",
	"stargazers_count",
	"fork",
	"archived",
	"private",
	"created_at",
	"pushed_at",
	"language",
}

// Sink receives resolved records.
type Sink interface {
	// Write appends records in order.
	Write(ctx context.Context, records []resolve.Record) error
	// Flush makes all written records durable.
	Flush(ctx context.Context) error
	// Close flushes and releases the sink.
	Close() error
}

// Open opens the sink for driver at target: a file path for csv, a DSN
// for mysql and pgx. SQL sinks create their table if needed.
func Open(ctx context.Context, driver, target string) (Sink, error) {
	switch driver {
	case DriverCSV, "":
		return NewCSVSink(target)
	case DriverMySQL, DriverPgx:
		return OpenSQL(ctx, driver, target, DefaultTable)
	default:
		return nil, fmt.Errorf("unknown output driver %q", driver)
	}
}

// Row formats a record in Columns order. Absent fields are empty.
func Row(rec resolve.Record) []string {
	return []string{
		strconv.FormatInt(rec.ID, 10),
		rec.NodeID,
		rec.FullName,
		formatInt(rec.StargazerCount),
		formatBool(rec.IsFork),
		formatBool(rec.IsArchived),
		formatBool(rec.IsPrivate),
		formatTime(rec.CreatedAt),
		formatTime(rec.PushedAt),
		rec.Language,
	}
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func formatTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
