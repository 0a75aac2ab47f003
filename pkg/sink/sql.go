package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/Sternrassler/repo-star-census/pkg/resolve"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTable is the table records are written to.
const DefaultTable = "repositories"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect holds the driver-specific SQL.
type Dialect struct {
	Driver string
	// CreateTable is a format string taking the table name.
	CreateTable string
	// InsertVerb precedes INTO, e.g. "INSERT IGNORE".
	InsertVerb string
	// OnConflict follows the VALUES clause.
	OnConflict string
	// Placeholder returns the n-th (1-based) bind placeholder.
	Placeholder func(n int) string
}

// MySQL is the MySQL/MariaDB dialect (go-sql-driver/mysql).
var MySQL = Dialect{
	Driver: DriverMySQL,
	CreateTable: `CREATE TABLE IF NOT EXISTS %s (
	repo_id BIGINT PRIMARY KEY,
	node_id VARCHAR(64) NOT NULL,
	full_name VARCHAR(255) NOT NULL,
	stargazers_count INT NULL,
	fork BOOLEAN NULL,
	archived BOOLEAN NULL,
	private BOOLEAN NULL,
	created_at DATETIME NULL,
	pushed_at DATETIME NULL,
	language VARCHAR(64) NULL,
	INDEX idx_stars (stargazers_count)
) ENGINE=InnoDB`,
	InsertVerb:  "INSERT IGNORE",
	Placeholder: func(int) string { return "?" },
}

// Postgres is the PostgreSQL dialect (pgx stdlib driver).
var Postgres = Dialect{
	Driver: DriverPgx,
	CreateTable: `CREATE TABLE IF NOT EXISTS %s (
	repo_id BIGINT PRIMARY KEY,
	node_id TEXT NOT NULL,
	full_name TEXT NOT NULL,
	stargazers_count INTEGER,
	fork BOOLEAN,
	archived BOOLEAN,
	private BOOLEAN,
	created_at TIMESTAMPTZ,
	pushed_at TIMESTAMPTZ,
	language TEXT
)`,
	InsertVerb:  "INSERT",
	OnConflict:  " ON CONFLICT (repo_id) DO NOTHING",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

// DialectFor returns the dialect of a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverMySQL:
		return MySQL, nil
	case DriverPgx:
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// SQLSink inserts records into a table, ignoring ids already present so a
// resumed crawl never duplicates rows.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	table   string
	insert  string
	logger  zerolog.Logger
}

// OpenSQL connects to dsn with driver, verifies the connection and
// ensures the table exists.
func OpenSQL(ctx context.Context, driver, dsn, table string) (*SQLSink, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s, err := NewSQLSink(db, dialect, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// NewSQLSink wraps an open database.
func NewSQLSink(db *sql.DB, dialect Dialect, table string) (*SQLSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	return &SQLSink{
		db:      db,
		dialect: dialect,
		table:   table,
		insert:  buildInsert(dialect, table),
		logger:  log.With().Str("component", "sink").Str("driver", dialect.Driver).Str("table", table).Logger(),
	}, nil
}

func buildInsert(d Dialect, table string) string {
	placeholders := make([]string, len(Columns))
	for i := range Columns {
		placeholders[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)%s",
		d.InsertVerb, table, strings.Join(Columns, ", "), strings.Join(placeholders, ", "), d.OnConflict)
}

// EnsureSchema creates the table if it does not exist.
func (s *SQLSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(s.dialect.CreateTable, s.table)); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}
	return nil
}

// Write inserts records in one transaction.
func (s *SQLSink) Write(ctx context.Context, records []resolve.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range records {
		res, err := stmt.ExecContext(ctx, args(rec)...)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert repo %d: %w", rec.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	recordsWritten.WithLabelValues(s.dialect.Driver).Add(float64(len(records)))
	if skipped := int64(len(records)) - inserted; skipped > 0 {
		s.logger.Debug().Int64("skipped", skipped).Msg("Existing rows ignored")
	}

	return nil
}

// args returns the bind values in Columns order, nil for absent fields.
func args(rec resolve.Record) []any {
	out := []any{rec.ID, rec.NodeID, rec.FullName, nil, nil, nil, nil, nil, nil, nil}
	if rec.StargazerCount != nil {
		out[3] = *rec.StargazerCount
	}
	if rec.IsFork != nil {
		out[4] = *rec.IsFork
	}
	if rec.IsArchived != nil {
		out[5] = *rec.IsArchived
	}
	if rec.IsPrivate != nil {
		out[6] = *rec.IsPrivate
	}
	if rec.CreatedAt != nil {
		out[7] = rec.CreatedAt.UTC()
	}
	if rec.PushedAt != nil {
		out[8] = rec.PushedAt.UTC()
	}
	if rec.Language != "" {
		out[9] = rec.Language
	}
	return out
}

// Flush is a no-op: Write commits before returning.
func (s *SQLSink) Flush(_ context.Context) error {
	return nil
}

// Close closes the database.
func (s *SQLSink) Close() error {
	return s.db.Close()
}
