package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/repo-star-census/pkg/resolve"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CSVSink appends records to a CSV file. The header row is written only
// when the file is new or empty.
type CSVSink struct {
	path    string
	file    *os.File
	writer  *csv.Writer
	written int64
	logger  zerolog.Logger
}

// NewCSVSink opens path for appending, creating it with a header row if
// it does not exist yet. Opening an existing file never repeats the header.
func NewCSVSink(path string) (*CSVSink, error) {
	if path == "" {
		return nil, fmt.Errorf("csv output path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv output: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat csv output: %w", err)
	}

	s := &CSVSink{
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
		logger: log.With().Str("component", "sink").Str("driver", DriverCSV).Str("path", path).Logger(),
	}

	if info.Size() == 0 {
		if err := s.writer.Write(Columns); err != nil {
			file.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		if err := s.Flush(context.Background()); err != nil {
			file.Close()
			return nil, err
		}
		s.logger.Debug().Msg("CSV header written")
	}

	return s, nil
}

// Write appends one row per record.
func (s *CSVSink) Write(_ context.Context, records []resolve.Record) error {
	for _, rec := range records {
		if err := s.writer.Write(Row(rec)); err != nil {
			return fmt.Errorf("write csv row %d: %w", rec.ID, err)
		}
	}
	s.written += int64(len(records))
	recordsWritten.WithLabelValues(DriverCSV).Add(float64(len(records)))
	return nil
}

// Flush writes buffered rows and syncs the file.
func (s *CSVSink) Flush(_ context.Context) error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync csv output: %w", err)
	}
	return nil
}

// Written returns the number of rows written by this sink.
func (s *CSVSink) Written() int64 {
	return s.written
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	flushErr := s.Flush(context.Background())
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close csv output: %w", err)
	}
	return flushErr
}
