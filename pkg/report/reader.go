package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// StarsColumn is the CSV column read by the report.
const StarsColumn = "stargazers_count"

// ReadStars returns every parseable star count in the CSV. Empty and
// non-numeric cells are skipped.
func ReadStars(r io.Reader) ([]int64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv: missing header")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == StarsColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("column %q not found", StarsColumn)
	}

	var stars []int64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if col >= len(record) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(record[col]), 10, 64)
		if err != nil || n < 0 {
			continue
		}
		stars = append(stars, n)
	}

	return stars, nil
}

// ReadStarsFile opens path and reads its star counts.
func ReadStarsFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return ReadStars(f)
}
