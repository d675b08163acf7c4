package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sawpanic/rotorun/internal/bar"
)

// CSVSource is a Source backed by one CSV file per symbol: timestamp
// (RFC3339), open, high, low, close, volume. It is the teacher's simplest
// possible Source implementation, used for backtests run against files on
// disk rather than an upstream data provider.
type CSVSource struct {
	dir string
}

// NewCSVSource builds a CSVSource reading "<dir>/<symbol>.csv" files.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// FetchBars reads every bar for symbol in [from,to] from its CSV file.
func (s *CSVSource) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]bar.Bar, error) {
	path := fmt.Sprintf("%s/%s.csv", s.dir, symbol)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv source: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	var out []bar.Bar
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv source: read %s: %w", path, err)
		}

		b, err := parseRecord(symbol, record)
		if err != nil {
			return nil, fmt.Errorf("csv source: parse %s: %w", path, err)
		}
		if b.Timestamp.Before(from) || b.Timestamp.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func parseRecord(symbol string, record []string) (bar.Bar, error) {
	ts, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return bar.Bar{}, fmt.Errorf("timestamp %q: %w", record[0], err)
	}
	fields := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return bar.Bar{}, fmt.Errorf("field %d (%q): %w", i+1, record[i+1], err)
		}
		fields[i] = v
	}
	volume, err := strconv.ParseInt(record[5], 10, 64)
	if err != nil {
		return bar.Bar{}, fmt.Errorf("volume (%q): %w", record[5], err)
	}
	return bar.New(ts, symbol, fields[0], fields[1], fields[2], fields[3], volume), nil
}
