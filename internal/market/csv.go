package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"meridian/internal/domain"
)

var csvTimeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// LoadCSVDir reads <dir>/<SYMBOL>.csv for every symbol. Files carry a header
// row naming at least datetime (or date), open, high, low, close and
// volume; an adj_close column is accepted and ignored.
func LoadCSVDir(dir string, symbols []string) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		path := filepath.Join(dir, sym+".csv")
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		bars, err := ReadCSV(f, sym)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out[sym] = bars
	}
	return out, nil
}

// ReadCSV parses OHLCV rows for symbol from r.
func ReadCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["datetime"]; !ok {
		if i, ok := col["date"]; ok {
			col["datetime"] = i
		}
	}
	for _, name := range []string{"datetime", "open", "high", "low", "close", "volume"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		ts, err := parseCSVTime(rec[col["datetime"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b := domain.Bar{Symbol: symbol, Timestamp: ts}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
		}
		for _, fd := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[fd.name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, fd.name, err)
			}
			*fd.dst = v
		}
		vol, err := strconv.ParseFloat(strings.TrimSpace(rec[col["volume"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: volume: %w", line, err)
		}
		b.Volume = int64(vol)
		bars = append(bars, b)
	}
	return bars, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised datetime %q", s)
}
