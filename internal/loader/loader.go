// Package loader reads billing records from CSV files produced by the
// ingestion side. One row per record; service days are a delimited list
// that may contain ranges ("3;10;17", "1-5,8").
package loader

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

// Load reads billing records from a CSV or YAML batch file, chosen by
// extension.
func Load(path string) ([]model.BillingRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open %s", path)
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: parse %s", path)
	}
	return records, nil
}

// Parse reads billing records from CSV data. The first row is a header;
// column order is free. Required columns: uci, last_name, first_name,
// svc_code, svc_month_year, service_days.
func Parse(r io.Reader) ([]model.BillingRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "loader: read header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[normalizeHeader(h)] = i
	}
	for _, required := range []string{"uci", "last_name", "first_name", "svc_code", "svc_month_year", "service_days"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("loader: missing column %q", required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []model.BillingRecord
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "loader: read row %d", line)
		}

		days, err := ParseDays(cell(row, "service_days"))
		if err != nil {
			return nil, eris.Wrapf(err, "loader: row %d", line)
		}

		rec := model.BillingRecord{
			UCI:          cell(row, "uci"),
			LastName:     cell(row, "last_name"),
			FirstName:    cell(row, "first_name"),
			AuthNumber:   cell(row, "auth_number"),
			SvcCode:      cell(row, "svc_code"),
			SvcSubcode:   cell(row, "svc_subcode"),
			SvcMonthYear: model.NormalizeMonth(cell(row, "svc_month_year")),
			SPNID:        cell(row, "spn_id"),
			ServiceDays:  days,
		}
		rec.EnteredUnits = parseFloat(cell(row, "entered_units"))
		rec.EnteredAmount = parseFloat(cell(row, "entered_amount"))
		records = append(records, rec)
	}

	zap.L().Info("billing records loaded", zap.Int("records", len(records)))
	return records, nil
}

// ParseDays expands a day-list expression into sorted unique day numbers.
// Entries are separated by commas or semicolons; an entry is a single day
// or an inclusive range like "3-7".
func ParseDays(expr string) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	seen := make(map[int]bool)
	var days []int
	add := func(d int) {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}

	for _, part := range strings.FieldsFunc(expr, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			d, err := strconv.Atoi(part)
			if err != nil {
				return nil, eris.Errorf("loader: bad day %q", part)
			}
			add(d)
			continue
		}
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, eris.Errorf("loader: bad day range %q", part)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || end < start {
			return nil, eris.Errorf("loader: bad day range %q", part)
		}
		for d := start; d <= end; d++ {
			add(d)
		}
	}
	return days, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	return h
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
