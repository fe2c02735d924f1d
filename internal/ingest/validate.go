package ingest

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const ValidationPassed = "Validation passed"

var requiredColumns = []string{"date", "campaign_name", "impressions", "clicks", "spend"}

const revenueColumn = "revenue"

// Row is one coerced input row. Numeric fields are invalid (NULL) when the
// cell was empty or NaN; Clean fills them.
type Row struct {
	Date         time.Time
	CampaignName string
	Impressions  sql.NullInt64
	Clicks       sql.NullInt64
	Spend        sql.NullFloat64
	Revenue      sql.NullFloat64
	// Extras holds the cells of unrecognised columns, in header order.
	Extras []string
}

// Dataset is a validated, typed table.
type Dataset struct {
	Rows         []Row
	ExtraColumns []string
}

// accepted date layouts, tried in order
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"20060102",
}

// Validate checks the schema and business rules of t and coerces its cells.
// The returned Dataset is only meaningful when err is nil.
func Validate(t Table) (Dataset, error) {
	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := idx[c]; !dup {
			idx[c] = i
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Dataset{}, newError(KindSchema, "Missing columns: "+strings.Join(missing, ", "), nil)
	}
	if len(t.Rows) == 0 {
		return Dataset{}, newError(KindEmpty, "CSV file is empty", nil)
	}

	known := map[string]bool{revenueColumn: true}
	for _, c := range requiredColumns {
		known[c] = true
	}
	var extraIdx []int
	ds := Dataset{Rows: make([]Row, 0, len(t.Rows))}
	for i, c := range t.Columns {
		if !known[c] {
			extraIdx = append(extraIdx, i)
			ds.ExtraColumns = append(ds.ExtraColumns, c)
		}
	}
	revIdx, hasRevenue := idx[revenueColumn]

	for n, cells := range t.Rows {
		line := n + 2 // 1-based, after the header
		var (
			r   Row
			err error
		)
		if r.Date, err = parseDate(cells[idx["date"]]); err != nil {
			return Dataset{}, coercionError(line, "date", err)
		}
		r.CampaignName = cells[idx["campaign_name"]]
		if r.Impressions, err = parseInt(cells[idx["impressions"]]); err != nil {
			return Dataset{}, coercionError(line, "impressions", err)
		}
		if r.Clicks, err = parseInt(cells[idx["clicks"]]); err != nil {
			return Dataset{}, coercionError(line, "clicks", err)
		}
		if r.Spend, err = parseFloat(cells[idx["spend"]]); err != nil {
			return Dataset{}, coercionError(line, "spend", err)
		}
		if hasRevenue {
			if r.Revenue, err = parseFloat(cells[revIdx]); err != nil {
				return Dataset{}, coercionError(line, revenueColumn, err)
			}
		}
		for _, j := range extraIdx {
			r.Extras = append(r.Extras, cells[j])
		}
		ds.Rows = append(ds.Rows, r)
	}

	if err := checkRules(ds.Rows); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

func checkRules(rows []Row) error {
	for _, r := range rows {
		if negInt(r.Impressions) || negInt(r.Clicks) || (r.Spend.Valid && r.Spend.Float64 < 0) {
			return newError(KindBusinessRule, "Negative values not allowed", nil)
		}
	}
	for _, r := range rows {
		if r.Clicks.Valid && r.Impressions.Valid && r.Clicks.Int64 > r.Impressions.Int64 {
			return newError(KindBusinessRule, "Clicks cannot exceed impressions", nil)
		}
	}
	return nil
}

func negInt(v sql.NullInt64) bool { return v.Valid && v.Int64 < 0 }

func coercionError(line int, col string, err error) error {
	return newError(KindTypeCoercion, fmt.Sprintf("Data type conversion error: line %d, column %s: %v", line, col, err), err)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	// the offset is kept so the calendar date is the one written in the file
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "null", "na", "n/a":
		return true
	}
	return false
}

func parseInt(s string) (sql.NullInt64, error) {
	s = strings.TrimSpace(s)
	if isMissing(s) {
		return sql.NullInt64{}, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return sql.NullInt64{Int64: v, Valid: true}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("invalid integer %q", s)
	}
	if math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return sql.NullInt64{}, fmt.Errorf("invalid integer %q", s)
	}
	return sql.NullInt64{Int64: int64(f), Valid: true}, nil
}

func parseFloat(s string) (sql.NullFloat64, error) {
	s = strings.TrimSpace(s)
	if isMissing(s) {
		return sql.NullFloat64{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return sql.NullFloat64{}, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(f) {
		return sql.NullFloat64{}, nil
	}
	return sql.NullFloat64{Float64: f, Valid: true}, nil
}
