package ingest

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/AngelCh415/campaign-etl/internal/models"
)

// Clean normalises every row and then drops exact duplicates, keeping the
// first occurrence. Clean(Clean(x)) equals Clean(x).
func Clean(ds Dataset) Dataset {
	out := Dataset{
		ExtraColumns: ds.ExtraColumns,
		Rows:         make([]Row, 0, len(ds.Rows)),
	}
	seen := make(map[string]struct{}, len(ds.Rows))
	for _, r := range ds.Rows {
		r = normalize(r)
		k := rowKey(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out.Rows = append(out.Rows, r)
	}
	return out
}

func normalize(r Row) Row {
	r.Date = models.NewDay(r.Date).Time
	r.CampaignName = strings.ToLower(strings.TrimSpace(r.CampaignName))
	r.Impressions = sql.NullInt64{Int64: orZero(r.Impressions), Valid: true}
	r.Clicks = sql.NullInt64{Int64: orZero(r.Clicks), Valid: true}
	r.Spend = sql.NullFloat64{Float64: orZeroF(r.Spend), Valid: true}
	r.Revenue = sql.NullFloat64{Float64: orZeroF(r.Revenue), Valid: true}
	if r.Extras != nil {
		r.Extras = append([]string(nil), r.Extras...)
	}
	return r
}

func orZero(v sql.NullInt64) int64 {
	if !v.Valid {
		return 0
	}
	return v.Int64
}

func orZeroF(v sql.NullFloat64) float64 {
	if !v.Valid {
		return 0
	}
	return v.Float64
}

func rowKey(r Row) string {
	var b strings.Builder
	b.WriteString(r.Date.Format(models.DateLayout))
	for _, f := range []string{
		r.CampaignName,
		strconv.FormatInt(r.Impressions.Int64, 10),
		strconv.FormatInt(r.Clicks.Int64, 10),
		strconv.FormatFloat(r.Spend.Float64, 'g', -1, 64),
		strconv.FormatFloat(r.Revenue.Float64, 'g', -1, 64),
	} {
		b.WriteByte(0x1f)
		b.WriteString(f)
	}
	for _, e := range r.Extras {
		b.WriteByte(0x1f)
		b.WriteString(e)
	}
	return b.String()
}
