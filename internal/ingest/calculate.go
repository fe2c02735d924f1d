package ingest

import (
	"github.com/AngelCh415/campaign-etl/internal/calc"
	"github.com/AngelCh415/campaign-etl/internal/models"
)

// Calculate derives CTR, CPC and ROI for each cleaned row.
func Calculate(ds Dataset) []models.DerivedRecord {
	out := make([]models.DerivedRecord, 0, len(ds.Rows))
	for _, r := range ds.Rows {
		raw := models.RawRecord{
			CampaignName: r.CampaignName,
			Date:         models.NewDay(r.Date),
			Impressions:  r.Impressions.Int64,
			Clicks:       r.Clicks.Int64,
			Spend:        r.Spend.Float64,
			Revenue:      r.Revenue.Float64,
		}
		out = append(out, models.DerivedRecord{
			RawRecord: raw,
			CTR:       calc.CTR(raw.Clicks, raw.Impressions),
			CPC:       calc.CPC(raw.Spend, raw.Clicks),
			ROI:       calc.ROI(raw.Revenue, raw.Spend),
		})
	}
	return out
}
