package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Day is a calendar date at UTC midnight.
type Day struct{ time.Time }

func NewDay(t time.Time) Day {
	y, m, d := t.Date()
	return Day{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Day{}, err
	}
	return NewDay(t), nil
}

func (d Day) String() string { return d.Format(DateLayout) }

func (d Day) MarshalJSON() ([]byte, error) { return []byte(`"` + d.String() + `"`), nil }

func (d *Day) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("models.Day: invalid JSON date %s", b)
	}
	p, err := ParseDay(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

func (d Day) Value() (driver.Value, error) { return d.Time, nil }

func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDay(v)
	case string:
		t, err := time.Parse(DateLayout, v[:min(len(v), len(DateLayout))])
		if err != nil {
			return err
		}
		*d = NewDay(t)
	case []byte:
		return d.Scan(string(v))
	default:
		return fmt.Errorf("models.Day: cannot scan %T", src)
	}
	return nil
}

type RawRecord struct {
	UploadID     string  `json:"upload_id,omitempty"`
	CampaignName string  `json:"campaign_name"`
	Date         Day     `json:"date"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
	Spend        float64 `json:"spend"`
	Revenue      float64 `json:"revenue"`
}

type DerivedRecord struct {
	RawRecord
	CTR float64 `json:"ctr"`
	CPC float64 `json:"cpc"`
	ROI float64 `json:"roi"`
}

type UploadStatus string

const (
	StatusSuccess UploadStatus = "success"
	StatusFailed  UploadStatus = "failed"
)

type UploadAudit struct {
	ID           string       `json:"id"`
	Filename     string       `json:"filename"`
	RowsUploaded int          `json:"rows_uploaded"`
	Status       UploadStatus `json:"status"`
	UploadedAt   time.Time    `json:"uploaded_at"`
	ErrorMessage *string      `json:"error_message"`
}

// Query filters derived records. Zero values mean "no filter".
type Query struct {
	From     *Day
	To       *Day
	Campaign string // case-insensitive substring
	OrderBy  string // date, campaign_name, spend, ... ; empty keeps insertion order
	Desc     bool
	Limit    int
}

type Summary struct {
	TotalSpend       float64 `json:"total_spend"`
	TotalRevenue     float64 `json:"total_revenue"`
	TotalImpressions int64   `json:"total_impressions"`
	TotalClicks      int64   `json:"total_clicks"`
	AvgCTR           float64 `json:"avg_ctr"`
	AvgCPC           float64 `json:"avg_cpc"`
	AvgROI           float64 `json:"avg_roi"`
	NumCampaigns     int     `json:"num_campaigns"`
	TotalRecords     int     `json:"total_records"`
}

type DailyPerformance struct {
	Date        Day     `json:"date"`
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Campaigns   int     `json:"campaigns"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	ROI         float64 `json:"roi"`
}

type CampaignRank struct {
	CampaignName string  `json:"campaign_name"`
	Spend        float64 `json:"spend"`
	Revenue      float64 `json:"revenue"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
	Records      int     `json:"records"`
	CTR          float64 `json:"ctr"`
	ROI          float64 `json:"roi"`
}
