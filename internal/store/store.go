package store

import (
	"context"
	"errors"

	"github.com/AngelCh415/campaign-etl/internal/models"
)

// Repository persists raw records, derived records and upload audits.
type Repository interface {
	// SaveUpload writes one raw and one derived row per record plus the audit
	// in a single all-or-nothing unit.
	SaveUpload(ctx context.Context, audit models.UploadAudit, recs []models.DerivedRecord) error
	RecordAudit(ctx context.Context, audit models.UploadAudit) error
	DerivedRecords(ctx context.Context, q models.Query) ([]models.DerivedRecord, error)
	Campaigns(ctx context.Context) ([]string, error)
	UploadLogs(ctx context.Context, limit int) ([]models.UploadAudit, error)
	Ping(ctx context.Context) error
}

var ErrInvalidOrder = errors.New("store: unsupported order field")

// orderable fields of processed_metrics
var orderColumns = map[string]string{
	"":              "id",
	"date":          "date",
	"campaign_name": "campaign_name",
	"impressions":   "impressions",
	"clicks":        "clicks",
	"spend":         "spend",
	"revenue":       "revenue",
	"ctr":           "ctr",
	"cpc":           "cpc",
	"roi":           "roi",
}
