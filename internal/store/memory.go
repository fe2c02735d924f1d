package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AngelCh415/campaign-etl/internal/models"
)

// MemoryStore keeps every table in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	raw     []models.RawRecord
	derived []models.DerivedRecord
	audits  []models.UploadAudit
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) SaveUpload(ctx context.Context, audit models.UploadAudit, recs []models.DerivedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.raw = append(s.raw, r.RawRecord)
		s.derived = append(s.derived, r)
	}
	s.audits = append(s.audits, audit)
	return nil
}

func (s *MemoryStore) RecordAudit(ctx context.Context, audit models.UploadAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, audit)
	return nil
}

func (s *MemoryStore) DerivedRecords(ctx context.Context, q models.Query) ([]models.DerivedRecord, error) {
	if _, ok := orderColumns[q.OrderBy]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrder, q.OrderBy)
	}
	needle := strings.ToLower(q.Campaign)

	s.mu.RLock()
	out := make([]models.DerivedRecord, 0, len(s.derived))
	for _, r := range s.derived {
		if q.From != nil && r.Date.Before(q.From.Time) {
			continue
		}
		if q.To != nil && r.Date.After(q.To.Time) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(r.CampaignName), needle) {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	if q.OrderBy != "" {
		less := lessBy(q.OrderBy)
		sort.SliceStable(out, func(i, j int) bool {
			if q.Desc {
				return less(out[j], out[i])
			}
			return less(out[i], out[j])
		})
	} else if q.Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func lessBy(field string) func(a, b models.DerivedRecord) bool {
	switch field {
	case "date":
		return func(a, b models.DerivedRecord) bool { return a.Date.Before(b.Date.Time) }
	case "campaign_name":
		return func(a, b models.DerivedRecord) bool { return a.CampaignName < b.CampaignName }
	case "impressions":
		return func(a, b models.DerivedRecord) bool { return a.Impressions < b.Impressions }
	case "clicks":
		return func(a, b models.DerivedRecord) bool { return a.Clicks < b.Clicks }
	case "spend":
		return func(a, b models.DerivedRecord) bool { return a.Spend < b.Spend }
	case "revenue":
		return func(a, b models.DerivedRecord) bool { return a.Revenue < b.Revenue }
	case "ctr":
		return func(a, b models.DerivedRecord) bool { return a.CTR < b.CTR }
	case "cpc":
		return func(a, b models.DerivedRecord) bool { return a.CPC < b.CPC }
	default:
		return func(a, b models.DerivedRecord) bool { return a.ROI < b.ROI }
	}
}

func (s *MemoryStore) Campaigns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, r := range s.derived {
		if _, ok := seen[r.CampaignName]; ok {
			continue
		}
		seen[r.CampaignName] = struct{}{}
		out = append(out, r.CampaignName)
	}
	sort.Strings(out)
	return out, nil
}

// UploadLogs returns the newest audits first.
func (s *MemoryStore) UploadLogs(ctx context.Context, limit int) ([]models.UploadAudit, error) {
	s.mu.RLock()
	out := make([]models.UploadAudit, 0, len(s.audits))
	for i := len(s.audits) - 1; i >= 0; i-- {
		out = append(out, s.audits[i])
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) RawRecords() []models.RawRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RawRecord, len(s.raw))
	copy(out, s.raw)
	return out
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }
