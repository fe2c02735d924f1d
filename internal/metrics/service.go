package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/AngelCh415/campaign-etl/internal/calc"
	"github.com/AngelCh415/campaign-etl/internal/models"
	"github.com/AngelCh415/campaign-etl/internal/store"
	"github.com/AngelCh415/campaign-etl/internal/telemetry"
)

// ErrInvalidMetric is returned for a ranking metric outside RankMetrics.
var ErrInvalidMetric = errors.New("invalid metric")

// RankMetrics are the accepted TopCampaigns sort keys.
var RankMetrics = []string{"spend", "impressions", "clicks", "revenue", "ctr", "roi"}

const (
	DefaultTopLimit  = 5
	DefaultLogsLimit = 20
	maxLimit         = 1000
)

// Cache stores computed reports. Get also returns the cache generation it
// looked in; a report must be Set under the generation read before its
// records were loaded, so an invalidation in between hides it.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (gen int64, hit bool, err error)
	Set(ctx context.Context, gen int64, key string, v any) error
}

type Service struct {
	st    store.Repository
	cache Cache
	rec   *telemetry.Recorder
	log   *slog.Logger
}

type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithTelemetry(r *telemetry.Recorder) Option { return func(s *Service) { s.rec = r } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(st store.Repository, opts ...Option) *Service {
	s := &Service{st: st, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TopResult is a ranking truncated to the requested limit; Count is the
// number of campaigns before truncation.
type TopResult struct {
	Data   []models.CampaignRank `json:"data"`
	Count  int                   `json:"count"`
	Metric string                `json:"metric"`
}

// ParseQuery reads date_from, date_to and campaign from v.
func ParseQuery(v url.Values) (models.Query, error) {
	var q models.Query
	if s := strings.TrimSpace(v.Get("date_from")); s != "" {
		d, err := models.ParseDay(s)
		if err != nil {
			return q, fmt.Errorf("bad date_from %q (want YYYY-MM-DD)", s)
		}
		q.From = &d
	}
	if s := strings.TrimSpace(v.Get("date_to")); s != "" {
		d, err := models.ParseDay(s)
		if err != nil {
			return q, fmt.Errorf("bad date_to %q (want YYYY-MM-DD)", s)
		}
		q.To = &d
	}
	q.Campaign = strings.TrimSpace(v.Get("campaign"))
	return q, nil
}

// Records returns the filtered derived records, newest date first.
func (s *Service) Records(ctx context.Context, q models.Query) ([]models.DerivedRecord, error) {
	q.OrderBy, q.Desc = "date", true
	recs, err := s.st.DerivedRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []models.DerivedRecord{}
	}
	return recs, nil
}

func (s *Service) Summary(ctx context.Context, q models.Query) (models.Summary, error) {
	var out models.Summary
	err := s.cached(ctx, cacheKey("summary", q), &out, func(recs []models.DerivedRecord) any {
		out = Summarize(recs)
		return out
	}, q)
	return out, err
}

func (s *Service) Campaigns(ctx context.Context) ([]string, error) {
	names, err := s.st.Campaigns(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *Service) DailyPerformance(ctx context.Context, q models.Query) ([]models.DailyPerformance, error) {
	var out []models.DailyPerformance
	err := s.cached(ctx, cacheKey("daily", q), &out, func(recs []models.DerivedRecord) any {
		out = Daily(recs)
		return out
	}, q)
	return out, err
}

func (s *Service) TopCampaigns(ctx context.Context, q models.Query, limit int, metric string) (TopResult, error) {
	if !validMetric(metric) {
		return TopResult{}, invalidMetric(metric)
	}
	limit = clampLimit(limit)
	var out TopResult
	key := cacheKey(fmt.Sprintf("top|%s|%d", metric, limit), q)
	err := s.cached(ctx, key, &out, func(recs []models.DerivedRecord) any {
		ranked, total, _ := Rank(recs, metric, limit)
		out = TopResult{Data: ranked, Count: total, Metric: metric}
		return out
	}, q)
	return out, err
}

func (s *Service) UploadLogs(ctx context.Context, limit int) ([]models.UploadAudit, error) {
	if limit <= 0 {
		limit = DefaultLogsLimit
	}
	logs, err := s.st.UploadLogs(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.UploadAudit{}
	}
	return logs, nil
}

// cached serves key from the cache when possible; otherwise it loads the
// records in insertion order, runs build and stores the result under the
// generation seen before the load.
func (s *Service) cached(ctx context.Context, key string, dst any, build func([]models.DerivedRecord) any, q models.Query) error {
	var (
		gen      int64
		writable bool
	)
	if s.cache != nil {
		g, hit, err := s.cache.Get(ctx, key, dst)
		if err != nil {
			s.log.Warn("report cache read failed", slog.String("key", key), slog.String("err", err.Error()))
		}
		s.rec.CacheLookup(hit)
		if hit {
			return nil
		}
		gen, writable = g, err == nil
	}
	q.OrderBy, q.Desc = "", false
	recs, err := s.st.DerivedRecords(ctx, q)
	if err != nil {
		return err
	}
	v := build(recs)
	if writable {
		if err := s.cache.Set(ctx, gen, key, v); err != nil {
			s.log.Warn("report cache write failed", slog.String("key", key), slog.String("err", err.Error()))
		}
	}
	return nil
}

func cacheKey(kind string, q models.Query) string {
	var from, to string
	if q.From != nil {
		from = q.From.String()
	}
	if q.To != nil {
		to = q.To.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s", kind, from, to, strings.ToLower(q.Campaign))
}

// Summarize totals recs; the averages are plain means of the per-row ratios.
func Summarize(recs []models.DerivedRecord) models.Summary {
	if len(recs) == 0 {
		return models.Summary{}
	}
	var (
		out              models.Summary
		spend, revenue   = make([]float64, 0, len(recs)), make([]float64, 0, len(recs))
		ctrs, cpcs, rois = make([]float64, 0, len(recs)), make([]float64, 0, len(recs)), make([]float64, 0, len(recs))
		campaigns        = map[string]struct{}{}
	)
	for _, r := range recs {
		spend = append(spend, r.Spend)
		revenue = append(revenue, r.Revenue)
		out.TotalImpressions += r.Impressions
		out.TotalClicks += r.Clicks
		ctrs = append(ctrs, r.CTR)
		cpcs = append(cpcs, r.CPC)
		rois = append(rois, r.ROI)
		campaigns[r.CampaignName] = struct{}{}
	}
	out.TotalSpend = calc.Sum(spend...)
	out.TotalRevenue = calc.Sum(revenue...)
	out.AvgCTR = calc.Mean(ctrs)
	out.AvgCPC = calc.Mean(cpcs)
	out.AvgROI = calc.Mean(rois)
	out.NumCampaigns = len(campaigns)
	out.TotalRecords = len(recs)
	return out
}

// Daily groups recs by day in one pass, ascending by date. Ratios are
// recomputed from the day's totals.
func Daily(recs []models.DerivedRecord) []models.DailyPerformance {
	type acc struct {
		row       models.DailyPerformance
		spend     float64
		revenue   float64
		campaigns map[string]struct{}
	}
	byDay := map[models.Day]*acc{}
	var order []models.Day
	for _, r := range recs {
		a, ok := byDay[r.Date]
		if !ok {
			a = &acc{row: models.DailyPerformance{Date: r.Date}, campaigns: map[string]struct{}{}}
			byDay[r.Date] = a
			order = append(order, r.Date)
		}
		a.spend += r.Spend
		a.revenue += r.Revenue
		a.row.Impressions += r.Impressions
		a.row.Clicks += r.Clicks
		a.campaigns[r.CampaignName] = struct{}{}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].Before(order[j].Time) })

	out := make([]models.DailyPerformance, 0, len(order))
	for _, d := range order {
		a := byDay[d]
		a.row.Spend = calc.Round2(a.spend)
		a.row.Revenue = calc.Round2(a.revenue)
		a.row.Campaigns = len(a.campaigns)
		a.row.CTR = calc.CTR(a.row.Clicks, a.row.Impressions)
		a.row.CPC = calc.CPC(a.spend, a.row.Clicks)
		a.row.ROI = calc.ROI(a.revenue, a.spend)
		out = append(out, a.row)
	}
	return out
}

// Rank groups recs by campaign in discovery order, sorts descending by
// metric (stable, so ties keep discovery order) and keeps the first limit
// entries. limit <= 0 keeps all. The second result is the number of
// campaigns before truncation. Money is compared unrounded.
func Rank(recs []models.DerivedRecord, metric string, limit int) ([]models.CampaignRank, int, error) {
	if !validMetric(metric) {
		return nil, 0, invalidMetric(metric)
	}
	byName := map[string]*campaignAcc{}
	var groups []*campaignAcc
	for _, r := range recs {
		a, ok := byName[r.CampaignName]
		if !ok {
			a = &campaignAcc{row: models.CampaignRank{CampaignName: r.CampaignName}}
			byName[r.CampaignName] = a
			groups = append(groups, a)
		}
		a.spend += r.Spend
		a.revenue += r.Revenue
		a.row.Impressions += r.Impressions
		a.row.Clicks += r.Clicks
		a.row.Records++
	}
	for _, a := range groups {
		a.row.Spend = calc.Round2(a.spend)
		a.row.Revenue = calc.Round2(a.revenue)
		a.row.CTR = calc.CTR(a.row.Clicks, a.row.Impressions)
		a.row.ROI = calc.ROI(a.revenue, a.spend)
	}

	key := rankKey(metric)
	sort.SliceStable(groups, func(i, j int) bool { return key(groups[i]) > key(groups[j]) })

	total := len(groups)
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	out := make([]models.CampaignRank, 0, len(groups))
	for _, a := range groups {
		out = append(out, a.row)
	}
	return out, total, nil
}

type campaignAcc struct {
	row            models.CampaignRank
	spend, revenue float64
}

func rankKey(metric string) func(*campaignAcc) float64 {
	switch metric {
	case "impressions":
		return func(a *campaignAcc) float64 { return float64(a.row.Impressions) }
	case "clicks":
		return func(a *campaignAcc) float64 { return float64(a.row.Clicks) }
	case "revenue":
		return func(a *campaignAcc) float64 { return a.revenue }
	case "ctr":
		return func(a *campaignAcc) float64 { return a.row.CTR }
	case "roi":
		return func(a *campaignAcc) float64 { return a.row.ROI }
	default:
		return func(a *campaignAcc) float64 { return a.spend }
	}
}

func validMetric(m string) bool {
	for _, v := range RankMetrics {
		if v == m {
			return true
		}
	}
	return false
}

func invalidMetric(m string) error {
	return fmt.Errorf("%w %q. Must be one of: %s", ErrInvalidMetric, m, strings.Join(RankMetrics, ", "))
}

// AtoiDef parses s, falling back to d.
func AtoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

func clampLimit(limit int) int {
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
