package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/AngelCh415/campaign-etl/internal/models"
)

//go:embed schema.sql
var schema string

var recordColumns = []string{"upload_id", "campaign_name", "date", "impressions", "clicks", "spend", "revenue"}

// PostgresStore implements Repository against PostgreSQL.
type PostgresStore struct{ db *sql.DB }

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// Open connects to dsn without verifying connectivity; call Ping for that.
func Open(dsn string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	return db, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PostgresStore) SaveUpload(ctx context.Context, audit models.UploadAudit, recs []models.DerivedRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upload: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = copyRows(ctx, tx, "raw_marketing_data", recordColumns, len(recs), func(i int) []any {
		r := recs[i]
		return []any{r.UploadID, r.CampaignName, r.Date, r.Impressions, r.Clicks, r.Spend, r.Revenue}
	})
	if err != nil {
		return fmt.Errorf("insert raw records: %w", err)
	}

	derivedCols := append(append([]string{}, recordColumns...), "ctr", "cpc", "roi")
	err = copyRows(ctx, tx, "processed_metrics", derivedCols, len(recs), func(i int) []any {
		r := recs[i]
		return []any{r.UploadID, r.CampaignName, r.Date, r.Impressions, r.Clicks, r.Spend, r.Revenue, r.CTR, r.CPC, r.ROI}
	})
	if err != nil {
		return fmt.Errorf("insert derived records: %w", err)
	}

	if err = insertAudit(ctx, tx, audit); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upload: %w", err)
	}
	return nil
}

// copyRows bulk-loads n rows with COPY FROM STDIN.
func copyRows(ctx context.Context, tx *sql.Tx, table string, cols []string, n int, row func(int) []any) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, cols...))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return err
		}
	}
	_, err = stmt.ExecContext(ctx)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, ex execer, a models.UploadAudit) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO upload_logs (id, filename, rows_uploaded, status, uploaded_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Filename, a.RowsUploaded, string(a.Status), a.UploadedAt, a.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert upload log: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordAudit(ctx context.Context, audit models.UploadAudit) error {
	return insertAudit(ctx, s.db, audit)
}

func (s *PostgresStore) DerivedRecords(ctx context.Context, q models.Query) ([]models.DerivedRecord, error) {
	col, ok := orderColumns[q.OrderBy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrder, q.OrderBy)
	}

	query := `
		SELECT upload_id::text, campaign_name, date, impressions, clicks, spend, revenue, ctr, cpc, roi
		FROM processed_metrics
		WHERE TRUE`
	var args []any
	idx := 1
	if q.From != nil {
		query += fmt.Sprintf(" AND date >= $%d", idx)
		args = append(args, q.From.Time)
		idx++
	}
	if q.To != nil {
		query += fmt.Sprintf(" AND date <= $%d", idx)
		args = append(args, q.To.Time)
		idx++
	}
	if q.Campaign != "" {
		query += fmt.Sprintf(` AND campaign_name ILIKE $%d ESCAPE '\'`, idx)
		args = append(args, "%"+escapeLike(q.Campaign)+"%")
		idx++
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query derived records: %w", err)
	}
	defer rows.Close()

	var out []models.DerivedRecord
	for rows.Next() {
		var r models.DerivedRecord
		if err := rows.Scan(&r.UploadID, &r.CampaignName, &r.Date, &r.Impressions, &r.Clicks,
			&r.Spend, &r.Revenue, &r.CTR, &r.CPC, &r.ROI); err != nil {
			return nil, fmt.Errorf("scan derived record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate derived records: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PostgresStore) Campaigns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT campaign_name FROM processed_metrics ORDER BY campaign_name`)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UploadLogs(ctx context.Context, limit int) ([]models.UploadAudit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, filename, rows_uploaded, status, uploaded_at, error_message
		FROM upload_logs
		ORDER BY uploaded_at DESC, seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query upload logs: %w", err)
	}
	defer rows.Close()

	var out []models.UploadAudit
	for rows.Next() {
		var (
			a      models.UploadAudit
			status string
			msg    sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Filename, &a.RowsUploaded, &status, &a.UploadedAt, &msg); err != nil {
			return nil, fmt.Errorf("scan upload log: %w", err)
		}
		a.Status = models.UploadStatus(status)
		if msg.Valid {
			a.ErrorMessage = &msg.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
