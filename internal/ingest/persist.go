package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/campaign-etl/internal/models"
)

// Store is the write side of the repository used by the pipeline.
type Store interface {
	// SaveUpload writes the raw rows, derived rows and audit atomically.
	SaveUpload(ctx context.Context, audit models.UploadAudit, recs []models.DerivedRecord) error
	RecordAudit(ctx context.Context, audit models.UploadAudit) error
}

// Persister writes one upload and guarantees exactly one audit row for it.
type Persister struct {
	st  Store
	log *slog.Logger
	now func() time.Time
}

func NewPersister(st Store, log *slog.Logger) *Persister {
	return &Persister{st: st, log: log, now: time.Now}
}

// Persist stores recs under a new upload id. On failure nothing from recs
// survives, a failed audit is recorded and a PersistenceError is returned.
func (p *Persister) Persist(ctx context.Context, recs []models.DerivedRecord, filename string) (int, error) {
	audit := models.UploadAudit{
		ID:           uuid.NewString(),
		Filename:     filename,
		RowsUploaded: len(recs),
		Status:       models.StatusSuccess,
		UploadedAt:   p.now().UTC(),
	}
	stamped := make([]models.DerivedRecord, len(recs))
	for i, r := range recs {
		r.UploadID = audit.ID
		stamped[i] = r
	}

	if err := p.save(ctx, audit, stamped); err != nil {
		perr := newError(KindPersistence, "Database error: "+err.Error(), err)
		p.recordFailure(ctx, filename, perr.Msg)
		return 0, perr
	}
	p.log.Info("upload persisted", slog.String("upload_id", audit.ID), slog.String("filename", filename), slog.Int("rows", len(recs)))
	return len(recs), nil
}

func (p *Persister) save(ctx context.Context, audit models.UploadAudit, recs []models.DerivedRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during save: %v", r)
		}
	}()
	return p.st.SaveUpload(ctx, audit, recs)
}

func (p *Persister) recordFailure(ctx context.Context, filename, msg string) {
	if err := recordFailedAudit(ctx, p.st, filename, msg, p.now()); err != nil {
		p.log.Error("record failed audit", slog.String("filename", filename), slog.String("err", err.Error()))
	}
}

func recordFailedAudit(ctx context.Context, st Store, filename, msg string, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during audit: %v", r)
		}
	}()
	m := msg
	return st.RecordAudit(ctx, models.UploadAudit{
		ID:           uuid.NewString(),
		Filename:     filename,
		RowsUploaded: 0,
		Status:       models.StatusFailed,
		UploadedAt:   at.UTC(),
		ErrorMessage: &m,
	})
}
