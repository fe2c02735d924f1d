package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/AngelCh415/campaign-etl/internal/telemetry"
)

// Stage is a step of the upload pipeline.
type Stage int

const (
	StageReading Stage = iota
	StageValidating
	StageCleaning
	StageCalculating
	StagePersisting
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageReading:
		return "reading"
	case StageValidating:
		return "validating"
	case StageCleaning:
		return "cleaning"
	case StageCalculating:
		return "calculating_metrics"
	case StagePersisting:
		return "persisting"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Result is the outcome of one upload. Failures are values, never errors.
type Result struct {
	OK         bool
	Message    string
	RowsLoaded int
	Stage      Stage
	Kind       Kind
}

// Archiver keeps a copy of an uploaded source file.
type Archiver interface {
	Archive(ctx context.Context, filename string, data []byte) (string, error)
}

// Invalidator drops cached reports after new data lands.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type ETL struct {
	st        Store
	persister *Persister
	log       *slog.Logger
	archiver  Archiver
	cache     Invalidator
	rec       *telemetry.Recorder
	now       func() time.Time
}

type Option func(*ETL)

func WithArchiver(a Archiver) Option { return func(e *ETL) { e.archiver = a } }

func WithCache(c Invalidator) Option { return func(e *ETL) { e.cache = c } }

func WithTelemetry(r *telemetry.Recorder) Option { return func(e *ETL) { e.rec = r } }

func NewETL(st Store, log *slog.Logger, opts ...Option) *ETL {
	e := &ETL{st: st, log: log, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	e.persister = NewPersister(st, log)
	e.persister.now = e.now
	return e
}

// Run processes the CSV file at path, recording it under filename.
func (e *ETL) Run(ctx context.Context, path, filename string) Result {
	f, err := os.Open(path)
	if err != nil {
		return e.fail(ctx, filename, StageReading, newError(KindRead, "Unable to read file: "+err.Error(), err), e.now())
	}
	defer f.Close()
	return e.Process(ctx, f, filename)
}

// Process runs Reading → Validating → Cleaning → CalculatingMetrics →
// Persisting. Every call leaves exactly one upload audit behind: the
// orchestrator writes it for failures before Persisting, the Persister
// afterwards. Process never panics; failures come back as a Result.
func (e *ETL) Process(ctx context.Context, r io.Reader, filename string) (res Result) {
	start := e.now()
	stage := StageReading
	defer func() {
		if p := recover(); p != nil {
			err := newError(KindUnexpected, fmt.Sprintf("%v", p), nil)
			if stage < StagePersisting {
				res = e.fail(ctx, filename, stage, err, start)
				return
			}
			// the Persister has already accounted for the audit row
			e.log.Error("upload panicked after persisting started",
				slog.String("filename", filename),
				slog.String("stage", stage.String()),
				slog.Any("panic", p))
			e.rec.UploadFailed(stage.String(), string(err.Kind), e.now().Sub(start))
			res = Result{OK: false, Message: err.Error(), Stage: stage, Kind: err.Kind}
		}
	}()

	log := e.log.With(slog.String("filename", filename))

	log.Debug("pipeline stage", slog.String("stage", stage.String()))
	data, err := io.ReadAll(r)
	if err != nil {
		return e.fail(ctx, filename, stage, newError(KindRead, "Unable to read file: "+err.Error(), err), start)
	}
	tbl, err := ReadTable(bytes.NewReader(data))
	if err != nil {
		return e.fail(ctx, filename, stage, err, start)
	}

	stage = StageValidating
	log.Debug("pipeline stage", slog.String("stage", stage.String()), slog.Int("rows", len(tbl.Rows)))
	ds, err := Validate(tbl)
	if err != nil {
		return e.fail(ctx, filename, stage, err, start)
	}
	log.Debug(ValidationPassed)

	stage = StageCleaning
	log.Debug("pipeline stage", slog.String("stage", stage.String()))
	ds = Clean(ds)

	stage = StageCalculating
	log.Debug("pipeline stage", slog.String("stage", stage.String()), slog.Int("rows", len(ds.Rows)))
	recs := Calculate(ds)

	stage = StagePersisting
	log.Debug("pipeline stage", slog.String("stage", stage.String()))
	n, err := e.persister.Persist(ctx, recs, filename)
	if err != nil {
		kind := KindOf(err)
		log.Warn("upload failed", slog.String("stage", stage.String()), slog.String("kind", string(kind)), slog.String("err", err.Error()))
		e.rec.UploadFailed(stage.String(), string(kind), e.now().Sub(start))
		return Result{OK: false, Message: err.Error(), Stage: stage, Kind: kind}
	}

	stage = StageDone
	e.afterLoad(ctx, log, filename, data)
	e.rec.UploadSucceeded(n, e.now().Sub(start))
	log.Info("upload complete", slog.Int("rows", n))
	return Result{OK: true, Message: "success", RowsLoaded: n, Stage: stage}
}

// afterLoad runs the best-effort follow-ups of a successful upload.
func (e *ETL) afterLoad(ctx context.Context, log *slog.Logger, filename string, data []byte) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("post-load step panicked", slog.Any("panic", p))
		}
	}()
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx); err != nil {
			log.Warn("report cache invalidation failed", slog.String("err", err.Error()))
		}
	}
	if e.archiver != nil {
		key, err := e.archiver.Archive(ctx, filename, data)
		if err != nil {
			log.Warn("archive upload failed", slog.String("err", err.Error()))
			return
		}
		log.Debug("upload archived", slog.String("key", key))
	}
}

func (e *ETL) fail(ctx context.Context, filename string, stage Stage, err error, start time.Time) Result {
	kind := KindOf(err)
	e.log.Warn("upload failed",
		slog.String("filename", filename),
		slog.String("stage", stage.String()),
		slog.String("kind", string(kind)),
		slog.String("err", err.Error()))
	if aerr := recordFailedAudit(ctx, e.st, filename, err.Error(), e.now()); aerr != nil {
		e.log.Error("record failed audit", slog.String("filename", filename), slog.String("err", aerr.Error()))
	}
	e.rec.UploadFailed(stage.String(), string(kind), e.now().Sub(start))
	return Result{OK: false, Message: err.Error(), Stage: stage, Kind: kind}
}
