package stubserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/collageq/internal/metrics"
	"github.com/osvaldoandrade/collageq/internal/tracing"
	"github.com/osvaldoandrade/collageq/pkg/domain"
)

var (
	ErrJobNotFound = errors.New("job not found")

	// ErrArtifactNotReady rejects a download before the job has completed.
	ErrArtifactNotReady = errors.New("job is not completed")
)

// Options shapes the simulated lifecycle. Jobs sit in pending for PendingFor,
// then ramp progress through processing for ProcessingFor before completing.
// Tests shrink both to milliseconds.
type Options struct {
	PendingFor    time.Duration
	ProcessingFor time.Duration
}

func DefaultOptions() Options {
	return Options{PendingFor: 1 * time.Second, ProcessingFor: 6 * time.Second}
}

// record is one tracked job. The lifecycle is derived from the creation
// time on every read, so the store never needs a background ticker.
type record struct {
	cfg      domain.CollageConfig
	names    []string
	created  time.Time
	failWith string

	// Trace context of the create request, so the simulated processing
	// span can be parented to it when the job finishes.
	traceParent string
	traceState  string

	finished   bool
	artifact   []byte
	objectPath string
}

// Store is the in-memory job table behind the stub API. All access goes
// through the mutex; snapshots are computed values, so callers never see a
// half-written job.
type Store struct {
	mu       sync.Mutex
	recs     map[string]*record
	opts     Options
	uploader Uploader
	logger   *slog.Logger
	now      func() time.Time
}

func NewStore(opts Options, uploader Uploader, logger *slog.Logger, now func() time.Time) *Store {
	if opts.PendingFor <= 0 {
		opts.PendingFor = DefaultOptions().PendingFor
	}
	if opts.ProcessingFor <= 0 {
		opts.ProcessingFor = DefaultOptions().ProcessingFor
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		recs:     make(map[string]*record),
		opts:     opts,
		uploader: uploader,
		logger:   logger,
		now:      now,
	}
}

// Create registers a new job and returns its initial pending snapshot. A
// staged filename containing "corrupt" dooms the job: it will fail midway
// through processing instead of completing, which gives tests a
// deterministic failure path.
func (s *Store) Create(ctx context.Context, cfg domain.CollageConfig, names []string) domain.Job {
	rec := &record{
		cfg:     cfg,
		names:   append([]string(nil), names...),
		created: s.now().UTC(),
	}
	rec.traceParent, rec.traceState = tracing.TraceContextStrings(ctx)
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), "corrupt") {
			rec.failWith = fmt.Sprintf("cannot process %s: corrupted image data", name)
			break
		}
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.recs[id] = rec
	s.mu.Unlock()

	metrics.StubJobsCreatedTotal.Inc()
	s.logger.Info("stub job created", "job_id", id, "files", len(names), "layout", cfg.Layout)

	job := domain.NewPendingJob(id, rec.created)
	job.FileCount = len(names)
	job.Message = "collage job created"
	return job
}

// Snapshot derives the job's current state from elapsed time. Observing a
// terminal state finalizes the record: the finished metric fires once and
// the artifact is written through the uploader.
func (s *Store) Snapshot(ctx context.Context, id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return s.deriveLocked(ctx, id, rec), nil
}

// deriveLocked must be called with the mutex held.
func (s *Store) deriveLocked(ctx context.Context, id string, rec *record) domain.Job {
	job := domain.Job{
		ID:        id,
		Status:    domain.StatusPending,
		CreatedAt: rec.created,
		FileCount: len(rec.names),
	}

	elapsed := s.now().UTC().Sub(rec.created)
	failAt := s.opts.PendingFor + s.opts.ProcessingFor/2
	doneAt := s.opts.PendingFor + s.opts.ProcessingFor

	switch {
	case rec.failWith != "" && elapsed >= failAt:
		end := rec.created.Add(failAt)
		job.Status = domain.StatusFailed
		job.Progress = 50
		job.Error = rec.failWith
		job.CompletedAt = end.Format(time.RFC3339)
		s.finishLocked(ctx, id, rec, job, end)

	case elapsed >= doneAt:
		end := rec.created.Add(doneAt)
		job.Status = domain.StatusCompleted
		job.Progress = 100
		job.OutputFile = artifactName(id, rec.cfg.Format)
		job.Message = "collage generated"
		job.CompletedAt = end.Format(time.RFC3339)
		s.finishLocked(ctx, id, rec, job, end)

	case elapsed >= s.opts.PendingFor:
		job.Status = domain.StatusProcessing
		frac := float64(elapsed-s.opts.PendingFor) / float64(s.opts.ProcessingFor)
		job.Progress = 5 + int(90*frac)
		job.Message = "placing images"

	default:
		job.Message = "waiting for a worker"
	}
	return job
}

// finishLocked runs once per record, on the first observation of a terminal
// state. It emits the simulated processing span, parented to the trace
// context captured at creation, spanning created through end. Must be called
// with the mutex held.
func (s *Store) finishLocked(ctx context.Context, id string, rec *record, job domain.Job, end time.Time) {
	if rec.finished {
		return
	}
	rec.finished = true
	metrics.StubJobsFinishedTotal.WithLabelValues(string(job.Status)).Inc()

	spanCtx := tracing.ContextWithRemoteParent(ctx, rec.traceParent, rec.traceState)
	_, span := otel.Tracer("collageq/stub").Start(spanCtx, "collage.generate",
		trace.WithTimestamp(rec.created),
		trace.WithAttributes(
			attribute.String("collage.job_id", id),
			attribute.Int("collage.file_count", len(rec.names)),
			attribute.String("collage.layout", string(rec.cfg.Layout)),
			attribute.String("collage.status", string(job.Status)),
		),
	)

	if job.Status != domain.StatusCompleted {
		span.SetStatus(codes.Error, job.Error)
		span.End(trace.WithTimestamp(end))
		s.logger.Info("stub job failed", "job_id", id, "error", job.Error)
		return
	}

	rec.artifact = artifactBytes(rec.cfg.Format, id)
	rec.objectPath = job.OutputFile
	if s.uploader != nil {
		if url, err := s.uploader.UploadBytes(ctx, rec.objectPath, artifactContentType(rec.cfg.Format), rec.artifact); err != nil {
			span.RecordError(err)
			s.logger.Warn("artifact write failed", "job_id", id, "err", err)
		} else {
			s.logger.Info("artifact written", "job_id", id, "url", url)
		}
	}
	span.End(trace.WithTimestamp(end))
}

// Artifact returns the finished collage bytes for a job.
func (s *Store) Artifact(ctx context.Context, id string) ([]byte, string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, "", "", ErrJobNotFound
	}
	job := s.deriveLocked(ctx, id, rec)
	if !job.OutputAvailable() || rec.artifact == nil {
		return nil, "", "", ErrArtifactNotReady
	}
	data := append([]byte(nil), rec.artifact...)
	return data, artifactContentType(rec.cfg.Format), job.OutputFile, nil
}

// List returns every tracked job, oldest first.
func (s *Store) List(ctx context.Context) []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]domain.Job, 0, len(s.recs))
	for id, rec := range s.recs {
		jobs = append(jobs, s.deriveLocked(ctx, id, rec))
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Delete removes a job and its artifact. It reports whether the job existed.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	rec, ok := s.recs[id]
	if ok {
		delete(s.recs, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	if rec.objectPath != "" && s.uploader != nil {
		if err := s.uploader.Remove(ctx, rec.objectPath); err != nil {
			s.logger.Warn("artifact remove failed", "job_id", id, "err", err)
		}
	}
	s.logger.Info("stub job removed", "job_id", id)
	return true
}

// Count returns how many jobs the store tracks.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func artifactName(id string, format domain.OutputFormat) string {
	return "collage_" + id + "." + format.Ext()
}

func artifactContentType(format domain.OutputFormat) string {
	if format == domain.FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0}
)

// artifactBytes fabricates a stable payload with a real image magic number,
// good enough for content-type sniffing on the client side.
func artifactBytes(format domain.OutputFormat, id string) []byte {
	magic := jpegMagic
	if format == domain.FormatPNG {
		magic = pngMagic
	}
	payload := []byte("collageq synthetic artifact " + id)
	return append(append([]byte(nil), magic...), payload...)
}
