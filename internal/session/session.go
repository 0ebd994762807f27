package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/osvaldoandrade/collageq/internal/poller"
	"github.com/osvaldoandrade/collageq/internal/upload"
	"github.com/osvaldoandrade/collageq/pkg/client"
	"github.com/osvaldoandrade/collageq/pkg/domain"
)

var (
	// ErrNoJob is returned when a watch or download is attempted before any
	// submission in this session.
	ErrNoJob = errors.New("no active collage job")

	// ErrNotCompleted rejects a download while the job has no artifact yet.
	ErrNotCompleted = errors.New("job has not completed; nothing to download")
)

// API is the slice of the backend client a session drives.
type API interface {
	CreateCollage(ctx context.Context, cfg domain.CollageConfig, parts []client.FilePart) (domain.CreateResponse, error)
	Status(ctx context.Context, jobID string) (domain.Job, error)
	Download(ctx context.Context, jobID string, formatHint domain.OutputFormat) (*client.Artifact, error)
}

var _ API = (*client.Client)(nil)

// Session owns the upload set, the current job value and the active watcher
// for one collage lifecycle. There is exactly one of each: a successful
// submission replaces the whole trio, and Reset tears it down. Nothing here
// lives in package state, so a discarded session cannot resurrect stale
// updates.
type Session struct {
	api    API
	files  *upload.Set
	poll   poller.Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	job      domain.Job
	hasJob   bool
	lastCfg  domain.CollageConfig
	watcher  *poller.Watcher
	watched  bool
	cancel   context.CancelFunc
	onUpdate func(poller.Update)
}

func New(api API, files *upload.Set, poll poller.Config, logger *slog.Logger, now func() time.Time) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if now == nil {
		now = time.Now
	}
	return &Session{api: api, files: files, poll: poll, logger: logger, now: now}
}

// Files exposes the staged upload set.
func (s *Session) Files() *upload.Set { return s.files }

// Job returns the latest snapshot of the current job, if any.
func (s *Session) Job() (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job, s.hasJob
}

// Submit sends the staged files and configuration to the backend and, on
// success, replaces the session's lifecycle: the previous watcher is
// cancelled and a fresh one is bound to the new job. A failed submission
// mutates nothing, so an earlier job keeps its state.
func (s *Session) Submit(ctx context.Context, cfg domain.CollageConfig) (domain.Job, error) {
	if err := s.files.Ready(); err != nil {
		return domain.Job{}, err
	}
	if err := cfg.Validate(); err != nil {
		return domain.Job{}, err
	}
	parts, err := client.FileParts(s.files.Files())
	if err != nil {
		return domain.Job{}, err
	}

	resp, err := s.api.CreateCollage(ctx, cfg, parts)
	if err != nil {
		return domain.Job{}, err
	}

	job := domain.NewPendingJob(resp.JobID, s.now())
	if resp.Status != "" {
		job.Status = resp.Status
	}
	job.Message = resp.Message
	job.FileCount = s.files.Count()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()

	s.watcher = s.newWatcherLocked(job)
	s.watched = false
	s.job = job
	s.hasJob = true
	s.lastCfg = cfg

	s.logger.Info("session job started", "job_id", job.ID, "files", job.FileCount)
	return job, nil
}

// newWatcherLocked must be called with the mutex held.
func (s *Session) newWatcherLocked(seed domain.Job) *poller.Watcher {
	var w *poller.Watcher
	w = poller.New(seed, s.api.Status, s.poll, s.logger, func(u poller.Update) { s.relay(w, u) })
	return w
}

// relay mirrors watcher updates into the session's job value and forwards
// them to the active watch callback. Updates from a watcher that is no
// longer the session's current one are dropped.
func (s *Session) relay(w *poller.Watcher, u poller.Update) {
	s.mu.Lock()
	if s.watcher != w {
		s.mu.Unlock()
		return
	}
	if u.Err == nil {
		s.job = u.Job
	}
	cb := s.onUpdate
	s.mu.Unlock()

	if cb != nil {
		cb(u)
	}
}

// Watch runs the current job's poll loop until a terminal status, a poll
// failure ceiling, or cancellation. onUpdate receives every applied snapshot
// and every transient poll failure. Reset and a subsequent Submit both
// cancel an in-progress Watch.
func (s *Session) Watch(ctx context.Context, onUpdate func(poller.Update)) (domain.Job, error) {
	s.mu.Lock()
	w := s.watcher
	if w == nil {
		s.mu.Unlock()
		return domain.Job{}, ErrNoJob
	}
	if w.Terminal() {
		// Nothing to poll; the terminal snapshot is already latched.
		job := s.job
		s.mu.Unlock()
		return job, nil
	}
	if s.watched {
		// The previous watch was cancelled mid-flight. Watchers are single
		// use, so reseed a fresh one from the latest snapshot.
		w = s.newWatcherLocked(w.Snapshot())
		s.watcher = w
	}
	s.watched = true
	wctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.onUpdate = onUpdate
	s.mu.Unlock()
	defer cancel()

	final, err := w.Watch(wctx)

	s.mu.Lock()
	if s.watcher == w {
		s.onUpdate = nil
		s.cancel = nil
		if err == nil {
			s.job = final
		}
	}
	s.mu.Unlock()
	return final, err
}

// Download fetches the finished artifact for the current job. The output
// format submitted with the job decides the suggested filename when the
// server offers none.
func (s *Session) Download(ctx context.Context) (*client.Artifact, error) {
	s.mu.Lock()
	if !s.hasJob {
		s.mu.Unlock()
		return nil, ErrNoJob
	}
	job := s.job
	hint := s.lastCfg.Format
	s.mu.Unlock()

	if !job.OutputAvailable() {
		return nil, ErrNotCompleted
	}
	return s.api.Download(ctx, job.ID, hint)
}

// Reset tears the session down: the watcher is cancelled so no in-flight
// poll response can mutate anything, the job value is discarded, and every
// staged file handle is released exactly once.
func (s *Session) Reset() {
	s.mu.Lock()
	s.cancelLocked()
	s.watcher = nil
	s.watched = false
	s.onUpdate = nil
	s.job = domain.Job{}
	s.hasJob = false
	s.lastCfg = domain.CollageConfig{}
	s.mu.Unlock()

	s.files.CloseAll()
	s.logger.Info("session reset")
}

// cancelLocked must be called with the mutex held.
func (s *Session) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
