package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/osvaldoandrade/collageq/internal/backoff"
	"github.com/osvaldoandrade/collageq/internal/metrics"
	"github.com/osvaldoandrade/collageq/pkg/config"
	"github.com/osvaldoandrade/collageq/pkg/domain"
)

// ErrTooManyFailures stops a watch after the configured number of
// consecutive transport failures.
var ErrTooManyFailures = errors.New("too many consecutive poll failures")

// ErrAlreadyStarted rejects reuse of a watcher. A new job gets a new watcher.
var ErrAlreadyStarted = errors.New("watcher already started; create a new one per job")

// StatusFunc fetches the current snapshot of a job.
type StatusFunc func(ctx context.Context, jobID string) (domain.Job, error)

type Config struct {
	// Interval between successful polls. Defaults to 2s.
	Interval time.Duration
	// MaxConsecutiveFailures ends the watch when that many transport
	// failures occur in a row. Zero keeps polling indefinitely.
	MaxConsecutiveFailures int

	BackoffPolicy string
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

// FromConfig derives poll tuning from loaded configuration. A negative
// configured ceiling maps to zero, which keeps polling indefinitely.
func FromConfig(c *config.Config) Config {
	maxFailures := c.MaxConsecutiveFailures
	if maxFailures < 0 {
		maxFailures = 0
	}
	return Config{
		Interval:               time.Duration(c.PollIntervalMillis) * time.Millisecond,
		MaxConsecutiveFailures: maxFailures,
		BackoffPolicy:          c.BackoffPolicy,
		BackoffBase:            time.Duration(c.BackoffBaseSeconds) * time.Second,
		BackoffMax:             time.Duration(c.BackoffMaxSeconds) * time.Second,
	}
}

// Update carries one applied snapshot or one transient poll failure.
type Update struct {
	Job domain.Job
	Err error
}

// Watcher drives the poll loop for a single job. Snapshots are applied in
// issuance order: a response can never overwrite one issued after it, and a
// non-terminal snapshot can never overwrite a terminal one.
type Watcher struct {
	jobID    string
	status   StatusFunc
	cfg      Config
	logger   *slog.Logger
	onUpdate func(Update)
	rng      *rand.Rand

	seq atomic.Uint64

	mu         sync.Mutex
	last       domain.Job
	appliedSeq uint64
	terminal   bool
	started    bool
}

// New creates a watcher seeded with the locally synthesized snapshot held
// between submission and the first poll response.
func New(initial domain.Job, status StatusFunc, cfg Config, logger *slog.Logger, onUpdate func(Update)) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BackoffPolicy == "" {
		cfg.BackoffPolicy = "exp_equal_jitter"
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = cfg.Interval
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.MaxConsecutiveFailures < 0 {
		cfg.MaxConsecutiveFailures = 0
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		jobID:    initial.ID,
		status:   status,
		cfg:      cfg,
		logger:   logger,
		onUpdate: onUpdate,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		last:     initial,
	}
}

// JobID returns the job this watcher is bound to.
func (w *Watcher) JobID() string { return w.jobID }

// Snapshot returns the last applied view of the job.
func (w *Watcher) Snapshot() domain.Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Terminal reports whether a terminal snapshot has been latched.
func (w *Watcher) Terminal() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminal
}

// NextSeq allocates an issuance number for a poll. Callers integrating
// manual status refreshes allocate before issuing the request and pass the
// number to Apply with the response.
func (w *Watcher) NextSeq() uint64 {
	return w.seq.Add(1)
}

// Apply installs a snapshot observed under issuance number seq and reports
// whether it became the current view. Stale responses are discarded: seq at
// or below the last applied one loses, and once a terminal snapshot is
// latched no non-terminal snapshot can replace it.
func (w *Watcher) Apply(job domain.Job, seq uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminal && !job.Status.Terminal() {
		metrics.PollDiscardedTotal.Inc()
		return false
	}
	if seq <= w.appliedSeq {
		metrics.PollDiscardedTotal.Inc()
		return false
	}
	w.appliedSeq = seq
	w.last = job
	if job.Status.Terminal() {
		w.terminal = true
	}
	return true
}

// Watch polls until a terminal status is applied, the context is cancelled,
// or the consecutive-failure ceiling is hit. Transient failures are surfaced
// through the update callback and do not stop the loop. After cancellation
// no snapshot is applied, even if a response was already in flight.
func (w *Watcher) Watch(ctx context.Context) (domain.Job, error) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return domain.Job{}, ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	start := time.Now()
	failures := 0
	timer := time.NewTimer(w.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.Snapshot(), ctx.Err()
		case <-timer.C:
		}

		seq := w.NextSeq()
		job, err := w.status(ctx, w.jobID)
		if ctx.Err() != nil {
			// The response lost the race against cancellation; its result
			// must not mutate state.
			metrics.PollDiscardedTotal.Inc()
			return w.Snapshot(), ctx.Err()
		}
		if err != nil {
			failures++
			metrics.PollTotal.WithLabelValues("error").Inc()
			w.logger.Warn("status poll failed", "job_id", w.jobID, "consecutive", failures, "err", err)
			w.emit(Update{Err: err})
			if w.cfg.MaxConsecutiveFailures > 0 && failures >= w.cfg.MaxConsecutiveFailures {
				return w.Snapshot(), fmt.Errorf("%w: %d attempts", ErrTooManyFailures, failures)
			}
			timer.Reset(backoff.Delay(w.cfg.BackoffPolicy, w.cfg.BackoffBase, w.cfg.BackoffMax, failures, w.rng))
			continue
		}

		failures = 0
		metrics.PollTotal.WithLabelValues("ok").Inc()
		if w.Apply(job, seq) {
			w.emit(Update{Job: job})
		}

		if snap := w.Snapshot(); snap.Status.Terminal() {
			metrics.WatchDurationSeconds.WithLabelValues(string(snap.Status)).Observe(time.Since(start).Seconds())
			w.logger.Info("job reached terminal status", "job_id", w.jobID, "status", snap.Status)
			return snap, nil
		}
		timer.Reset(w.cfg.Interval)
	}
}

func (w *Watcher) emit(u Update) {
	if w.onUpdate != nil {
		w.onUpdate(u)
	}
}
