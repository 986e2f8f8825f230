// Package deleter runs fire-and-forget background deletion of superseded
// reference blobs. Enqueue never blocks the request path; once accepted, a
// deletion runs to its retry budget or gives up silently. A stale blob is a
// recoverable leak, never a user-visible failure.
package deleter

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/faceauth/internal/blob"
	"github.com/geocoder89/faceauth/internal/observability"
)

type Config struct {
	QueueSize     int
	MaxAttempts   int
	DeleteTimeout time.Duration
}

type Deleter struct {
	cfg   Config
	store blob.Store
	tasks chan string
	log   *slog.Logger
	prom  *observability.Prom
}

func New(cfg Config, store blob.Store, log *slog.Logger, prom *observability.Prom) *Deleter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}

	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = 5 * time.Second
	}

	return &Deleter{
		cfg:   cfg,
		store: store,
		tasks: make(chan string, cfg.QueueSize),
		log:   log,
		prom:  prom,
	}
}

// Enqueue hands a blob ref to the background worker. When the queue is full
// the ref is dropped and logged; blocking the caller's response is never an
// option here.
func (d *Deleter) Enqueue(ref string) {
	if ref == "" {
		return
	}

	select {
	case d.tasks <- ref:
		d.observeDepth()
	default:
		d.log.Warn("deletion queue full, dropping blob ref", "ref", ref)
		d.count("dropped")
	}
}

// Run consumes the queue until ctx is cancelled. Cancellation stops pulling
// new work; an in-flight deletion still runs to its retry budget.
func (d *Deleter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.log.Info("deletion worker shutting down", "queued", len(d.tasks))
			return

		case ref := <-d.tasks:
			d.observeDepth()
			d.deleteWithRetry(ref)
		}
	}
}

func (d *Deleter) deleteWithRetry(ref string) {
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt - 1))
			d.count("retry")
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DeleteTimeout)
		err := d.store.Delete(ctx, ref)
		cancel()

		if err == nil {
			d.count("done")
			return
		}

		d.log.Warn("blob deletion attempt failed", "ref", ref, "attempt", attempt+1, "err", err)
	}

	d.log.Error("giving up on blob deletion", "ref", ref, "attempts", d.cfg.MaxAttempts)
	d.count("gave_up")
}

func (d *Deleter) count(result string) {
	if d.prom != nil {
		d.prom.DeletionResults.WithLabelValues(result).Inc()
	}
}

func (d *Deleter) observeDepth() {
	if d.prom != nil {
		d.prom.DeletionQueueDepth.Set(float64(len(d.tasks)))
	}
}
