// Package bulk drives a bulk alt text run from the client side: batches are
// requested one at a time with a pause between them until the server reports
// no more work, the operator cancels, or a request fails.
package bulk

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/validation"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// Client is what the controller needs from the batch endpoint
type Client interface {
	StartRun(ctx context.Context, req models.StartRunRequest) (models.StartRunResponse, error)
	ProcessBatch(ctx context.Context, req models.BatchRequest) (models.BatchResponse, error)
	// CancelRun tells the server no more batches will come
	CancelRun(ctx context.Context, runID string) error
}

// Observer is notified from the run goroutine after every batch and once at the end
type Observer interface {
	OnProgress(State)
	OnFinish(Result)
}

type Option func(*Controller)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTimer replaces time.After for the pause between batches
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Controller) { c.after = after }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = log }
}

// Controller starts runs against one endpoint
type Controller struct {
	client    Client
	now       func() time.Time
	after     func(time.Duration) <-chan time.Time
	observers []Observer
	log       logrus.FieldLogger
}

func NewController(client Client, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		now:    time.Now,
		after:  time.After,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start validates the options, opens a run on the server and begins
// processing in the background. Validation failures prevent the run.
func (c *Controller) Start(ctx context.Context, opts models.ProcessingOptions, cfg models.BatchConfig) (*Run, error) {
	if err := validation.BatchConfig(cfg, 0); err != nil {
		return nil, err
	}
	if err := validation.ProcessingOptions(opts); err != nil {
		return nil, err
	}

	// batches outlive the caller's deadline; only Cancel stops a run
	ctx = context.WithoutCancel(ctx)

	started, err := c.client.StartRun(ctx, models.StartRunRequest{Options: opts, BatchSize: cfg.BatchSize})
	if err != nil {
		return nil, classify("bulk.start", err)
	}

	r := &Run{
		id:     started.RunID,
		c:      c,
		opts:   opts,
		cfg:    cfg,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
		state: State{
			RunID:     started.RunID,
			Status:    models.RunStatusRunning,
			Total:     started.Total,
			StartTime: c.now(),
		},
		log: c.log.WithField("run_id", started.RunID),
	}

	r.log.WithFields(logrus.Fields{
		"total":      started.Total,
		"batch_size": cfg.BatchSize,
		"delay_ms":   cfg.BatchDelayMS,
	}).Info("Bulk run started")

	if started.Total == 0 {
		r.finish(models.RunStatusCompleted, nil)
		return r, nil
	}

	go r.loop(ctx)
	return r, nil
}

// Run is one bulk run. Its state is only changed by the run goroutine.
type Run struct {
	id   string
	c    *Controller
	opts models.ProcessingOptions
	cfg  models.BatchConfig
	log  logrus.FieldLogger

	cancelOnce sync.Once
	cancel     chan struct{}
	done       chan struct{}

	mu     sync.Mutex
	state  State
	result Result
}

// Cancel asks the run to stop after the batch in flight. It is safe to call
// more than once and from any goroutine.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() {
		close(r.cancel)
	})
}

func (r *Run) cancelled() bool {
	select {
	case <-r.cancel:
		return true
	default:
		return false
	}
}

// Done is closed once the run reached a terminal state
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Snapshot returns a copy of the current state
func (r *Run) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Wait blocks until the run ends or ctx is done
func (r *Run) Wait(ctx context.Context) Result {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result
	case <-ctx.Done():
		return Result{State: r.Snapshot(), Err: ctx.Err()}
	}
}

func (r *Run) loop(ctx context.Context) {
	delay := time.Duration(r.cfg.BatchDelayMS) * time.Millisecond

	for batch := 1; ; batch++ {
		if r.cancelled() {
			r.stop(ctx)
			return
		}

		resp, err := r.c.client.ProcessBatch(ctx, models.BatchRequest{
			RunID:     r.id,
			BatchSize: r.cfg.BatchSize,
			Options:   r.opts,
		})
		received := r.c.now()
		if err != nil {
			r.log.WithError(err).WithField("batch", batch).Error("Batch failed")
			r.finish(models.RunStatusError, classify("bulk.batch", err))
			return
		}

		state := r.apply(resp, received)
		r.log.WithFields(logrus.Fields{
			"batch":     batch,
			"processed": state.Processed,
			"failed":    resp.Failed,
			"remaining": resp.Remaining,
		}).Debug("Batch done")
		for _, o := range r.c.observers {
			o.OnProgress(state)
		}

		if !resp.HasMore {
			r.finish(models.RunStatusCompleted, nil)
			return
		}
		if r.cancelled() {
			r.stop(ctx)
			return
		}

		if wait := delay - r.c.now().Sub(received); wait > 0 {
			select {
			case <-r.c.after(wait):
			case <-r.cancel:
			}
		}
	}
}

// apply folds a batch response into the state and returns a copy
func (r *Run) apply(resp models.BatchResponse, at time.Time) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.state
	s.Batches++
	s.Failed += resp.Failed
	processed := resp.TotalProcessed
	if processed < s.Processed+resp.Processed {
		processed = s.Processed + resp.Processed
	}
	if processed > s.Total {
		processed = s.Total
	}
	s.Processed = processed
	s.Elapsed = at.Sub(s.StartTime)
	s.Percentage = models.FloorPercent(s.Processed, s.Total)
	if resp.HasMore && s.Percentage >= 100 {
		s.Percentage = 99
	}
	s.ETA = estimate(s.Total-s.Processed, r.cfg.BatchSize, s.Elapsed, s.Batches)
	return *s
}

// stop ends a cancelled run and tells the server, best effort
func (r *Run) stop(ctx context.Context) {
	if err := r.c.client.CancelRun(ctx, r.id); err != nil {
		r.log.WithError(err).Warn("Failed to notify server of cancellation")
	}
	r.finish(models.RunStatusCancelled, nil)
}

func (r *Run) finish(status string, err error) {
	r.mu.Lock()
	s := &r.state
	s.Status = status
	s.ETA = 0
	s.Elapsed = r.c.now().Sub(s.StartTime)
	if status == models.RunStatusCompleted {
		s.Percentage = 100
	}
	if err != nil {
		s.Message = apperrors.Message(err)
	}
	r.result = Result{State: *s, Err: err}
	result := r.result
	r.mu.Unlock()

	entry := r.log.WithFields(logrus.Fields{
		"status":    status,
		"processed": result.Processed,
		"failed":    result.Failed,
		"elapsed":   result.Elapsed.Round(time.Millisecond),
	})
	if err != nil {
		entry.WithError(err).Error("Bulk run ended")
	} else {
		entry.Info("Bulk run ended")
	}

	for _, o := range r.c.observers {
		o.OnFinish(result)
	}
	close(r.done)
}

// classify gives untyped transport failures the network kind
func classify(op string, err error) error {
	if apperrors.KindOf(err) != "" {
		return err
	}
	return apperrors.Wrap(apperrors.KindNetwork, op, "request failed", err)
}
