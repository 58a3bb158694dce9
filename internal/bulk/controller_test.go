package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/logger"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/page"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// fakeClock moves only when told to
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// After fires immediately after moving the clock forward by d
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// fakeServer processes a fixed number of images per batch
type fakeServer struct {
	mu        sync.Mutex
	clock     *fakeClock
	total     int64
	done      int64
	latency   time.Duration
	sizes     []int64
	sentAt    []time.Time
	cancelled int
	// failOn makes the given batch number fail
	failOn  int
	failErr error
	// onBatch runs after a batch was counted
	onBatch func(n int)
}

func (s *fakeServer) StartRun(_ context.Context, req models.StartRunRequest) (models.StartRunResponse, error) {
	return models.StartRunResponse{Success: true, RunID: "run-1", Total: s.total}, nil
}

func (s *fakeServer) ProcessBatch(_ context.Context, req models.BatchRequest) (models.BatchResponse, error) {
	s.mu.Lock()
	s.sentAt = append(s.sentAt, s.clock.Now())
	n := len(s.sentAt)
	if n == s.failOn {
		s.mu.Unlock()
		return models.BatchResponse{}, s.failErr
	}
	size := int64(req.BatchSize)
	if left := s.total - s.done; size > left {
		size = left
	}
	s.done += size
	s.sizes = append(s.sizes, size)
	resp := models.BatchResponse{
		Success:        true,
		Processed:      size,
		TotalProcessed: s.done,
		Remaining:      s.total - s.done,
		HasMore:        s.done < s.total,
	}
	onBatch := s.onBatch
	s.mu.Unlock()

	s.clock.Advance(s.latency)
	if onBatch != nil {
		onBatch(n)
	}
	return resp, nil
}

func (s *fakeServer) CancelRun(context.Context, string) error {
	s.mu.Lock()
	s.cancelled++
	s.mu.Unlock()
	return nil
}

type recorder struct {
	mu       sync.Mutex
	progress []State
	finished []Result
}

func (r *recorder) OnProgress(s State) {
	r.mu.Lock()
	r.progress = append(r.progress, s)
	r.mu.Unlock()
}

func (r *recorder) OnFinish(res Result) {
	r.mu.Lock()
	r.finished = append(r.finished, res)
	r.mu.Unlock()
}

func options() models.ProcessingOptions {
	return models.ProcessingOptions{Language: "en", MaxLength: 125}
}

func newController(server *fakeServer, rec *recorder) *Controller {
	return NewController(server,
		WithClock(server.clock.Now),
		WithTimer(server.clock.After),
		WithObserver(rec),
		WithLogger(logger.Discard()),
	)
}

func wait(t *testing.T, run *Run) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := run.Wait(ctx)
	require.NoError(t, ctx.Err(), "run did not finish")
	return res
}

func TestRunBatchesSequentially(t *testing.T) {
	server := &fakeServer{clock: newFakeClock(), total: 130, latency: time.Second}
	rec := &recorder{}

	run, err := newController(server, rec).Start(context.Background(), options(), models.BatchConfig{BatchSize: 50, BatchDelayMS: 1000})
	require.NoError(t, err)
	res := wait(t, run)

	require.NoError(t, res.Err)
	assert.Equal(t, []int64{50, 50, 30}, server.sizes)
	assert.Equal(t, models.RunStatusCompleted, res.Status)
	assert.Equal(t, int64(130), res.Processed)
	assert.Equal(t, 100, res.Percentage)
	assert.Equal(t, 3, res.Batches)
	assert.Zero(t, server.cancelled)

	require.Len(t, rec.progress, 3)
	assert.Equal(t, 38, rec.progress[0].Percentage)
	assert.Equal(t, 76, rec.progress[1].Percentage)
	assert.Equal(t, 100, rec.progress[2].Percentage)
	// one batch of 1s latency done, two left
	assert.Equal(t, 2*time.Second, rec.progress[0].ETA)
	assert.Zero(t, rec.progress[2].ETA)
	require.Len(t, rec.finished, 1)
	assert.Equal(t, res.State, rec.finished[0].State)

	select {
	case <-run.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestCancelAfterSecondBatch(t *testing.T) {
	server := &fakeServer{clock: newFakeClock(), total: 130}
	rec := &recorder{}
	var run *Run
	started := make(chan struct{})
	server.onBatch = func(n int) {
		if n == 2 {
			<-started
			run.Cancel()
		}
	}

	var err error
	run, err = newController(server, rec).Start(context.Background(), options(), models.BatchConfig{BatchSize: 50, BatchDelayMS: 500})
	require.NoError(t, err)
	close(started)
	res := wait(t, run)

	assert.Equal(t, models.RunStatusCancelled, res.Status)
	assert.Equal(t, int64(100), res.Processed)
	assert.Equal(t, 76, res.Percentage)
	assert.Len(t, server.sentAt, 2, "no request after cancel")
	assert.Equal(t, 1, server.cancelled)

	// idempotent
	run.Cancel()
	assert.Equal(t, models.RunStatusCancelled, run.Snapshot().Status)
}

func TestCancelDuringDelayEndsWaitEarly(t *testing.T) {
	server := &fakeServer{clock: newFakeClock(), total: 20}
	waiting := make(chan struct{})
	ctrl := NewController(server,
		WithClock(server.clock.Now),
		WithTimer(func(time.Duration) <-chan time.Time {
			close(waiting)
			return make(chan time.Time)
		}),
		WithLogger(logger.Discard()),
	)

	run, err := ctrl.Start(context.Background(), options(), models.BatchConfig{BatchSize: 5, BatchDelayMS: 60_000})
	require.NoError(t, err)
	<-waiting
	run.Cancel()
	res := wait(t, run)

	assert.Equal(t, models.RunStatusCancelled, res.Status)
	assert.Equal(t, int64(5), res.Processed)
	assert.Len(t, server.sentAt, 1)
}

func TestDelayIsMeasuredFromResponse(t *testing.T) {
	server := &fakeServer{clock: newFakeClock(), total: 10, latency: 300 * time.Millisecond}

	run, err := newController(server, &recorder{}).Start(context.Background(), options(), models.BatchConfig{BatchSize: 5, BatchDelayMS: 500})
	require.NoError(t, err)
	wait(t, run)

	require.Len(t, server.sentAt, 2)
	firstResponse := server.sentAt[0].Add(server.latency)
	assert.GreaterOrEqual(t, server.sentAt[1].Sub(firstResponse), 500*time.Millisecond)
}

func TestZeroDelaySkipsTimer(t *testing.T) {
	server := &fakeServer{clock: newFakeClock(), total: 9}
	ctrl := NewController(server,
		WithClock(server.clock.Now),
		WithTimer(func(time.Duration) <-chan time.Time {
			t.Error("timer used with zero delay")
			return time.After(0)
		}),
		WithLogger(logger.Discard()),
	)

	run, err := ctrl.Start(context.Background(), options(), models.BatchConfig{BatchSize: 4, BatchDelayMS: 0})
	require.NoError(t, err)
	res := wait(t, run)
	assert.Equal(t, []int64{4, 4, 1}, server.sizes)
	assert.Equal(t, models.RunStatusCompleted, res.Status)
}

func TestAuthFailureHaltsRun(t *testing.T) {
	server := &fakeServer{
		clock:   newFakeClock(),
		total:   130,
		failOn:  2,
		failErr: apperrors.New(apperrors.KindAuth, "test", "Session expired, reload the page and try again"),
	}

	run, err := newController(server, &recorder{}).Start(context.Background(), options(), models.BatchConfig{BatchSize: 50, BatchDelayMS: 10})
	require.NoError(t, err)
	res := wait(t, run)

	assert.Equal(t, models.RunStatusError, res.Status)
	assert.True(t, res.NeedsReload())
	assert.Equal(t, int64(50), res.Processed)
	assert.Len(t, server.sentAt, 2)
	assert.Contains(t, res.Message, "reload")
}

func TestNetworkFailureIsTerminal(t *testing.T) {
	server := &fakeServer{clock: newFakeClock(), total: 10, failOn: 1, failErr: errors.New("connection reset")}

	run, err := newController(server, &recorder{}).Start(context.Background(), options(), models.BatchConfig{BatchSize: 5})
	require.NoError(t, err)
	res := wait(t, run)

	assert.Equal(t, models.RunStatusError, res.Status)
	assert.True(t, apperrors.IsKind(res.Err, apperrors.KindNetwork))
	assert.False(t, res.NeedsReload())
	assert.Len(t, server.sentAt, 1)
}

func TestStartValidation(t *testing.T) {
	server := &fakeServer{clock: newFakeClock(), total: 10}
	ctrl := newController(server, &recorder{})
	cfg := models.BatchConfig{BatchSize: 5}

	opts := options()
	opts.CustomInstructions = strings.Repeat("a", 501)
	_, err := ctrl.Start(context.Background(), opts, cfg)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = ctrl.Start(context.Background(), options(), models.BatchConfig{BatchSize: 0})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	opts = options()
	opts.MaxLength = 0
	_, err = ctrl.Start(context.Background(), opts, cfg)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	assert.Empty(t, server.sentAt)

	opts = options()
	opts.CustomInstructions = strings.Repeat("ü", 500)
	run, err := ctrl.Start(context.Background(), opts, cfg)
	require.NoError(t, err)
	wait(t, run)
}

func TestStartWithNothingToDo(t *testing.T) {
	server := &fakeServer{clock: newFakeClock(), total: 0}
	rec := &recorder{}

	run, err := newController(server, rec).Start(context.Background(), options(), models.BatchConfig{BatchSize: 5})
	require.NoError(t, err)
	res := wait(t, run)

	assert.Equal(t, models.RunStatusCompleted, res.Status)
	assert.Empty(t, server.sentAt)
	assert.Len(t, rec.finished, 1)
}

func TestEstimate(t *testing.T) {
	assert.Equal(t, 6*time.Second, estimate(30, 10, 4*time.Second, 2))
	assert.Equal(t, 2*time.Second, estimate(1, 10, 4*time.Second, 2))
	assert.Zero(t, estimate(0, 10, 4*time.Second, 2))
	assert.Zero(t, estimate(10, 10, 0, 0))
}

func TestHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get(models.NonceHeader) != "n0nce" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/alttext/runs":
			json.NewEncoder(w).Encode(models.StartRunResponse{Success: true, RunID: "abc", Total: 3})
		case "/api/alttext/runs/abc/batch":
			var req models.BatchRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if req.BatchSize == 99 {
				w.WriteHeader(http.StatusBadGateway)
				json.NewEncoder(w).Encode(models.ErrorResponse{Code: models.CodeBatchFailed, Message: "credits exhausted"})
				return
			}
			json.NewEncoder(w).Encode(models.BatchResponse{Success: true, Processed: 3, TotalProcessed: 3})
		case "/api/alttext/runs/abc/cancel":
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(models.ErrorResponse{Code: models.CodeInvalidNonce, Message: "invalid nonce"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/api/alttext/", "n0nce", time.Second)
	ctx := context.Background()

	started, err := c.StartRun(ctx, models.StartRunRequest{Options: options(), BatchSize: 3})
	require.NoError(t, err)
	assert.Equal(t, "abc", started.RunID)

	resp, err := c.ProcessBatch(ctx, models.BatchRequest{RunID: "abc", BatchSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.TotalProcessed)

	_, err = c.ProcessBatch(ctx, models.BatchRequest{RunID: "abc", BatchSize: 99})
	assert.True(t, apperrors.IsKind(err, apperrors.KindBatch))
	assert.Equal(t, "credits exhausted", apperrors.Message(err))

	err = c.CancelRun(ctx, "abc")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuth))

	_, err = NewHTTPClient(srv.URL+"/api/alttext", "stale", time.Second).StartRun(ctx, models.StartRunRequest{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuth))

	_, err = NewHTTPClient("http://127.0.0.1:1/api/alttext", "", time.Second).StartRun(ctx, models.StartRunRequest{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNetwork))
}

func TestPrintResult(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	PrintResult(&buf, Result{State: State{Status: models.RunStatusCompleted, Processed: 1300, Total: 1300, Percentage: 100, Elapsed: 65 * time.Second}}, page.DefaultStrings())
	assert.Equal(t, "Completed! 1,300 of 1,300 images processed (100%), 0 failed, took 1:05\n", buf.String())

	buf.Reset()
	PrintResult(&buf, Result{
		State: State{Status: models.RunStatusError, Processed: 50, Total: 130, Percentage: 38, Message: "credits exhausted"},
		Err:   errors.New("boom"),
	}, page.DefaultStrings())
	assert.Contains(t, buf.String(), "Error occurred 50 of 130")
	assert.Contains(t, buf.String(), "credits exhausted")
}

func TestBarObserver(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBarObserver(&buf, page.DefaultStrings())
	bar.OnProgress(State{Processed: 5, Total: 10, Percentage: 50, ETA: 3 * time.Second})
	bar.OnFinish(Result{State: State{Status: models.RunStatusCompleted, Processed: 10, Total: 10, Percentage: 100}})
	assert.Contains(t, buf.String(), "Completed!")
}
