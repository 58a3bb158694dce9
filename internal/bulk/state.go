package bulk

import (
	"time"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
)

// State is a read-only snapshot of a run
type State struct {
	RunID      string        `json:"run_id"`
	Status     string        `json:"status"`
	Processed  int64         `json:"processed"`
	Failed     int64         `json:"failed"`
	Total      int64         `json:"total"`
	Percentage int           `json:"percentage"`
	Batches    int           `json:"batches"`
	StartTime  time.Time     `json:"start_time"`
	Elapsed    time.Duration `json:"elapsed"`
	ETA        time.Duration `json:"eta"`
	// Message explains an error state
	Message string `json:"message,omitempty"`
}

// Result is the terminal state of a run and the error that ended it, if any
type Result struct {
	State
	Err error `json:"-"`
}

// NeedsReload reports whether the run stopped because the session token was rejected
func (r Result) NeedsReload() bool {
	return apperrors.IsKind(r.Err, apperrors.KindAuth)
}

// estimate extrapolates the average batch duration over the batches left
func estimate(remaining int64, batchSize int, elapsed time.Duration, batches int) time.Duration {
	if remaining <= 0 || batches == 0 || batchSize < 1 {
		return 0
	}
	left := (remaining + int64(batchSize) - 1) / int64(batchSize)
	return time.Duration(left) * (elapsed / time.Duration(batches))
}
