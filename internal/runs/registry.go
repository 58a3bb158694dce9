// Package runs keeps the server-side state of bulk runs: counters, status and
// the lock that keeps batches of one run from overlapping.
package runs

import (
	"context"
	"time"

	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// Registry tracks bulk runs
type Registry interface {
	Create(ctx context.Context, run models.RunRecord) error
	Get(ctx context.Context, id string) (models.RunRecord, error)
	// TryLockBatch takes the run's batch lock for at most ttl and returns the
	// token that owns it. It reports false when another batch of the run holds it.
	TryLockBatch(ctx context.Context, id string, ttl time.Duration) (string, bool, error)
	// UnlockBatch releases the lock only while token still owns it
	UnlockBatch(ctx context.Context, id, token string) error
	AddProgress(ctx context.Context, id string, processed, failed int64) (models.RunRecord, error)
	SetStatus(ctx context.Context, id, status string) error
	Close() error
}

// DefaultTTL is how long a run is remembered after its last update
const DefaultTTL = 24 * time.Hour
