package ports

import (
	"context"
	"deadkm-service/internal/domain"
	"time"
)

// Port: task-keyed progress storage shared between workers and pollers.
// Every operation on a single record must be atomic.
type ProgressStore interface {
	// Insert a new record. Returns domain.ErrTaskExists if the ID is live.
	Create(ctx context.Context, p domain.Progress) error
	// Apply fn to the current record and persist the result atomically.
	// fn errors abort the update and are returned unchanged.
	Update(ctx context.Context, taskID string, fn func(p *domain.Progress) error) (domain.Progress, error)
	// Return a copy of the record or *domain.TaskNotFoundError.
	Get(ctx context.Context, taskID string) (domain.Progress, error)
	Delete(ctx context.Context, taskID string) error
	// Evict records whose ExpiresAt has passed. Returns the number evicted.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
