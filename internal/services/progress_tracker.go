package services

import (
	"context"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	defaultRetention  = 30 * time.Minute
	defaultStaleAfter = 15 * time.Minute
	defaultAckGrace   = time.Minute
)

type TrackerOptions struct {
	// How long a finished task stays readable.
	Retention time.Duration
	// How long a running task may go without updates before eviction.
	StaleAfter time.Duration
	// How long a finished task stays readable after its first read.
	AckGrace time.Duration
}

// ProgressTracker owns the lifecycle of per-task progress records:
//
//	PENDING(0) -> RUNNING(1-99) -> DONE(100) | FAILED
//
// Reported percent never goes backwards and terminal records are frozen.
type ProgressTracker struct {
	store      ports.ProgressStore
	retention  time.Duration
	staleAfter time.Duration
	ackGrace   time.Duration
	now        func() time.Time
}

func NewProgressTracker(store ports.ProgressStore, opts TrackerOptions) *ProgressTracker {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.AckGrace <= 0 {
		opts.AckGrace = defaultAckGrace
	}
	return &ProgressTracker{
		store:      store,
		retention:  opts.Retention,
		staleAfter: opts.StaleAfter,
		ackGrace:   opts.AckGrace,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Intended for tests.
func (t *ProgressTracker) SetClock(now func() time.Time) { t.now = now }

func (t *ProgressTracker) Create(ctx context.Context, taskID string) (domain.Progress, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return domain.Progress{}, errors.New("progress create: task id must not be empty")
	}

	now := t.now()
	p := domain.Progress{
		TaskID:    taskID,
		Status:    domain.TaskPending,
		Percent:   0,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(t.staleAfter),
	}
	err := t.store.Create(ctx, p)
	if errors.Is(err, domain.ErrTaskExists) {
		// A finished or expired task's ID may be reused; a live one may not.
		prev, getErr := t.store.Get(ctx, taskID)
		if getErr == nil && (prev.Status.Terminal() || prev.Expired(now)) {
			if err = t.store.Delete(ctx, taskID); err == nil {
				err = t.store.Create(ctx, p)
			}
		}
	}
	if err != nil {
		return domain.Progress{}, fmt.Errorf("progress create %q: %w", taskID, err)
	}
	return p, nil
}

// Update records intermediate progress. Percent is clamped to 1-99 and to
// the current value so it never regresses.
func (t *ProgressTracker) Update(ctx context.Context, taskID string, percent int, message string) (domain.Progress, error) {
	return t.store.Update(ctx, taskID, func(p *domain.Progress) error {
		if p.Status.Terminal() {
			return domain.ErrTaskTerminal
		}
		now := t.now()
		percent = min(max(percent, 1), 99)
		p.Status = domain.TaskRunning
		p.Percent = max(p.Percent, percent)
		if message != "" {
			p.Message = message
		}
		p.UpdatedAt = now
		p.ExpiresAt = now.Add(t.staleAfter)
		return nil
	})
}

func (t *ProgressTracker) Complete(ctx context.Context, taskID string, message string) (domain.Progress, error) {
	return t.finish(ctx, taskID, domain.TaskDone, message)
}

// Fail marks the task as failed with err as the user-visible message.
func (t *ProgressTracker) Fail(ctx context.Context, taskID string, cause error) (domain.Progress, error) {
	msg := "failed"
	if cause != nil {
		msg = cause.Error()
	}
	return t.finish(ctx, taskID, domain.TaskFailed, msg)
}

func (t *ProgressTracker) finish(ctx context.Context, taskID string, status domain.TaskStatus, message string) (domain.Progress, error) {
	return t.store.Update(ctx, taskID, func(p *domain.Progress) error {
		if p.Status.Terminal() {
			return domain.ErrTaskTerminal
		}
		now := t.now()
		p.Status = status
		if status == domain.TaskDone {
			p.Percent = 100
		}
		p.Message = message
		p.UpdatedAt = now
		p.ExpiresAt = now.Add(t.retention)
		return nil
	})
}

// Get returns the task's progress. Reading a finished task acknowledges it,
// which shortens its remaining lifetime to the acknowledgement grace period.
func (t *ProgressTracker) Get(ctx context.Context, taskID string) (domain.Progress, error) {
	p, err := t.store.Get(ctx, taskID)
	if err != nil {
		return domain.Progress{}, err
	}
	now := t.now()
	if p.Expired(now) {
		return domain.Progress{}, &domain.TaskNotFoundError{TaskID: taskID}
	}
	if !p.Status.Terminal() || p.Acknowledged {
		return p, nil
	}

	acked, err := t.store.Update(ctx, taskID, func(p *domain.Progress) error {
		p.Acknowledged = true
		if grace := now.Add(t.ackGrace); grace.Before(p.ExpiresAt) {
			p.ExpiresAt = grace
		}
		return nil
	})
	if err != nil {
		// The record was readable a moment ago; report what we saw.
		log.Printf("progress ack failed task_id=%s err=%v", taskID, err)
		return p, nil
	}
	return acked, nil
}

// Run evicts expired records every interval until ctx is done.
func (t *ProgressTracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := t.store.Sweep(ctx, t.now())
			if err != nil {
				log.Printf("progress sweep failed err=%v", err)
				continue
			}
			if n > 0 {
				log.Printf("progress sweep evicted=%d", n)
			}
		}
	}
}
