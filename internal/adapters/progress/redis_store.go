package progress

import (
	"context"
	"deadkm-service/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "deadkm:progress:"
	maxTxRetries     = 8
)

// RedisStore shares progress records between service replicas. Eviction is
// delegated to key expiry, so Sweep is a no-op.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

type progressRecord struct {
	TaskID       string            `json:"task_id"`
	Status       domain.TaskStatus `json:"status"`
	Percent      int               `json:"percent"`
	Message      string            `json:"message"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	Acknowledged bool              `json:"acknowledged"`
}

func toRecord(p domain.Progress) progressRecord {
	return progressRecord(p)
}

func (r progressRecord) toDomain() domain.Progress {
	return domain.Progress(r)
}

func (s *RedisStore) key(taskID string) string { return s.prefix + taskID }

// ttl converts an absolute deadline into a key lifetime. Zero means no expiry.
func ttl(p domain.Progress, now time.Time) time.Duration {
	if p.ExpiresAt.IsZero() {
		return 0
	}
	d := p.ExpiresAt.Sub(now)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (s *RedisStore) Create(ctx context.Context, p domain.Progress) error {
	b, err := json.Marshal(toRecord(p))
	if err != nil {
		return fmt.Errorf("redis progress create: marshal: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(p.TaskID), b, ttl(p, time.Now())).Result()
	if err != nil {
		return fmt.Errorf("redis progress create: %w", err)
	}
	if !ok {
		return domain.ErrTaskExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, taskID string) (domain.Progress, error) {
	b, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Progress{}, &domain.TaskNotFoundError{TaskID: taskID}
	}
	if err != nil {
		return domain.Progress{}, fmt.Errorf("redis progress get: %w", err)
	}

	var rec progressRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.Progress{}, fmt.Errorf("redis progress get: decode %q: %w", taskID, err)
	}
	return rec.toDomain(), nil
}

// Update applies fn inside a WATCH/MULTI transaction and retries when another
// writer touched the key first.
func (s *RedisStore) Update(
	ctx context.Context,
	taskID string,
	fn func(p *domain.Progress) error,
) (domain.Progress, error) {
	key := s.key(taskID)
	var out domain.Progress

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return &domain.TaskNotFoundError{TaskID: taskID}
		}
		if err != nil {
			return err
		}

		var rec progressRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("decode %q: %w", taskID, err)
		}

		cur := rec.toDomain()
		next := cur
		if err := fn(&next); err != nil {
			out = cur
			return err
		}

		nb, err := json.Marshal(toRecord(next))
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, ttl(next, time.Now()))
			return nil
		})
		if err == nil {
			out = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}

	return out, fmt.Errorf("redis progress update %q: too much contention", taskID)
}

func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, s.key(taskID)).Err(); err != nil {
		return fmt.Errorf("redis progress delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity for health reporting.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
