package progress

import (
	"context"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/ports"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, ""), mr
}

func stores(t *testing.T) map[string]ports.ProgressStore {
	rs, _ := newRedisStore(t)
	return map[string]ports.ProgressStore{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func pending(id string) domain.Progress {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Progress{
		TaskID:    id,
		Status:    domain.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "missing")
			assert.True(t, domain.IsTaskNotFound(err))

			require.NoError(t, s.Create(ctx, pending("t1")))
			assert.ErrorIs(t, s.Create(ctx, pending("t1")), domain.ErrTaskExists)

			got, err := s.Update(ctx, "t1", func(p *domain.Progress) error {
				p.Status = domain.TaskRunning
				p.Percent = 40
				p.Message = "building"
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 40, got.Percent)

			boom := errors.New("boom")
			got, err = s.Update(ctx, "t1", func(p *domain.Progress) error {
				p.Percent = 99
				return boom
			})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, 40, got.Percent, "failed update returns current state")

			stored, err := s.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, domain.TaskRunning, stored.Status)
			assert.Equal(t, 40, stored.Percent)
			assert.Equal(t, "building", stored.Message)

			_, err = s.Update(ctx, "nope", func(p *domain.Progress) error { return nil })
			assert.True(t, domain.IsTaskNotFound(err))

			require.NoError(t, s.Delete(ctx, "t1"))
			_, err = s.Get(ctx, "t1")
			assert.True(t, domain.IsTaskNotFound(err))
		})
	}
}

func TestStoreConcurrentUpdatesAreAtomic(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, pending("c")))

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						_, err := s.Update(ctx, "c", func(p *domain.Progress) error {
							p.Percent++
							return nil
						})
						if err == nil {
							return
						}
					}
				}()
			}
			wg.Wait()

			got, err := s.Get(ctx, "c")
			require.NoError(t, err)
			assert.Equal(t, 20, got.Percent)
		})
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	old := pending("old")
	old.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, s.Create(ctx, old))
	require.NoError(t, s.Create(ctx, pending("fresh")))

	n, err := s.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, "old")
	assert.True(t, domain.IsTaskNotFound(err))
}

func TestRedisStoreExpiresByTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	p := pending("ttl")
	p.ExpiresAt = time.Now().Add(2 * time.Second)
	require.NoError(t, s.Create(ctx, p))
	assert.True(t, mr.Exists(s.key("ttl")))

	mr.FastForward(3 * time.Second)

	_, err := s.Get(ctx, "ttl")
	assert.True(t, domain.IsTaskNotFound(err))
}

func TestRedisStoreUpdateRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	p := pending("r")
	p.ExpiresAt = time.Now().Add(2 * time.Second)
	require.NoError(t, s.Create(ctx, p))

	_, err := s.Update(ctx, "r", func(p *domain.Progress) error {
		p.ExpiresAt = time.Now().Add(time.Minute)
		return nil
	})
	require.NoError(t, err)

	mr.FastForward(10 * time.Second)
	_, err = s.Get(ctx, "r")
	assert.NoError(t, err)
}
