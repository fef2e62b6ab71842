package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := setupRedisStore(t)
	rs.maxRetries = 1000
	return map[string]Store{
		"redis":  rs,
		"memory": NewMemoryStore(time.Hour),
	}
}

func increment(current []byte) ([]byte, error) {
	n := 0
	if current != nil {
		var err error
		if n, err = strconv.Atoi(string(current)); err != nil {
			return nil, err
		}
	}
	return []byte(strconv.Itoa(n + 1)), nil
}

func TestStore_LoadMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			data, err := s.Load(context.Background(), "nope")
			require.NoError(t, err)
			assert.Nil(t, data)
		})
	}
}

func TestStore_UpdateAndDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Update(ctx, "k", increment))
			require.NoError(t, s.Update(ctx, "k", increment))

			data, err := s.Load(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "2", string(data))

			require.NoError(t, s.Delete(ctx, "k"))
			data, err = s.Load(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, data)
		})
	}
}

func TestStore_UpdateReturningNilDeletes(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Update(ctx, "k", increment))
			require.NoError(t, s.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, nil }))

			data, err := s.Load(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, data)
		})
	}
}

func TestStore_UpdateErrorLeavesValue(t *testing.T) {
	boom := errors.New("boom")
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Update(ctx, "k", increment))

			err := s.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, boom })
			assert.ErrorIs(t, err, boom)

			data, err := s.Load(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "1", string(data))
		})
	}
}

func TestStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers, perWorker = 8, 10

			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < perWorker; j++ {
						assert.NoError(t, s.Update(ctx, "counter", increment))
					}
				}()
			}
			wg.Wait()

			data, err := s.Load(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(workers*perWorker), string(data))
		})
	}
}

func TestRedisStore_SetsTTL(t *testing.T) {
	s, mr := setupRedisStore(t)
	require.NoError(t, s.Update(context.Background(), "guest:abc:cart", increment))
	assert.Equal(t, time.Hour, mr.TTL("guest:abc:cart"))

	mr.FastForward(2 * time.Hour)
	data, err := s.Load(context.Background(), "guest:abc:cart")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRedisStore_UnavailableReturnsError(t *testing.T) {
	s, mr := setupRedisStore(t)
	mr.Close()

	_, err := s.Load(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, s.Update(context.Background(), "k", increment))
	assert.Error(t, s.Ping(context.Background()))
}

func TestMemoryStore_Expires(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Update(context.Background(), "k", increment))
	now = now.Add(30 * time.Second)
	data, _ := s.Load(context.Background(), "k")
	assert.Equal(t, "1", string(data))

	now = now.Add(time.Minute)
	data, _ = s.Load(context.Background(), "k")
	assert.Nil(t, data)
}
