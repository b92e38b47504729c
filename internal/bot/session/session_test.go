package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storages(t *testing.T) map[string]Storage {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"redis":  NewRedisStorage(rdb, time.Hour),
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, st := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			s, err := st.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, Idle{}, s, "unknown chat starts idle")

			require.NoError(t, st.Set(ctx, 1, AwaitingCategory{}))
			s, err = st.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, AwaitingCategory{}, s)

			require.NoError(t, st.Set(ctx, 1, AwaitingTitle{CategoryID: 3}))
			s, err = st.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, AwaitingTitle{CategoryID: 3}, s)

			other, err := st.Get(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, Idle{}, other, "sessions are keyed by chat")

			require.NoError(t, st.Delete(ctx, 1))
			s, err = st.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, Idle{}, s)
		})
	}
}

func TestRedisStorage_CorruptPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := NewRedisStorage(rdb, time.Hour)

	require.NoError(t, mr.Set(redisKey(5), `{"state":"awaiting_title"}`))
	_, err := st.Get(context.Background(), 5)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, mr.Set(redisKey(6), `not json`))
	_, err = st.Get(context.Background(), 6)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRedisStorage_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := NewRedisStorage(rdb, time.Minute)

	require.NoError(t, st.Set(context.Background(), 9, AwaitingCategory{}))
	mr.FastForward(2 * time.Minute)

	s, err := st.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, Idle{}, s)
}

func TestDecode_UnknownState(t *testing.T) {
	_, err := Decode([]byte(`{"state":"awaiting_priority"}`))
	assert.ErrorIs(t, err, ErrInvalidState)
}
