package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryClaims(t *testing.T) {
	claims := NewMemoryClaims(50 * time.Millisecond)
	ctx := context.Background()

	require.True(t, claims.TryClaim(ctx, "e1"))
	// повторная заявка на тот же id отклоняется
	require.False(t, claims.TryClaim(ctx, "e1"))
	// другой id не затронут
	require.True(t, claims.TryClaim(ctx, "e2"))

	claims.Release(ctx, "e1")
	// сразу после обработки id ещё остывает
	require.False(t, claims.TryClaim(ctx, "e1"))

	time.Sleep(60 * time.Millisecond)
	require.True(t, claims.TryClaim(ctx, "e1"))
}

func TestRedisClaims(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	claims := NewRedisClaims(client, 50*time.Millisecond)
	ctx := context.Background()

	require.True(t, claims.TryClaim(ctx, "e1"))
	require.False(t, claims.TryClaim(ctx, "e1"))
	require.True(t, claims.TryClaim(ctx, "e2"))

	claims.Release(ctx, "e1")
	require.False(t, claims.TryClaim(ctx, "e1"))

	// после паузы ключ истекает и id снова доступен
	mr.FastForward(100 * time.Millisecond)
	require.True(t, claims.TryClaim(ctx, "e1"))
}

func TestRedisClaimsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	claims := NewRedisClaims(client, time.Second)
	mr.Close()

	// при недоступном Redis заявка не выдаётся — лучше пропустить
	// проход, чем обработать эскроу дважды
	require.False(t, claims.TryClaim(context.Background(), "e1"))
}
