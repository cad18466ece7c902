package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClaims распределённый вариант ClaimSet: несколько инстансов
// автоматики делят один Redis и не обрабатывают эскроу дважды.
type RedisClaims struct {
	client   *redis.Client
	cooldown time.Duration
}

func NewRedisClaims(client *redis.Client, cooldown time.Duration) *RedisClaims {
	return &RedisClaims{client: client, cooldown: cooldown}
}

func claimKey(id string) string { return "escrow:claim:" + id }

func (r *RedisClaims) TryClaim(ctx context.Context, id string) bool {
	ok, err := r.client.SetNX(ctx, claimKey(id), 1, claimTTL).Result()
	if err != nil {
		// при сбое Redis лучше не обрабатывать, чем обработать дважды
		return false
	}
	return ok
}

func (r *RedisClaims) Release(ctx context.Context, id string) {
	// ключ не удаляется: сокращённый TTL и есть пауза после обработки
	r.client.Expire(ctx, claimKey(id), r.cooldown)
}

var _ ClaimSet = (*RedisClaims)(nil)
