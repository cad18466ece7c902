package scheduler

import (
	"context"
	"sync"
	"time"
)

// claimTTL предохранитель от утечки: забытая заявка истекает сама
const claimTTL = 30 * time.Minute

// ClaimSet отмечает эскроу, находящиеся в обработке, чтобы параллельные
// проходы автоматики не обработали один эскроу дважды. Release не
// освобождает id сразу: выдерживается пауза, чтобы следующий проход
// не подхватил только что обработанный эскроу.
type ClaimSet interface {
	TryClaim(ctx context.Context, id string) bool
	Release(ctx context.Context, id string)
}

// memoryClaims реализация для одного процесса.
// Для горизонтального масштабирования см. RedisClaims.
type memoryClaims struct {
	mu       sync.Mutex
	expires  map[string]time.Time
	cooldown time.Duration
}

func NewMemoryClaims(cooldown time.Duration) ClaimSet {
	return &memoryClaims{
		expires:  make(map[string]time.Time),
		cooldown: cooldown,
	}
}

func (m *memoryClaims) TryClaim(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if exp, ok := m.expires[id]; ok && exp.After(now) {
		return false
	}
	m.expires[id] = now.Add(claimTTL)
	return true
}

func (m *memoryClaims) Release(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[id] = time.Now().Add(m.cooldown)
}
