package scheduler

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"servipay/config"
	"servipay/internal/escrow"
	"servipay/internal/models"
)

// Scheduler периодически прогоняет автоматические переходы эскроу.
// Все четыре прохода идемпотентны: повторная обработка уже
// переведённого эскроу отсекается статусным условием в движке.
type Scheduler struct {
	db     *gorm.DB
	engine *escrow.Engine
	cfg    config.SchedulerConfig
	claims ClaimSet
	stopCh chan struct{}
}

func New(db *gorm.DB, engine *escrow.Engine, cfg config.SchedulerConfig, claims ClaimSet) *Scheduler {
	if claims == nil {
		claims = NewMemoryClaims(cfg.ClaimCooldown)
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	return &Scheduler{db: db, engine: engine, cfg: cfg, claims: claims, stopCh: make(chan struct{})}
}

// Start запускает четыре независимых таймера в отдельных горутинах
func (s *Scheduler) Start() {
	go s.loop(s.cfg.CaptureInterval, s.CaptureSweep)
	go s.loop(s.cfg.ReleaseInterval, s.ReleaseSweep)
	go s.loop(s.cfg.PayoutInterval, s.PayoutSweep)
	go s.loop(s.cfg.StuckInterval, s.StuckSweep)
}

// Stop останавливает все таймеры
func (s *Scheduler) Stop() { close(s.stopCh) }

func (s *Scheduler) loop(interval time.Duration, sweep func(context.Context)) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// CaptureSweep захватывает эскроу, одобренные клиентом достаточно давно,
// по завершённым заказам: FUNDS_HELD -> IN_PROGRESS от имени клиента.
func (s *Scheduler) CaptureSweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.CaptureDelay)
	var escrows []models.Escrow
	if err := s.db.
		Joins("JOIN bookings ON bookings.id = escrows.booking_id").
		Where("escrows.status = ? AND escrows.client_approved = ? AND escrows.client_approved_at <= ? AND bookings.status = ?",
			models.EscrowStatusFundsHeld, true, cutoff, models.BookingStatusCompleted).
		Limit(s.cfg.BatchLimit).Find(&escrows).Error; err != nil {
		log.Printf("capture sweep query failed: %v", err)
		return
	}
	for _, esc := range escrows {
		if !s.claims.TryClaim(ctx, esc.ID) {
			continue
		}
		if _, err := s.engine.Capture(ctx, esc.ID, esc.ClientID); err != nil {
			log.Printf("auto-capture %s failed: %v", esc.ID, err)
		}
		s.claims.Release(ctx, esc.ID)
	}
}

// ReleaseSweep закрывает давно захваченные бесспорные эскроу по
// завершённым заказам: IN_PROGRESS -> COMPLETE.
func (s *Scheduler) ReleaseSweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ReleaseDelay)
	var escrows []models.Escrow
	if err := s.db.
		Joins("JOIN bookings ON bookings.id = escrows.booking_id").
		Where("escrows.status = ? AND escrows.updated_at <= ? AND escrows.dispute_raised = ? AND bookings.status = ?",
			models.EscrowStatusInProgress, cutoff, false, models.BookingStatusCompleted).
		Limit(s.cfg.BatchLimit).Find(&escrows).Error; err != nil {
		log.Printf("release sweep query failed: %v", err)
		return
	}
	for _, esc := range escrows {
		if !s.claims.TryClaim(ctx, esc.ID) {
			continue
		}
		if _, err := s.engine.AutoRelease(ctx, esc.ID); err != nil {
			log.Printf("auto-release %s failed: %v", esc.ID, err)
		}
		s.claims.Release(ctx, esc.ID)
	}
}

// PayoutSweep инициирует выплаты по одобренным бесспорным эскроу,
// простоявшим дольше порога.
func (s *Scheduler) PayoutSweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.PayoutDelay)
	var escrows []models.Escrow
	if err := s.db.
		Where("status IN ? AND updated_at <= ? AND client_approved = ? AND dispute_raised = ?",
			[]models.EscrowStatus{models.EscrowStatusComplete, models.EscrowStatusInProgress},
			cutoff, true, false).
		Limit(s.cfg.BatchLimit).Find(&escrows).Error; err != nil {
		log.Printf("payout sweep query failed: %v", err)
		return
	}
	for _, esc := range escrows {
		if !s.claims.TryClaim(ctx, esc.ID) {
			continue
		}
		if _, _, err := s.engine.ProcessPayout(ctx, esc.ID, esc.ProviderID, nil); err != nil {
			log.Printf("auto-payout %s failed: %v", esc.ID, err)
		}
		s.claims.Release(ctx, esc.ID)
	}
}

// StuckSweep помечает эскроу, зависшие в FUNDS_HELD дольше порога.
// Статус не меняется — требуется ручное вмешательство.
func (s *Scheduler) StuckSweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.StuckAge)
	var escrows []models.Escrow
	if err := s.db.
		Where("status = ? AND created_at <= ? AND flagged_as_stuck = ?",
			models.EscrowStatusFundsHeld, cutoff, false).
		Limit(s.cfg.BatchLimit).Find(&escrows).Error; err != nil {
		log.Printf("stuck sweep query failed: %v", err)
		return
	}
	for _, esc := range escrows {
		if !s.claims.TryClaim(ctx, esc.ID) {
			continue
		}
		if _, err := s.engine.FlagStuck(ctx, esc.ID); err != nil {
			log.Printf("stuck flag %s failed: %v", esc.ID, err)
		}
		s.claims.Release(ctx, esc.ID)
	}
}
