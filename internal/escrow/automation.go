package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"servipay/internal/models"
	"servipay/internal/notifications"
)

// AutoRelease переводит давно захваченный эскроу в COMPLETE без выплаты:
// IN_PROGRESS -> COMPLETE. Средства уже списаны, перехода у провайдера
// нет — фиксируется только готовность к выплате.
func (e *Engine) AutoRelease(ctx context.Context, escrowID string) (*models.Escrow, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if esc.Status != models.EscrowStatusInProgress {
		return nil, fmt.Errorf("%w: auto-release requires IN_PROGRESS, have %s", ErrInvalidState, esc.Status)
	}
	if esc.DisputeRaised {
		return nil, fmt.Errorf("%w: disputed escrow is not auto-released", ErrInvalidState)
	}

	meta, _ := json.Marshal(map[string]string{"tag": "auto_release"})
	err = e.db.Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", esc.ID, models.EscrowStatusInProgress).
			Update("status", models.EscrowStatusComplete)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidState)
		}
		return e.writeLedger(tx, ledgerEntry{
			EscrowID:    esc.ID,
			Type:        models.TransactionTypePayout,
			Amount:      esc.Amount,
			Currency:    esc.Currency,
			Status:      models.TransactionStatusSuccess,
			InitiatorID: "system",
			Provider:    esc.HoldProvider,
			PrevBalance: esc.Amount,
			NewBalance:  esc.Amount,
			Metadata:    meta,
		})
	})
	if err != nil {
		return nil, err
	}

	esc, _ = e.load(esc.ID)
	notifications.Notify(e.db, esc.ProviderID, "escrow.released", map[string]any{
		"escrowID": esc.ID, "amount": esc.Amount, "currency": esc.Currency,
	})
	return esc, nil
}

// FlagStuck помечает давно зависший эскроу; статус не меняется,
// флаг ставится ровно один раз. Дальше — ручное вмешательство.
func (e *Engine) FlagStuck(ctx context.Context, escrowID string) (*models.Escrow, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if esc.Status != models.EscrowStatusFundsHeld {
		return nil, fmt.Errorf("%w: stuck flag applies to FUNDS_HELD only, have %s", ErrInvalidState, esc.Status)
	}
	if esc.FlaggedAsStuck {
		return esc, nil
	}

	now := time.Now()
	upd := e.db.Model(&models.Escrow{}).
		Where("id = ? AND flagged_as_stuck = ?", esc.ID, false).
		Updates(map[string]any{"flagged_as_stuck": true, "stuck_flagged_at": now})
	if upd.Error != nil {
		return nil, upd.Error
	}
	if upd.RowsAffected > 0 {
		notifications.Notify(e.db, esc.ClientID, "escrow.stuck", map[string]any{
			"escrowID": esc.ID, "heldSince": esc.CreatedAt,
		})
	}

	return e.load(esc.ID)
}
