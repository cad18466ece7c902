package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"servipay/internal/gateway"
	"servipay/internal/models"
	"servipay/internal/notifications"
)

// ProcessPayout инициирует выплату исполнителю:
// IN_PROGRESS/COMPLETE -> PAYOUT_INITIATED. Требует одобрения клиента.
// Если реквизиты не переданы, берутся сохранённые в профиле исполнителя.
func (e *Engine) ProcessPayout(ctx context.Context, escrowID, actorID string, dest *gateway.Destination) (*models.Escrow, *models.Payout, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, nil, err
	}
	if actorID != esc.ProviderID {
		return nil, nil, fmt.Errorf("%w: only the escrow provider may request payout", ErrUnauthorized)
	}
	if esc.Status != models.EscrowStatusInProgress && esc.Status != models.EscrowStatusComplete {
		return nil, nil, fmt.Errorf("%w: payout requires IN_PROGRESS or COMPLETE, have %s", ErrInvalidState, esc.Status)
	}
	if !esc.ClientApproved {
		return nil, nil, fmt.Errorf("%w: payout requires client approval", ErrInvalidState)
	}

	if dest == nil {
		dest, err = e.savedDestination(esc.ProviderID)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := gateway.ValidateDestination(*dest); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	gw, err := e.gateways.Get(esc.HoldProvider)
	if err != nil {
		return nil, nil, e.gatewayLookupErr(err)
	}

	destRaw, _ := json.Marshal(dest)
	payout := models.Payout{
		EscrowID:       esc.ID,
		ProviderID:     esc.ProviderID,
		Amount:         esc.Amount,
		Currency:       esc.Currency,
		PayoutProvider: esc.HoldProvider,
		Method:         models.PayoutMethod(dest.Method),
		Destination:    datatypes.JSON(destRaw),
		Status:         models.PayoutStatusPending,
	}
	if err := e.db.Create(&payout).Error; err != nil {
		return nil, nil, err
	}

	res, err := gw.InitiatePayout(ctx, esc.Amount, esc.Currency, *dest, payout.ID)
	if err != nil || !res.Success {
		reason := ""
		if err != nil {
			reason = err.Error()
		} else {
			reason = res.Message
		}
		e.db.Model(&models.Payout{}).Where("id = ?", payout.ID).
			Updates(map[string]any{"status": models.PayoutStatusFailed, "failure_reason": reason})
		if gerr := e.gatewayOutcome(esc, models.TransactionTypePayout, actorID, res, err); gerr != nil {
			return nil, nil, gerr
		}
	}

	fromStatus := esc.Status
	meta, _ := json.Marshal(map[string]string{"payoutID": payout.ID})
	err = e.db.Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.Payout{}).
			Where("id = ? AND status = ?", payout.ID, models.PayoutStatusPending).
			Updates(map[string]any{
				"status":             models.PayoutStatusProcessing,
				"provider_payout_id": res.TxID,
			})
		if upd.Error != nil {
			return upd.Error
		}
		upd = tx.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", esc.ID, fromStatus).
			Update("status", models.EscrowStatusPayoutInitiated)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidState)
		}
		return e.writeLedger(tx, ledgerEntry{
			EscrowID:     esc.ID,
			Type:         models.TransactionTypePayout,
			Amount:       esc.Amount,
			Currency:     esc.Currency,
			Status:       models.TransactionStatusSuccess,
			InitiatorID:  actorID,
			Provider:     esc.HoldProvider,
			ProviderTxID: res.TxID,
			PrevBalance:  esc.Amount,
			Metadata:     meta,
		})
	})
	if err != nil {
		return nil, nil, err
	}

	esc, _ = e.load(esc.ID)
	e.db.Where("id = ?", payout.ID).First(&payout)
	e.notifyParties(esc, "escrow.payout_initiated")
	return esc, &payout, nil
}

// CompletePayout подтверждает зачисление выплаты (вебхук или автоматика):
// PAYOUT_INITIATED -> PAYOUT_COMPLETED
func (e *Engine) CompletePayout(ctx context.Context, escrowID, providerPayoutID string) (*models.Escrow, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	var payout models.Payout
	q := e.db.Where("escrow_id = ? AND status = ?", esc.ID, models.PayoutStatusProcessing)
	if providerPayoutID != "" {
		q = q.Where("provider_payout_id = ?", providerPayoutID)
	}
	if err := q.First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: processing payout for escrow %s", ErrNotFound, esc.ID)
		}
		return nil, err
	}
	if esc.Status != models.EscrowStatusPayoutInitiated {
		return nil, fmt.Errorf("%w: payout completion requires PAYOUT_INITIATED, have %s", ErrInvalidState, esc.Status)
	}

	now := time.Now()
	err = e.db.Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", esc.ID, models.EscrowStatusPayoutInitiated).
			Update("status", models.EscrowStatusPayoutCompleted)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidState)
		}
		return tx.Model(&models.Payout{}).
			Where("id = ? AND status = ?", payout.ID, models.PayoutStatusProcessing).
			Updates(map[string]any{"status": models.PayoutStatusCompleted, "completed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}

	esc, _ = e.load(esc.ID)
	notifications.Notify(e.db, esc.ProviderID, "escrow.payout_completed", map[string]any{
		"escrowID": esc.ID, "payoutID": payout.ID, "amount": payout.Amount, "currency": payout.Currency,
	})
	return esc, nil
}

// FailPayout фиксирует отказ провайдера в выплате.
// Эскроу возвращается в IN_PROGRESS, чтобы выплату можно было повторить.
func (e *Engine) FailPayout(ctx context.Context, escrowID, providerPayoutID, reason string) (*models.Escrow, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	var payout models.Payout
	q := e.db.Where("escrow_id = ? AND status = ?", esc.ID, models.PayoutStatusProcessing)
	if providerPayoutID != "" {
		q = q.Where("provider_payout_id = ?", providerPayoutID)
	}
	if err := q.First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: processing payout for escrow %s", ErrNotFound, esc.ID)
		}
		return nil, err
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payout{}).
			Where("id = ? AND status = ?", payout.ID, models.PayoutStatusProcessing).
			Updates(map[string]any{"status": models.PayoutStatusFailed, "failure_reason": reason}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", esc.ID, models.EscrowStatusPayoutInitiated).
			Update("status", models.EscrowStatusInProgress).Error
	})
	if err != nil {
		return nil, err
	}

	esc, _ = e.load(esc.ID)
	notifications.Notify(e.db, esc.ProviderID, "escrow.payout_failed", map[string]any{
		"escrowID": esc.ID, "payoutID": payout.ID, "reason": reason,
	})
	return esc, nil
}

// savedDestination реквизиты из профиля исполнителя
func (e *Engine) savedDestination(providerID string) (*gateway.Destination, error) {
	var provider models.User
	if err := e.db.Where("id = ?", providerID).First(&provider).Error; err != nil {
		return nil, fmt.Errorf("%w: provider %s", ErrNotFound, providerID)
	}
	if len(provider.PayoutDestination) == 0 {
		return nil, fmt.Errorf("%w: provider has no payout destination on file", ErrValidation)
	}
	var dest gateway.Destination
	if err := json.Unmarshal(provider.PayoutDestination, &dest); err != nil {
		return nil, fmt.Errorf("%w: stored payout destination is corrupt", ErrValidation)
	}
	return &dest, nil
}
