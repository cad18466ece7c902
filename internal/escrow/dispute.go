package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"servipay/internal/models"
)

// InitiateDispute открывает спор по эскроу: любой нетерминальный статус -> DISPUTE.
// Открыть спор может только сторона эскроу.
func (e *Engine) InitiateDispute(ctx context.Context, escrowID, actorID, reason string, evidence []string) (*models.Escrow, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if actorID != esc.ClientID && actorID != esc.ProviderID {
		return nil, fmt.Errorf("%w: only a party of the escrow may open a dispute", ErrUnauthorized)
	}
	if esc.Status.Terminal() {
		return nil, fmt.Errorf("%w: escrow is already settled (%s)", ErrInvalidState, esc.Status)
	}
	if esc.Status == models.EscrowStatusDispute {
		return nil, fmt.Errorf("%w: dispute already open", ErrInvalidState)
	}

	evRaw, _ := json.Marshal(evidence)
	now := time.Now()
	meta, _ := json.Marshal(map[string]string{"reason": reason, "raisedBy": actorID, "fromStatus": string(esc.Status)})
	err = e.db.Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", esc.ID, esc.Status).
			Updates(map[string]any{
				"status":            models.EscrowStatusDispute,
				"dispute_raised":    true,
				"dispute_raised_by": actorID,
				"dispute_reason":    reason,
				"dispute_evidence":  datatypes.JSON(evRaw),
				"dispute_opened_at": now,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidState)
		}
		return e.writeLedger(tx, ledgerEntry{
			EscrowID:    esc.ID,
			Type:        models.TransactionTypeDisputeInitiated,
			Amount:      esc.Amount,
			Currency:    esc.Currency,
			Status:      models.TransactionStatusSuccess,
			InitiatorID: actorID,
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
	e.notifyParties(esc, "escrow.dispute_opened")
	return esc, nil
}

// ResolveDispute решает спор. Только админ (роль проверяется контроллером,
// движок дополнительно сверяет). Решение делегирует те же финансовые
// примитивы, что и основной поток — своей логики работы с провайдером
// у спора нет.
func (e *Engine) ResolveDispute(ctx context.Context, escrowID, adminID string, adminRole models.UserRole, decision models.DisputeDecision, notes string) (*models.Escrow, error) {
	if adminRole != models.RoleAdmin {
		return nil, fmt.Errorf("%w: dispute resolution requires admin role", ErrUnauthorized)
	}
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if esc.Status != models.EscrowStatusDispute {
		return nil, fmt.Errorf("%w: resolution requires DISPUTE, have %s", ErrInvalidState, esc.Status)
	}
	switch decision {
	case models.DecisionRefundClient, models.DecisionPayoutProvider, models.DecisionSplit:
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}

	now := time.Now()
	meta := map[string]any{"decision": decision, "notes": notes}
	if decision == models.DecisionSplit {
		// Равный раздел считается и протоколируется, но финансовая
		// операция не выполняется: частичные возвраты/выплаты ждут
		// продуктового решения. Эскроу остаётся в DISPUTE.
		half := decimal.NewFromInt(esc.Amount).Div(decimal.NewFromInt(2))
		meta["clientShare"] = half.Floor().IntPart()
		meta["providerShare"] = esc.Amount - half.Floor().IntPart()
	}
	metaRaw, _ := json.Marshal(meta)

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", esc.ID, models.EscrowStatusDispute).
			Updates(map[string]any{
				"decision":         decision,
				"resolved_by":      adminID,
				"resolved_at":      now,
				"resolution_notes": notes,
			}).Error; err != nil {
			return err
		}
		return e.writeLedger(tx, ledgerEntry{
			EscrowID:    esc.ID,
			Type:        models.TransactionTypeDisputeResolved,
			Amount:      esc.Amount,
			Currency:    esc.Currency,
			Status:      models.TransactionStatusSuccess,
			InitiatorID: adminID,
			Provider:    esc.HoldProvider,
			PrevBalance: esc.Amount,
			NewBalance:  esc.Amount,
			Metadata:    metaRaw,
		})
	})
	if err != nil {
		return nil, err
	}

	switch decision {
	case models.DecisionRefundClient:
		esc, _ = e.load(esc.ID)
		return e.doRefund(ctx, esc, adminID, "dispute resolved in favor of client", models.EscrowStatusDispute)
	case models.DecisionPayoutProvider:
		// решение арбитража заменяет одобрение клиента
		upd := e.db.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", esc.ID, models.EscrowStatusDispute).
			Updates(map[string]any{
				"status":             models.EscrowStatusInProgress,
				"client_approved":    true,
				"client_approved_at": now,
			})
		if upd.Error != nil {
			return nil, upd.Error
		}
		if upd.RowsAffected == 0 {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidState)
		}
		res, _, err := e.ProcessPayout(ctx, esc.ID, esc.ProviderID, nil)
		if err != nil {
			// выплата не прошла — эскроу остаётся IN_PROGRESS,
			// повтор возможен исполнителем или автоматикой
			return nil, err
		}
		return res, nil
	default: // SPLIT
		esc, _ = e.load(esc.ID)
		e.notifyParties(esc, "escrow.dispute_resolved")
		return esc, nil
	}
}
