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

// SupportedCurrencies закрытый список валют маркетплейса
var SupportedCurrencies = map[string]bool{
	"PHP": true,
	"USD": true,
	"EUR": true,
	"SGD": true,
}

// Engine владеет всеми переходами состояний эскроу и выплат.
// Контроллеры и автоматика не пишут в эти таблицы напрямую.
type Engine struct {
	db       *gorm.DB
	gateways *gateway.Registry
}

func NewEngine(db *gorm.DB, gw *gateway.Registry) *Engine {
	return &Engine{db: db, gateways: gw}
}

// CreateParams параметры создания эскроу
type CreateParams struct {
	BookingID    string
	ClientID     string
	Amount       int64
	Currency     string
	HoldProvider string
	Description  string
}

// Create создаёт эскроу: валидация, удержание средств у провайдера,
// затем единая транзакция на запись эскроу и журнала.
// При отказе провайдера ничего не сохраняется.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*models.Escrow, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !SupportedCurrencies[p.Currency] {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, p.Currency)
	}
	if !gateway.Supported(p.HoldProvider) {
		return nil, fmt.Errorf("%w: unsupported hold provider %q", ErrValidation, p.HoldProvider)
	}

	var booking models.Booking
	if err := e.db.Where("id = ?", p.BookingID).First(&booking).Error; err != nil {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, p.BookingID)
	}
	if booking.ClientID != p.ClientID {
		return nil, fmt.Errorf("%w: booking belongs to another client", ErrUnauthorized)
	}
	var client, provider models.User
	if err := e.db.Where("id = ?", booking.ClientID).First(&client).Error; err != nil {
		return nil, fmt.Errorf("%w: client %s", ErrNotFound, booking.ClientID)
	}
	if err := e.db.Where("id = ?", booking.ProviderID).First(&provider).Error; err != nil {
		return nil, fmt.Errorf("%w: provider %s", ErrNotFound, booking.ProviderID)
	}

	gw, err := e.gateways.Get(p.HoldProvider)
	if err != nil {
		return nil, e.gatewayLookupErr(err)
	}
	res, err := gw.CreateHold(ctx, p.Amount, p.Currency, client.ID, p.Description)
	if err != nil {
		return nil, &GatewayError{Provider: p.HoldProvider, Message: err.Error()}
	}
	if !res.Success {
		return nil, &GatewayError{Provider: p.HoldProvider, Message: res.Message, Code: res.Code}
	}

	esc := models.Escrow{
		BookingID:      booking.ID,
		ClientID:       booking.ClientID,
		ProviderID:     booking.ProviderID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		HoldProvider:   p.HoldProvider,
		ProviderHoldID: res.TxID,
		Status:         models.EscrowStatusFundsHeld,
	}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&esc).Error; err != nil {
			return err
		}
		return e.writeLedger(tx, ledgerEntry{
			EscrowID:     esc.ID,
			Type:         models.TransactionTypeHold,
			Amount:       esc.Amount,
			Currency:     esc.Currency,
			Status:       models.TransactionStatusSuccess,
			InitiatorID:  p.ClientID,
			Provider:     p.HoldProvider,
			ProviderTxID: res.TxID,
			NewBalance:   esc.Amount,
		})
	})
	if err != nil {
		return nil, err
	}

	e.notifyParties(&esc, "escrow.created")
	return &esc, nil
}

// Capture превращает удержание в списание: FUNDS_HELD -> IN_PROGRESS.
// Выполняется клиентом (или автоматикой от его имени) и фиксирует
// одобрение клиента.
func (e *Engine) Capture(ctx context.Context, escrowID, actorID string) (*models.Escrow, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if actorID != esc.ClientID {
		return nil, fmt.Errorf("%w: only the escrow client may capture", ErrUnauthorized)
	}
	if esc.Status != models.EscrowStatusFundsHeld {
		return nil, fmt.Errorf("%w: capture requires FUNDS_HELD, have %s", ErrInvalidState, esc.Status)
	}

	gw, err := e.gateways.Get(esc.HoldProvider)
	if err != nil {
		return nil, e.gatewayLookupErr(err)
	}
	res, err := gw.Capture(ctx, esc.ProviderHoldID, esc.Amount, esc.Currency)
	if gerr := e.gatewayOutcome(esc, models.TransactionTypeCapture, actorID, res, err); gerr != nil {
		return nil, gerr
	}

	now := time.Now()
	err = e.db.Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", esc.ID, models.EscrowStatusFundsHeld).
			Updates(map[string]any{
				"status":              models.EscrowStatusInProgress,
				"client_approved":     true,
				"client_approved_at":  now,
				"provider_capture_id": res.TxID,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidState)
		}
		return e.writeLedger(tx, ledgerEntry{
			EscrowID:     esc.ID,
			Type:         models.TransactionTypeCapture,
			Amount:       esc.Amount,
			Currency:     esc.Currency,
			Status:       models.TransactionStatusSuccess,
			InitiatorID:  actorID,
			Provider:     esc.HoldProvider,
			ProviderTxID: res.TxID,
			PrevBalance:  esc.Amount,
			NewBalance:   esc.Amount,
		})
	})
	if err != nil {
		return nil, err
	}

	esc, _ = e.load(esc.ID)
	e.notifyParties(esc, "escrow.captured")
	return esc, nil
}

// Approve фиксирует одобрение клиентом без немедленного захвата.
// Захват выполнит сам клиент или автоматика после выдержки.
func (e *Engine) Approve(ctx context.Context, escrowID, actorID string) (*models.Escrow, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if actorID != esc.ClientID {
		return nil, fmt.Errorf("%w: only the escrow client may approve", ErrUnauthorized)
	}
	if esc.Status != models.EscrowStatusFundsHeld {
		return nil, fmt.Errorf("%w: approval requires FUNDS_HELD, have %s", ErrInvalidState, esc.Status)
	}
	if esc.ClientApproved {
		return esc, nil
	}
	now := time.Now()
	if err := e.db.Model(&models.Escrow{}).
		Where("id = ? AND status = ?", esc.ID, models.EscrowStatusFundsHeld).
		Updates(map[string]any{"client_approved": true, "client_approved_at": now}).Error; err != nil {
		return nil, err
	}
	esc, _ = e.load(esc.ID)
	notifications.Notify(e.db, esc.ProviderID, "escrow.approved", map[string]any{"escrowID": esc.ID})
	return esc, nil
}

// Refund возвращает средства клиенту до захвата: CREATED/FUNDS_HELD -> REFUNDED
func (e *Engine) Refund(ctx context.Context, escrowID, actorID string, actorRole models.UserRole, reason string) (*models.Escrow, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if actorID != esc.ClientID && actorRole != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only the escrow client or an admin may refund", ErrUnauthorized)
	}
	if esc.Status != models.EscrowStatusCreated && esc.Status != models.EscrowStatusFundsHeld {
		return nil, fmt.Errorf("%w: refund requires CREATED or FUNDS_HELD, have %s", ErrInvalidState, esc.Status)
	}
	return e.doRefund(ctx, esc, actorID, reason, esc.Status)
}

// doRefund общий финансовый примитив возврата; используется и прямым
// запросом, и решением спора. fromStatus страхует от гонки.
func (e *Engine) doRefund(ctx context.Context, esc *models.Escrow, actorID, reason string, fromStatus models.EscrowStatus) (*models.Escrow, error) {
	gw, err := e.gateways.Get(esc.HoldProvider)
	if err != nil {
		return nil, e.gatewayLookupErr(err)
	}

	// после захвата возврат идёт по charge, до захвата — снятием холда
	var res *gateway.Result
	if esc.ProviderCaptureID != "" {
		res, err = gw.Refund(ctx, esc.ProviderCaptureID, esc.Amount, reason)
	} else {
		res, err = gw.Release(ctx, esc.ProviderHoldID)
	}
	if gerr := e.gatewayOutcome(esc, models.TransactionTypeRefund, actorID, res, err); gerr != nil {
		return nil, gerr
	}

	meta, _ := json.Marshal(map[string]string{"reason": reason})
	err = e.db.Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", esc.ID, fromStatus).
			Update("status", models.EscrowStatusRefunded)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidState)
		}
		return e.writeLedger(tx, ledgerEntry{
			EscrowID:     esc.ID,
			Type:         models.TransactionTypeRefund,
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
		return nil, err
	}

	esc, _ = e.load(esc.ID)
	e.notifyParties(esc, "escrow.refunded")
	return esc, nil
}

// UploadProof прикрепляет подтверждение выполненной работы.
// Статус эскроу не меняется.
func (e *Engine) UploadProof(ctx context.Context, escrowID, actorID string, documents []string, notes string) (*models.Escrow, error) {
	esc, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if actorID != esc.ProviderID {
		return nil, fmt.Errorf("%w: only the escrow provider may upload proof", ErrUnauthorized)
	}
	if esc.Status != models.EscrowStatusFundsHeld && esc.Status != models.EscrowStatusInProgress {
		return nil, fmt.Errorf("%w: proof upload requires FUNDS_HELD or IN_PROGRESS, have %s", ErrInvalidState, esc.Status)
	}

	var existing []string
	if len(esc.ProofOfWork) > 0 {
		_ = json.Unmarshal(esc.ProofOfWork, &existing)
	}
	existing = append(existing, documents...)
	raw, err := json.Marshal(existing)
	if err != nil {
		return nil, err
	}
	upd := map[string]any{"proof_of_work": datatypes.JSON(raw)}
	if notes != "" {
		upd["proof_notes"] = notes
	}
	if err := e.db.Model(&models.Escrow{}).Where("id = ?", esc.ID).Updates(upd).Error; err != nil {
		return nil, err
	}

	esc, _ = e.load(esc.ID)
	notifications.Notify(e.db, esc.ClientID, "escrow.proof_uploaded", map[string]any{"escrowID": esc.ID})
	return esc, nil
}

// load возвращает эскроу или ErrNotFound
func (e *Engine) load(id string) (*models.Escrow, error) {
	var esc models.Escrow
	if err := e.db.Where("id = ?", id).First(&esc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: escrow %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &esc, nil
}

// gatewayLookupErr переводит ошибки реестра в виды ошибок движка
func (e *Engine) gatewayLookupErr(err error) error {
	if errors.Is(err, gateway.ErrUnknownProvider) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return fmt.Errorf("%w: %v", ErrConfiguration, err)
}

// gatewayOutcome обрабатывает итог вызова провайдера: транспортный сбой
// или отказ фиксируются FAILED-записью журнала, статус эскроу не меняется.
func (e *Engine) gatewayOutcome(esc *models.Escrow, op models.TransactionType, actorID string, res *gateway.Result, err error) error {
	if err != nil {
		if errors.Is(err, gateway.ErrPayoutUnsupported) {
			return fmt.Errorf("%w: %s payouts", ErrConfiguration, esc.HoldProvider)
		}
		e.logFailure(esc, op, actorID, err.Error(), "")
		return &GatewayError{Provider: esc.HoldProvider, Message: err.Error()}
	}
	if !res.Success {
		e.logFailure(esc, op, actorID, res.Message, res.Code)
		return &GatewayError{Provider: esc.HoldProvider, Message: res.Message, Code: res.Code}
	}
	return nil
}

// logFailure пишет FAILED-запись журнала; сбой самой записи только логируется
func (e *Engine) logFailure(esc *models.Escrow, op models.TransactionType, actorID, message, code string) {
	meta, _ := json.Marshal(map[string]string{"error": message, "code": code})
	_ = e.writeLedger(e.db, ledgerEntry{
		EscrowID:    esc.ID,
		Type:        op,
		Amount:      esc.Amount,
		Currency:    esc.Currency,
		Status:      models.TransactionStatusFailed,
		InitiatorID: actorID,
		Provider:    esc.HoldProvider,
		PrevBalance: esc.Amount,
		NewBalance:  esc.Amount,
		Metadata:    meta,
	})
}

// ledgerEntry параметры записи журнала
type ledgerEntry struct {
	EscrowID     string
	Type         models.TransactionType
	Amount       int64
	Currency     string
	Status       models.TransactionStatus
	InitiatorID  string
	Provider     string
	ProviderTxID string
	PrevBalance  int64
	NewBalance   int64
	Metadata     []byte
}

// writeLedger добавляет запись журнала. Повторная запись того же
// успешного события (эскроу + тип + идентификатор провайдера)
// пропускается — защита от дублей при ретраях.
func (e *Engine) writeLedger(tx *gorm.DB, p ledgerEntry) error {
	if p.Status == models.TransactionStatusSuccess && p.ProviderTxID != "" {
		var count int64
		tx.Model(&models.EscrowTransaction{}).
			Where("escrow_id = ? AND type = ? AND provider_tx_id = ? AND status = ?",
				p.EscrowID, p.Type, p.ProviderTxID, models.TransactionStatusSuccess).
			Count(&count)
		if count > 0 {
			return nil
		}
	}
	rec := models.EscrowTransaction{
		EscrowID:     p.EscrowID,
		Type:         p.Type,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       p.Status,
		InitiatorID:  p.InitiatorID,
		Provider:     p.Provider,
		ProviderTxID: p.ProviderTxID,
		PrevBalance:  p.PrevBalance,
		NewBalance:   p.NewBalance,
	}
	if len(p.Metadata) > 0 {
		rec.Metadata = datatypes.JSON(p.Metadata)
	}
	return tx.Create(&rec).Error
}

// notifyParties рассылает событие обеим сторонам эскроу
func (e *Engine) notifyParties(esc *models.Escrow, eventType string) {
	payload := map[string]any{
		"escrowID": esc.ID,
		"status":   esc.Status,
		"amount":   esc.Amount,
		"currency": esc.Currency,
	}
	notifications.Notify(e.db, esc.ClientID, eventType, payload)
	notifications.Notify(e.db, esc.ProviderID, eventType, payload)
}
