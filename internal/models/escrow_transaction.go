package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"servipay/internal/utils"
)

type TransactionType string

const (
	TransactionTypeHold             TransactionType = "HOLD"
	TransactionTypeCapture          TransactionType = "CAPTURE"
	TransactionTypeRefund           TransactionType = "REFUND"
	TransactionTypeDisputeInitiated TransactionType = "DISPUTE_INITIATED"
	TransactionTypeDisputeResolved  TransactionType = "DISPUTE_RESOLVED"
	TransactionTypePayout           TransactionType = "PAYOUT"
)

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// ErrTransactionImmutable запись журнала нельзя менять после создания
var ErrTransactionImmutable = errors.New("escrow transactions are immutable")

// EscrowTransaction запись журнала операций по эскроу.
// Журнал append-only: любая попытка обновить или удалить запись
// отклоняется хуками ниже.
type EscrowTransaction struct {
	ID           string            `gorm:"primaryKey;size:21" json:"id"`
	EscrowID     string            `gorm:"size:21;not null;index" json:"escrowID"`
	Escrow       Escrow            `gorm:"foreignKey:EscrowID" json:"-"`
	Type         TransactionType   `gorm:"type:varchar(20);not null" json:"type"`
	Amount       int64             `gorm:"not null" json:"amount"`
	Currency     string            `gorm:"type:varchar(3);not null" json:"currency"`
	Status       TransactionStatus `gorm:"type:varchar(10);not null" json:"status"`
	InitiatorID  string            `gorm:"size:21" json:"initiatorID"`
	Provider     string            `gorm:"type:varchar(20)" json:"provider"`
	ProviderTxID string            `gorm:"type:varchar(255)" json:"providerTxID"`
	// Балансы носят справочный характер
	PrevBalance int64          `json:"prevBalance"`
	NewBalance  int64          `json:"newBalance"`
	Metadata    datatypes.JSON `gorm:"type:json" json:"metadata"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (t *EscrowTransaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID, err = utils.GenerateNanoID()
	}
	return
}

func (t *EscrowTransaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrTransactionImmutable
}

func (t *EscrowTransaction) BeforeDelete(tx *gorm.DB) error {
	return ErrTransactionImmutable
}
