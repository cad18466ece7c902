package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"servipay/internal/utils"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
	PayoutStatusCancelled  PayoutStatus = "CANCELLED"
)

// PayoutMethod способ получения выплаты исполнителем
type PayoutMethod string

const (
	PayoutMethodBank   PayoutMethod = "bank_account"
	PayoutMethodWallet PayoutMethod = "wallet"
	PayoutMethodCrypto PayoutMethod = "crypto"
)

// Payout одна попытка выплаты исполнителю; жизненный цикл отдельный от эскроу
type Payout struct {
	ID               string       `gorm:"primaryKey;size:21" json:"id"`
	EscrowID         string       `gorm:"size:21;not null;index" json:"escrowID"`
	Escrow           Escrow       `gorm:"foreignKey:EscrowID" json:"-"`
	ProviderID       string       `gorm:"size:21;not null;index" json:"providerID"`
	Provider         User         `gorm:"foreignKey:ProviderID" json:"-"`
	Amount           int64        `gorm:"not null" json:"amount"`
	Currency         string       `gorm:"type:varchar(3);not null" json:"currency"`
	PayoutProvider   string       `gorm:"type:varchar(20);not null" json:"payoutProvider"`
	ProviderPayoutID string       `gorm:"type:varchar(255)" json:"providerPayoutID"`
	Method           PayoutMethod `gorm:"type:varchar(20);not null" json:"method"`
	// Destination реквизиты получателя (банк/кошелёк/криптоадрес)
	Destination   datatypes.JSON `gorm:"type:json" json:"destination"`
	Status        PayoutStatus   `gorm:"type:varchar(20);not null" json:"status"`
	FailureReason string         `gorm:"type:text" json:"failureReason"`
	InitiatedAt   time.Time      `gorm:"autoCreateTime" json:"initiatedAt"`
	CompletedAt   *time.Time     `json:"completedAt"`
}

func (p *Payout) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID, err = utils.GenerateNanoID()
	}
	return
}
