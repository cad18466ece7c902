package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"servipay/internal/utils"
)

type EscrowStatus string

const (
	EscrowStatusCreated         EscrowStatus = "CREATED"
	EscrowStatusFundsHeld       EscrowStatus = "FUNDS_HELD"
	EscrowStatusInProgress      EscrowStatus = "IN_PROGRESS"
	EscrowStatusComplete        EscrowStatus = "COMPLETE"
	EscrowStatusDispute         EscrowStatus = "DISPUTE"
	EscrowStatusRefunded        EscrowStatus = "REFUNDED"
	EscrowStatusPayoutInitiated EscrowStatus = "PAYOUT_INITIATED"
	EscrowStatusPayoutCompleted EscrowStatus = "PAYOUT_COMPLETED"
)

// DisputeDecision решение арбитража по спору
type DisputeDecision string

const (
	DecisionRefundClient   DisputeDecision = "REFUND_CLIENT"
	DecisionPayoutProvider DisputeDecision = "PAYOUT_PROVIDER"
	DecisionSplit          DisputeDecision = "SPLIT"
)

// Escrow платёж по заказу, удерживаемый до выплаты или возврата.
// Финансовая запись: строки никогда не удаляются физически.
// Amount хранится в минимальных единицах валюты (центах).
type Escrow struct {
	ID         string  `gorm:"primaryKey;size:21" json:"id"`
	BookingID  string  `gorm:"size:21;not null;index" json:"bookingID"`
	Booking    Booking `gorm:"foreignKey:BookingID" json:"-"`
	ClientID   string  `gorm:"size:21;not null;index" json:"clientID"`
	Client     User    `gorm:"foreignKey:ClientID" json:"-"`
	ProviderID string  `gorm:"size:21;not null;index" json:"providerID"`
	Provider   User    `gorm:"foreignKey:ProviderID" json:"-"`

	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:varchar(3);not null" json:"currency"`

	HoldProvider      string `gorm:"type:varchar(20);not null" json:"holdProvider"`
	ProviderHoldID    string `gorm:"type:varchar(255)" json:"providerHoldID"`
	ProviderCaptureID string `gorm:"type:varchar(255)" json:"providerCaptureID"`

	Status EscrowStatus `gorm:"type:varchar(20);not null" json:"status"`

	ProofOfWork datatypes.JSON `gorm:"type:json" json:"proofOfWork"`
	ProofNotes  string         `gorm:"type:text" json:"proofNotes"`

	ClientApproved   bool       `gorm:"not null;default:false" json:"clientApproved"`
	ClientApprovedAt *time.Time `json:"clientApprovedAt"`

	DisputeRaised   bool            `gorm:"not null;default:false" json:"disputeRaised"`
	DisputeRaisedBy string          `gorm:"size:21" json:"disputeRaisedBy"`
	DisputeReason   string          `gorm:"type:text" json:"disputeReason"`
	DisputeEvidence datatypes.JSON  `gorm:"type:json" json:"disputeEvidence"`
	DisputeOpenedAt *time.Time      `json:"disputeOpenedAt"`
	Decision        DisputeDecision `gorm:"type:varchar(20)" json:"decision"`
	ResolvedBy      string          `gorm:"size:21" json:"resolvedBy"`
	ResolvedAt      *time.Time      `json:"resolvedAt"`
	ResolutionNotes string          `gorm:"type:text" json:"resolutionNotes"`

	FlaggedAsStuck bool       `gorm:"not null;default:false" json:"flaggedAsStuck"`
	StuckFlaggedAt *time.Time `json:"stuckFlaggedAt"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (e *Escrow) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID, err = utils.GenerateNanoID()
	}
	return
}

// Terminal сообщает, достиг ли эскроу конечного состояния
func (s EscrowStatus) Terminal() bool {
	return s == EscrowStatusRefunded || s == EscrowStatusPayoutCompleted
}
