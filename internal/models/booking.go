package models

import (
	"time"

	"gorm.io/gorm"
	"servipay/internal/utils"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Booking заказ услуги; эскроу всегда привязан к заказу.
// Автоматика эскроу сверяется со статусом заказа (auto-capture/auto-release
// срабатывают только по завершённым заказам).
type Booking struct {
	ID         string        `gorm:"primaryKey;size:21" json:"id"`
	ClientID   string        `gorm:"size:21;not null;index" json:"clientID"`
	Client     User          `gorm:"foreignKey:ClientID" json:"-"`
	ProviderID string        `gorm:"size:21;not null;index" json:"providerID"`
	Provider   User          `gorm:"foreignKey:ProviderID" json:"-"`
	Service    string        `gorm:"type:varchar(255);not null" json:"service"`
	Status     BookingStatus `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt  time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID, err = utils.GenerateNanoID()
	}
	return
}
