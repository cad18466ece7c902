package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"servipay/internal/utils"
)

// UserRole роль пользователя маркетплейса
type UserRole string

const (
	// RoleClient заказчик услуг, плательщик по эскроу
	RoleClient UserRole = "client"
	// RoleProvider исполнитель услуг, получатель выплат
	RoleProvider UserRole = "provider"
	// RoleAdmin арбитраж споров и служебные операции
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID           string    `gorm:"primaryKey;size:21" json:"id"`
	Username     string    `gorm:"type:varchar(255);not null;unique" json:"username"`
	Role         UserRole  `gorm:"type:varchar(20);not null" json:"role"`
	Password     *string   `gorm:"type:varchar(255)" json:"-"`
	TwoFAEnabled bool      `gorm:"not null;default:false" json:"twofaEnabled"`
	TOTPSecret   *string   `gorm:"type:varchar(255)" json:"-"`
	// PayoutDestination сохранённые реквизиты выплат исполнителя
	PayoutDestination datatypes.JSON `gorm:"type:json" json:"payoutDestination"`
	RegistredAt       time.Time      `gorm:"autoCreateTime" json:"registredAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID, err = utils.GenerateNanoID()
	}
	return
}
