package db

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"servipay/internal/models"
)

// SeedUsers создаёт демо-аккаунты для локальной разработки.
// Существующие пользователи не трогаются.
func SeedUsers(db *gorm.DB) error {
	users := []struct {
		username string
		role     models.UserRole
	}{
		{"demo-client", models.RoleClient},
		{"demo-provider", models.RoleProvider},
		{"demo-admin", models.RoleAdmin},
	}
	for _, u := range users {
		var count int64
		if err := db.Model(&models.User{}).Where("username = ?", u.username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		pwd := string(hash)
		if err := db.Create(&models.User{Username: u.username, Role: u.role, Password: &pwd}).Error; err != nil {
			return err
		}
	}
	return nil
}
