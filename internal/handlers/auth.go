package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"servipay/internal/gateway"
	"servipay/internal/models"
	"servipay/internal/utils"
)

// Общие структуры запросов и ответов для Swagger и тестов

type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Role            string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type Enable2FARequest struct {
	Password string `json:"password"`
}

type Enable2FAResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

type PayoutDestinationRequest struct {
	Method        string `json:"method"`
	BankCode      string `json:"bankCode"`
	BankCountry   string `json:"bankCountry"`
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	WalletID      string `json:"walletID"`
	CryptoAddress string `json:"cryptoAddress"`
}

type ProfileResponse struct {
	Username     string `json:"username"`
	Role         string `json:"role"`
	TwoFAEnabled bool   `json:"twofa_enabled"`
}

// Register godoc
// @Summary Регистрация пользователя
// @Description Создаёт пользователя с ролью client или provider. Роль admin через API не выдаётся.
// @Tags auth
// @Accept json
// @Produce json
// @Param input body RegisterRequest true "данные регистрации"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func Register(db *gorm.DB, ttl map[string]time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r RegisterRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		if r.Password != r.PasswordConfirm {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "passwords do not match"})
			return
		}
		role := models.UserRole(r.Role)
		if role == "" {
			role = models.RoleClient
		}
		if role != models.RoleClient && role != models.RoleProvider {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid role"})
			return
		}
		var count int64
		db.Model(&models.User{}).Where("username = ?", r.Username).Count(&count)
		if count > 0 {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "username exists"})
			return
		}
		pwdHash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "hash error"})
			return
		}
		pwd := string(pwdHash)
		user := models.User{Username: r.Username, Password: &pwd, Role: role}
		if err := db.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		access, refresh := issueTokens(db, user.ID, ttl)
		c.JSON(http.StatusOK, TokenResponse{AccessToken: access, RefreshToken: refresh})
	}
}

// Login godoc
// @Summary Вход пользователя
// @Description Аутентифицирует пользователя и выдаёт пару токенов. При включённой 2FA требуется код.
// @Tags auth
// @Accept json
// @Produce json
// @Param input body LoginRequest true "учётные данные"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func Login(db *gorm.DB, ttl map[string]time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r LoginRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		var user models.User
		if err := db.Where("username = ?", r.Username).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		if user.Password == nil || bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(r.Password)) != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		if user.TwoFAEnabled {
			if r.Code == "" || user.TOTPSecret == nil || !totp.Validate(r.Code, *user.TOTPSecret) {
				c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid code"})
				return
			}
		}
		access, refresh := issueTokens(db, user.ID, ttl)
		c.JSON(http.StatusOK, TokenResponse{AccessToken: access, RefreshToken: refresh})
	}
}

// Refresh godoc
// @Summary Обновление пары токенов
// @Tags auth
// @Accept json
// @Produce json
// @Param input body RefreshRequest true "refresh токен"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/refresh [post]
func Refresh(db *gorm.DB, ttl map[string]time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r RefreshRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		var token models.Token
		if err := db.Where("token = ? AND type = ?", r.RefreshToken, "refresh").First(&token).Error; err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}
		if token.ExpiresAt.Before(time.Now()) {
			db.Delete(&token)
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "token expired"})
			return
		}
		db.Delete(&token)
		access, refresh := issueTokens(db, token.UserID, ttl)
		c.JSON(http.StatusOK, TokenResponse{AccessToken: access, RefreshToken: refresh})
	}
}

// Logout godoc
// @Summary Выход пользователя
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} StatusResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func Logout(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no user"})
			return
		}
		db.Where("user_id = ?", userID).Delete(&models.Token{})
		c.JSON(http.StatusOK, StatusResponse{Status: "logged out"})
	}
}

// Profile godoc
// @Summary Профиль текущего пользователя
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/profile [get]
func Profile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no user"})
			return
		}
		var user models.User
		if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}
		c.JSON(http.StatusOK, ProfileResponse{Username: user.Username, Role: string(user.Role), TwoFAEnabled: user.TwoFAEnabled})
	}
}

// Enable2FA godoc
// @Summary Включить 2FA
// @Description Генерирует TOTP-секрет. Для админов код затем обязателен при решении споров.
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body Enable2FARequest true "пароль"
// @Success 200 {object} Enable2FAResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/2fa/enable [post]
func Enable2FA(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r Enable2FARequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no user"})
			return
		}
		var user models.User
		if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}
		if user.Password == nil || bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(r.Password)) != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "servipay", AccountName: user.Username})
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "totp error"})
			return
		}
		secret := key.Secret()
		if err := db.Model(&user).Updates(map[string]any{"two_fa_enabled": true, "totp_secret": secret}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, Enable2FAResponse{Secret: secret, URL: key.URL()})
	}
}

// SetPayoutDestination godoc
// @Summary Сохранить реквизиты выплат исполнителя
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body PayoutDestinationRequest true "реквизиты"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /auth/payout-destination [post]
func SetPayoutDestination(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no user"})
			return
		}
		if role, _ := currentRole(c); role != models.RoleProvider {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "providers only"})
			return
		}
		var r PayoutDestinationRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		dest := gateway.Destination{
			Method:        r.Method,
			BankCode:      r.BankCode,
			BankCountry:   r.BankCountry,
			AccountName:   r.AccountName,
			AccountNumber: r.AccountNumber,
			WalletID:      r.WalletID,
			CryptoAddress: r.CryptoAddress,
		}
		if err := gateway.ValidateDestination(dest); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		raw, _ := json.Marshal(dest)
		if err := db.Model(&models.User{}).Where("id = ?", userID).
			Update("payout_destination", datatypes.JSON(raw)).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, StatusResponse{Status: "saved"})
	}
}

func issueTokens(db *gorm.DB, userID string, ttl map[string]time.Duration) (string, string) {
	accessStr, _ := utils.GenerateNanoID()
	refreshStr, _ := utils.GenerateNanoID()
	access := models.Token{UserID: userID, Token: accessStr, Type: "access", ExpiresAt: time.Now().Add(ttl["access"])}
	refresh := models.Token{UserID: userID, Token: refreshStr, Type: "refresh", ExpiresAt: time.Now().Add(ttl["refresh"])}
	db.Create(&access)
	db.Create(&refresh)
	return accessStr, refreshStr
}

func currentUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return "", false
	}
	id, _ := v.(string)
	return id, id != ""
}

func currentRole(c *gin.Context) (models.UserRole, bool) {
	v, ok := c.Get("user_role")
	if !ok {
		return "", false
	}
	role, _ := v.(models.UserRole)
	return role, role != ""
}

func AuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := ""
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		} else if q := c.Query("token"); q != "" {
			// вебсокеты передают токен query-параметром
			token = q
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization"})
			return
		}
		var rec models.Token
		if err := db.Where("token = ? AND type = ?", token, "access").First(&rec).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if rec.ExpiresAt.Before(time.Now()) {
			db.Delete(&rec)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
			return
		}
		var user models.User
		if err := db.Where("id = ?", rec.UserID).First(&user).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("user_id", user.ID)
		c.Set("user_role", user.Role)
		c.Next()
	}
}

// RequireRole пропускает только пользователей с указанной ролью
func RequireRole(role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := currentRole(c)
		if !ok || got != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
