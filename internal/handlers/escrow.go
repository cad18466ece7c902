package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"servipay/internal/escrow"
	"servipay/internal/models"
)

type CreateEscrowRequest struct {
	BookingID    string `json:"bookingID"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	HoldProvider string `json:"holdProvider"`
	Description  string `json:"description"`
}

// CreateEscrow godoc
// @Summary Создать эскроу по заказу
// @Description Удерживает средства у платёжного провайдера и создаёт эскроу в статусе FUNDS_HELD.
// @Tags escrows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body CreateEscrowRequest true "параметры эскроу"
// @Success 201 {object} models.Escrow
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /escrows [post]
func CreateEscrow(engine *escrow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		if role, _ := currentRole(c); role != models.RoleClient {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "clients only"})
			return
		}
		var r CreateEscrowRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		esc, err := engine.Create(c.Request.Context(), escrow.CreateParams{
			BookingID:    r.BookingID,
			ClientID:     userID,
			Amount:       r.Amount,
			Currency:     r.Currency,
			HoldProvider: r.HoldProvider,
			Description:  r.Description,
		})
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, esc)
	}
}

// GetEscrow godoc
// @Summary Получить эскроу
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID эскроу"
// @Success 200 {object} models.Escrow
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /escrows/{id} [get]
func GetEscrow(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		esc, ok := loadEscrowForViewer(c, db)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, esc)
	}
}

// ListEscrows godoc
// @Summary Список эскроу текущего пользователя
// @Description Админ видит все эскроу, стороны — только свои. Фильтр по статусу опционален.
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Param status query string false "фильтр по статусу"
// @Param limit query int false "размер страницы"
// @Param offset query int false "смещение"
// @Success 200 {array} models.Escrow
// @Router /escrows [get]
func ListEscrows(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		role, _ := currentRole(c)
		limit, offset := parsePagination(c)
		q := db.Model(&models.Escrow{}).Order("created_at desc").Limit(limit).Offset(offset)
		switch role {
		case models.RoleAdmin:
		case models.RoleProvider:
			q = q.Where("provider_id = ?", userID)
		default:
			q = q.Where("client_id = ?", userID)
		}
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		var escrows []models.Escrow
		if err := q.Find(&escrows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, escrows)
	}
}

// ListEscrowTransactions godoc
// @Summary Журнал операций по эскроу
// @Description Неизменяемая история всех финансовых событий эскроу в хронологическом порядке.
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID эскроу"
// @Success 200 {array} models.EscrowTransaction
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /escrows/{id}/transactions [get]
func ListEscrowTransactions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		esc, ok := loadEscrowForViewer(c, db)
		if !ok {
			return
		}
		var txs []models.EscrowTransaction
		if err := db.Where("escrow_id = ?", esc.ID).Order("created_at asc").Find(&txs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

// ListEscrowPayouts godoc
// @Summary Выплаты по эскроу
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID эскроу"
// @Success 200 {array} models.Payout
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /escrows/{id}/payouts [get]
func ListEscrowPayouts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		esc, ok := loadEscrowForViewer(c, db)
		if !ok {
			return
		}
		var payouts []models.Payout
		if err := db.Where("escrow_id = ?", esc.ID).Order("initiated_at asc").Find(&payouts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, payouts)
	}
}

// EscrowStats godoc
// @Summary Сводная статистика эскроу
// @Description Доступно только админу.
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Success 200 {object} escrow.Stats
// @Failure 403 {object} ErrorResponse
// @Router /admin/escrows/stats [get]
func EscrowStats(engine *escrow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := engine.CollectStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// loadEscrowForViewer загружает эскроу и проверяет право на чтение:
// стороны эскроу и админ.
func loadEscrowForViewer(c *gin.Context, db *gorm.DB) (*models.Escrow, bool) {
	userID, _ := currentUserID(c)
	role, _ := currentRole(c)
	var esc models.Escrow
	if err := db.Where("id = ?", c.Param("id")).First(&esc).Error; err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "escrow not found"})
		return nil, false
	}
	if role != models.RoleAdmin && esc.ClientID != userID && esc.ProviderID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not your escrow"})
		return nil, false
	}
	return &esc, true
}
