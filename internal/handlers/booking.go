package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"servipay/internal/models"
	"servipay/internal/notifications"
)

type CreateBookingRequest struct {
	ProviderID string `json:"providerID"`
	Service    string `json:"service"`
}

// CreateBooking godoc
// @Summary Создать заказ услуги
// @Description Доступно заказчику. Заказ создаётся в статусе PENDING.
// @Tags bookings
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body CreateBookingRequest true "данные заказа"
// @Success 201 {object} models.Booking
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /bookings [post]
func CreateBooking(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		if role, _ := currentRole(c); role != models.RoleClient {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "clients only"})
			return
		}
		var r CreateBookingRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		if r.Service == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "service required"})
			return
		}
		var provider models.User
		if err := db.Where("id = ? AND role = ?", r.ProviderID, models.RoleProvider).First(&provider).Error; err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "provider not found"})
			return
		}
		booking := models.Booking{
			ClientID:   userID,
			ProviderID: r.ProviderID,
			Service:    r.Service,
			Status:     models.BookingStatusPending,
		}
		if err := db.Create(&booking).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		notifications.Notify(db, booking.ProviderID, "BOOKING_CREATED", map[string]any{
			"bookingID": booking.ID,
			"service":   booking.Service,
		})
		c.JSON(http.StatusCreated, booking)
	}
}

// ConfirmBooking godoc
// @Summary Подтвердить заказ
// @Description Исполнитель принимает заказ в работу: PENDING -> CONFIRMED.
// @Tags bookings
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID заказа"
// @Success 200 {object} models.Booking
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /bookings/{id}/confirm [post]
func ConfirmBooking(db *gorm.DB) gin.HandlerFunc {
	return transitionBooking(db, models.BookingStatusPending, models.BookingStatusConfirmed, "BOOKING_CONFIRMED")
}

// CompleteBooking godoc
// @Summary Завершить заказ
// @Description Исполнитель отмечает работы выполненными: CONFIRMED -> COMPLETED.
// @Tags bookings
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID заказа"
// @Success 200 {object} models.Booking
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /bookings/{id}/complete [post]
func CompleteBooking(db *gorm.DB) gin.HandlerFunc {
	return transitionBooking(db, models.BookingStatusConfirmed, models.BookingStatusCompleted, "BOOKING_COMPLETED")
}

// transitionBooking общий переход статуса заказа исполнителем.
// Условие from в UPDATE защищает от гонки двух одновременных запросов.
func transitionBooking(db *gorm.DB, from, to models.BookingStatus, event string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		var booking models.Booking
		if err := db.Where("id = ?", c.Param("id")).First(&booking).Error; err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
			return
		}
		if booking.ProviderID != userID {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not your booking"})
			return
		}
		res := db.Model(&models.Booking{}).
			Where("id = ? AND status = ?", booking.ID, from).
			Update("status", to)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid booking status"})
			return
		}
		booking.Status = to
		notifications.Notify(db, booking.ClientID, event, map[string]any{"bookingID": booking.ID})
		c.JSON(http.StatusOK, booking)
	}
}

// CancelBooking godoc
// @Summary Отменить заказ
// @Description Любая из сторон отменяет заказ до завершения работ.
// @Tags bookings
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID заказа"
// @Success 200 {object} models.Booking
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /bookings/{id}/cancel [post]
func CancelBooking(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		var booking models.Booking
		if err := db.Where("id = ?", c.Param("id")).First(&booking).Error; err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
			return
		}
		if booking.ClientID != userID && booking.ProviderID != userID {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not your booking"})
			return
		}
		res := db.Model(&models.Booking{}).
			Where("id = ? AND status IN ?", booking.ID,
				[]models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed}).
			Update("status", models.BookingStatusCancelled)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid booking status"})
			return
		}
		booking.Status = models.BookingStatusCancelled
		other := booking.ClientID
		if userID == booking.ClientID {
			other = booking.ProviderID
		}
		notifications.Notify(db, other, "BOOKING_CANCELLED", map[string]any{"bookingID": booking.ID})
		c.JSON(http.StatusOK, booking)
	}
}

// GetBooking godoc
// @Summary Получить заказ
// @Tags bookings
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID заказа"
// @Success 200 {object} models.Booking
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /bookings/{id} [get]
func GetBooking(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		role, _ := currentRole(c)
		var booking models.Booking
		if err := db.Where("id = ?", c.Param("id")).First(&booking).Error; err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
			return
		}
		if role != models.RoleAdmin && booking.ClientID != userID && booking.ProviderID != userID {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not your booking"})
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

// ListBookings godoc
// @Summary Список заказов текущего пользователя
// @Tags bookings
// @Security BearerAuth
// @Produce json
// @Param limit query int false "размер страницы"
// @Param offset query int false "смещение"
// @Success 200 {array} models.Booking
// @Router /bookings [get]
func ListBookings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		role, _ := currentRole(c)
		limit, offset := parsePagination(c)
		q := db.Model(&models.Booking{}).Order("created_at desc").Limit(limit).Offset(offset)
		switch role {
		case models.RoleAdmin:
		case models.RoleProvider:
			q = q.Where("provider_id = ?", userID)
		default:
			q = q.Where("client_id = ?", userID)
		}
		var bookings []models.Booking
		if err := q.Find(&bookings).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, bookings)
	}
}
