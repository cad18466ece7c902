package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"servipay/internal/models"
	"servipay/internal/notifications"
)

// NotificationsWS godoc
// @Summary Websocket уведомлений
// @Description Подключает пользователя к потоку уведомлений. После подключения сервер отправляет непрочитанные уведомления.
// @Tags notifications
// @Param token query string true "access token"
// @Success 101 {object} models.Notification "Switching Protocols"
// @Failure 401 {object} ErrorResponse
// @Router /ws/notifications [get]
func NotificationsWS(db *gorm.DB) gin.HandlerFunc {
	notifications.SetDB(db)
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no user"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		notifications.AddClient(userID, conn)
		defer func() {
			notifications.RemoveClient(userID, conn)
			conn.Close()
		}()

		var list []models.Notification
		if err := db.Where("user_id = ? AND read_at IS NULL AND sent_at IS NULL", userID).Find(&list).Error; err == nil {
			for _, n := range list {
				if err := notifications.Send(conn, n); err != nil {
					return
				}
			}
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}
