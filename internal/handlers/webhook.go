package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"servipay/config"
	"servipay/internal/escrow"
	"servipay/internal/gateway"
)

// WebhookEvent общий конверт события провайдера.
// Адаптеры приводят провайдер-специфичные payload'ы к этому виду.
type WebhookEvent struct {
	Type             string `json:"type"`
	EscrowID         string `json:"escrowID"`
	ProviderPayoutID string `json:"providerPayoutID"`
	Reason           string `json:"reason"`
}

// GatewayWebhook godoc
// @Summary Вебхук платёжного провайдера
// @Description Принимает события payout.completed/payout.failed. Подпись проверяется до любых изменений.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param provider path string true "имя провайдера"
// @Param X-Webhook-Timestamp header string true "unix-время подписи"
// @Param X-Webhook-Signature header string true "HMAC-SHA256 подпись"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/{provider} [post]
func GatewayWebhook(cfg *config.Config, engine *escrow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")
		gc, ok := cfg.Gateways[provider]
		if !ok || gc.WebhookSecret == "" {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown provider"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot read body"})
			return
		}
		ts := c.GetHeader("X-Webhook-Timestamp")
		sig := c.GetHeader("X-Webhook-Signature")
		if err := gateway.VerifyWebhook(gc.WebhookSecret, ts, sig, body, time.Now()); err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
			return
		}

		var ev WebhookEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		if ev.EscrowID == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "escrowID required"})
			return
		}

		switch ev.Type {
		case "payout.completed":
			if _, err := engine.CompletePayout(c.Request.Context(), ev.EscrowID, ev.ProviderPayoutID); err != nil {
				respondEngineError(c, err)
				return
			}
		case "payout.failed":
			if _, err := engine.FailPayout(c.Request.Context(), ev.EscrowID, ev.ProviderPayoutID, ev.Reason); err != nil {
				respondEngineError(c, err)
				return
			}
		default:
			// незнакомые события подтверждаем, чтобы провайдер не ретраил
			c.JSON(http.StatusOK, StatusResponse{Status: "ignored"})
			return
		}
		c.JSON(http.StatusOK, StatusResponse{Status: "processed"})
	}
}
