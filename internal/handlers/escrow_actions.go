package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"

	"servipay/internal/escrow"
	"servipay/internal/gateway"
	"servipay/internal/models"
	"servipay/internal/services/storage"
)

type RefundRequest struct {
	Reason string `json:"reason"`
}

type PayoutRequest struct {
	Destination *PayoutDestinationRequest `json:"destination"`
}

type DisputeRequest struct {
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence"`
}

type ResolveDisputeRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
	Code     string `json:"code"`
}

type PayoutResponse struct {
	Escrow *models.Escrow `json:"escrow"`
	Payout *models.Payout `json:"payout"`
}

// ApproveEscrow godoc
// @Summary Одобрить работы по эскроу
// @Description Клиент фиксирует одобрение без немедленного списания; захват выполнит автоматика.
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID эскроу"
// @Success 200 {object} models.Escrow
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /escrows/{id}/approve [post]
func ApproveEscrow(engine *escrow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		esc, err := engine.Approve(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, esc)
	}
}

// CaptureEscrow godoc
// @Summary Списать удержанные средства
// @Description Клиент подтверждает списание: FUNDS_HELD -> IN_PROGRESS.
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID эскроу"
// @Success 200 {object} models.Escrow
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /escrows/{id}/capture [post]
func CaptureEscrow(engine *escrow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		esc, err := engine.Capture(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, esc)
	}
}

// RefundEscrow godoc
// @Summary Вернуть средства клиенту
// @Description Возврат до захвата: CREATED/FUNDS_HELD -> REFUNDED. Доступно клиенту и админу.
// @Tags escrows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID эскроу"
// @Param input body RefundRequest true "причина возврата"
// @Success 200 {object} models.Escrow
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /escrows/{id}/refund [post]
func RefundEscrow(engine *escrow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		role, _ := currentRole(c)
		var r RefundRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		esc, err := engine.Refund(c.Request.Context(), c.Param("id"), userID, role, r.Reason)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, esc)
	}
}

// RequestPayout godoc
// @Summary Запросить выплату исполнителю
// @Description Требует одобрения клиента. Без реквизитов в теле берутся сохранённые в профиле.
// @Tags escrows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID эскроу"
// @Param input body PayoutRequest false "реквизиты выплаты"
// @Success 200 {object} PayoutResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /escrows/{id}/payout [post]
func RequestPayout(engine *escrow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		var r PayoutRequest
		if c.Request.ContentLength > 0 {
			if err := c.BindJSON(&r); err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
				return
			}
		}
		var dest *gateway.Destination
		if r.Destination != nil {
			dest = &gateway.Destination{
				Method:        r.Destination.Method,
				BankCode:      r.Destination.BankCode,
				BankCountry:   r.Destination.BankCountry,
				AccountName:   r.Destination.AccountName,
				AccountNumber: r.Destination.AccountNumber,
				WalletID:      r.Destination.WalletID,
				CryptoAddress: r.Destination.CryptoAddress,
			}
		}
		esc, payout, err := engine.ProcessPayout(c.Request.Context(), c.Param("id"), userID, dest)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, PayoutResponse{Escrow: esc, Payout: payout})
	}
}

// UploadProofOfWork godoc
// @Summary Загрузить подтверждение работ
// @Description Исполнитель прикладывает документы (multipart, поле files) и заметку.
// @Tags escrows
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "ID эскроу"
// @Param files formData file true "документы"
// @Param notes formData string false "заметка"
// @Success 200 {object} models.Escrow
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /escrows/{id}/proof-of-work [post]
func UploadProofOfWork(engine *escrow.Engine, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid multipart form"})
			return
		}
		files := form.File["files"]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no files"})
			return
		}
		escrowID := c.Param("id")
		var objects []string
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot read file"})
				return
			}
			name := storage.ObjectName(escrowID, fh.Filename)
			_, err = store.Upload(c.Request.Context(), name, f, fh.Size, fh.Header.Get("Content-Type"))
			f.Close()
			if err != nil {
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "upload failed"})
				return
			}
			objects = append(objects, name)
		}
		notes := c.PostForm("notes")
		esc, err := engine.UploadProof(c.Request.Context(), escrowID, userID, objects, notes)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, esc)
	}
}

// OpenDispute godoc
// @Summary Открыть спор по эскроу
// @Tags disputes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID эскроу"
// @Param input body DisputeRequest true "причина и доказательства"
// @Success 201 {object} models.Escrow
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /escrows/{id}/dispute [post]
func OpenDispute(engine *escrow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		var r DisputeRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		if r.Reason == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "reason required"})
			return
		}
		esc, err := engine.InitiateDispute(c.Request.Context(), c.Param("id"), userID, r.Reason, r.Evidence)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, esc)
	}
}

// ResolveDispute godoc
// @Summary Решить спор
// @Description Доступно админу. При включённой 2FA обязателен TOTP-код.
// @Tags disputes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID эскроу"
// @Param input body ResolveDisputeRequest true "решение"
// @Success 200 {object} models.Escrow
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /admin/escrows/{id}/resolve [post]
func ResolveDispute(db *gorm.DB, engine *escrow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUserID(c)
		role, _ := currentRole(c)
		var r ResolveDisputeRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		var admin models.User
		if err := db.Where("id = ?", userID).First(&admin).Error; err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no user"})
			return
		}
		if admin.TwoFAEnabled {
			if r.Code == "" || admin.TOTPSecret == nil || !totp.Validate(r.Code, *admin.TOTPSecret) {
				c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid code"})
				return
			}
		}
		esc, err := engine.ResolveDispute(c.Request.Context(), c.Param("id"), userID, role,
			models.DisputeDecision(r.Decision), r.Notes)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, esc)
	}
}
