package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"servipay/config"
	"servipay/internal/escrow"
	"servipay/internal/gateway"
	"servipay/internal/models"
	"servipay/internal/services/storage"
)

// stubGateway всегда успешный платёжный провайдер для HTTP-тестов
type stubGateway struct {
	seq int
}

func (s *stubGateway) Name() string { return "stripe" }

func (s *stubGateway) next(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

func (s *stubGateway) CreateHold(ctx context.Context, amount int64, currency, clientRef, description string) (*gateway.Result, error) {
	return &gateway.Result{Success: true, TxID: s.next("hold")}, nil
}

func (s *stubGateway) Capture(ctx context.Context, holdID string, amount int64, currency string) (*gateway.Result, error) {
	return &gateway.Result{Success: true, TxID: s.next("cap")}, nil
}

func (s *stubGateway) Release(ctx context.Context, holdID string) (*gateway.Result, error) {
	return &gateway.Result{Success: true, TxID: s.next("rel")}, nil
}

func (s *stubGateway) Refund(ctx context.Context, chargeID string, amount int64, reason string) (*gateway.Result, error) {
	return &gateway.Result{Success: true, TxID: s.next("ref")}, nil
}

func (s *stubGateway) InitiatePayout(ctx context.Context, amount int64, currency string, dest gateway.Destination, reference string) (*gateway.Result, error) {
	return &gateway.Result{Success: true, TxID: s.next("po")}, nil
}

const testWebhookSecret = "whsec_test"

// setupTest создаёт in-memory БД и маршруты для тестов.
func setupTest(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Token{},
		&models.Booking{},
		&models.Escrow{},
		&models.EscrowTransaction{},
		&models.Payout{},
		&models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	gw := gateway.NewRegistry(nil)
	gw.Register(&stubGateway{})
	engine := escrow.NewEngine(db, gw)
	store, err := storage.New("", "", "", "", false)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	cfg := &config.Config{
		Gateways: map[string]config.GatewayConfig{
			"stripe": {SecretKey: "sk_test", WebhookSecret: testWebhookSecret},
		},
	}
	ttl := map[string]time.Duration{"access": time.Minute, "refresh": time.Hour}

	r := gin.Default()
	r.GET("/health", Health(db))
	r.POST("/webhooks/:provider", GatewayWebhook(cfg, engine))

	auth := r.Group("/auth")
	auth.POST("/register", Register(db, ttl))
	auth.POST("/login", Login(db, ttl))
	auth.POST("/refresh", Refresh(db, ttl))
	auth.Use(AuthMiddleware(db))
	auth.GET("/profile", Profile(db))
	auth.POST("/logout", Logout(db))
	auth.POST("/2fa/enable", Enable2FA(db))
	auth.POST("/payout-destination", SetPayoutDestination(db))

	api := r.Group("/")
	api.Use(AuthMiddleware(db))
	api.GET("/bookings", ListBookings(db))
	api.POST("/bookings", CreateBooking(db))
	api.GET("/bookings/:id", GetBooking(db))
	api.POST("/bookings/:id/confirm", ConfirmBooking(db))
	api.POST("/bookings/:id/complete", CompleteBooking(db))
	api.POST("/bookings/:id/cancel", CancelBooking(db))
	api.GET("/escrows", ListEscrows(db))
	api.POST("/escrows", CreateEscrow(engine))
	api.GET("/escrows/:id", GetEscrow(db))
	api.GET("/escrows/:id/transactions", ListEscrowTransactions(db))
	api.GET("/escrows/:id/payouts", ListEscrowPayouts(db))
	api.POST("/escrows/:id/approve", ApproveEscrow(engine))
	api.POST("/escrows/:id/capture", CaptureEscrow(engine))
	api.POST("/escrows/:id/refund", RefundEscrow(engine))
	api.POST("/escrows/:id/payout", RequestPayout(engine))
	api.POST("/escrows/:id/proof-of-work", UploadProofOfWork(engine, store))
	api.POST("/escrows/:id/dispute", OpenDispute(engine))
	api.GET("/notifications", ListNotifications(db))
	api.PATCH("/notifications/:id/read", ReadNotification(db))

	admin := r.Group("/admin")
	admin.Use(AuthMiddleware(db), RequireRole(models.RoleAdmin))
	admin.GET("/escrows/stats", EscrowStats(engine))
	admin.POST("/escrows/:id/resolve", ResolveDispute(db, engine))

	return db, r
}

// registerUser регистрирует пользователя и возвращает access-токен
func registerUser(t *testing.T, r *gin.Engine, username, role string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":"pass","password_confirm":"pass","role":%q}`, username, role)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/auth/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("register %s status %d: %s", username, w.Code, w.Body.String())
	}
	var tok TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil {
		t.Fatalf("register parse: %v", err)
	}
	return tok.AccessToken
}

// makeAdmin поднимает пользователя до админа напрямую в БД:
// через API роль admin не выдаётся.
func makeAdmin(t *testing.T, db *gorm.DB, username string) {
	t.Helper()
	if err := db.Model(&models.User{}).Where("username = ?", username).
		Update("role", models.RoleAdmin).Error; err != nil {
		t.Fatalf("make admin: %v", err)
	}
}

// doJSON выполняет запрос с телом и токеном
func doJSON(t *testing.T, r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}
