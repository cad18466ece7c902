package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"servipay/internal/gateway"
	"servipay/internal/models"
)

// fakeGateway управляемый адаптер для тестов движка
type fakeGateway struct {
	name string

	declineHold    bool
	declineCapture bool
	captureErr     error
	payoutErr      error
	declinePayout  bool

	holds    int
	captures int
	releases int
	refunds  int
	payouts  int
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) CreateHold(ctx context.Context, amount int64, currency, clientRef, description string) (*gateway.Result, error) {
	f.holds++
	if f.declineHold {
		return &gateway.Result{Success: false, Message: "card declined", Code: "card_declined"}, nil
	}
	return &gateway.Result{Success: true, TxID: fmt.Sprintf("hold_%d", f.holds)}, nil
}

func (f *fakeGateway) Capture(ctx context.Context, holdID string, amount int64, currency string) (*gateway.Result, error) {
	f.captures++
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	if f.declineCapture {
		return &gateway.Result{Success: false, Message: "insufficient funds", Code: "insufficient_funds"}, nil
	}
	return &gateway.Result{Success: true, TxID: fmt.Sprintf("cap_%d", f.captures)}, nil
}

func (f *fakeGateway) Release(ctx context.Context, holdID string) (*gateway.Result, error) {
	f.releases++
	return &gateway.Result{Success: true, TxID: fmt.Sprintf("rel_%d", f.releases)}, nil
}

func (f *fakeGateway) Refund(ctx context.Context, chargeID string, amount int64, reason string) (*gateway.Result, error) {
	f.refunds++
	return &gateway.Result{Success: true, TxID: fmt.Sprintf("ref_%d", f.refunds)}, nil
}

func (f *fakeGateway) InitiatePayout(ctx context.Context, amount int64, currency string, dest gateway.Destination, reference string) (*gateway.Result, error) {
	f.payouts++
	if f.payoutErr != nil {
		return nil, f.payoutErr
	}
	if f.declinePayout {
		return &gateway.Result{Success: false, Message: "payout rejected", Code: "rejected"}, nil
	}
	return &gateway.Result{Success: true, TxID: fmt.Sprintf("po_%d", f.payouts)}, nil
}

type testEnv struct {
	db       *gorm.DB
	engine   *Engine
	gw       *fakeGateway
	client   models.User
	provider models.User
	admin    models.User
	booking  models.Booking
}

func setupEngine(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Booking{},
		&models.Escrow{},
		&models.EscrowTransaction{},
		&models.Payout{},
		&models.Notification{},
	))

	gw := &fakeGateway{name: "stripe"}
	reg := gateway.NewRegistry(nil)
	reg.Register(gw)

	env := &testEnv{
		db:       db,
		engine:   NewEngine(db, reg),
		gw:       gw,
		client:   models.User{Username: "client", Role: models.RoleClient},
		provider: models.User{Username: "provider", Role: models.RoleProvider},
		admin:    models.User{Username: "admin", Role: models.RoleAdmin},
	}
	require.NoError(t, db.Create(&env.client).Error)
	require.NoError(t, db.Create(&env.provider).Error)
	require.NoError(t, db.Create(&env.admin).Error)

	env.booking = models.Booking{
		ClientID:   env.client.ID,
		ProviderID: env.provider.ID,
		Service:    "plumbing",
		Status:     models.BookingStatusConfirmed,
	}
	require.NoError(t, db.Create(&env.booking).Error)
	return env
}

func (env *testEnv) create(t *testing.T) *models.Escrow {
	t.Helper()
	esc, err := env.engine.Create(context.Background(), CreateParams{
		BookingID:    env.booking.ID,
		ClientID:     env.client.ID,
		Amount:       50000,
		Currency:     "PHP",
		HoldProvider: "stripe",
	})
	require.NoError(t, err)
	return esc
}

func (env *testEnv) ledger(t *testing.T, escrowID string) []models.EscrowTransaction {
	t.Helper()
	var txs []models.EscrowTransaction
	require.NoError(t, env.db.Where("escrow_id = ?", escrowID).Order("created_at asc").Find(&txs).Error)
	return txs
}

func TestCreateValidation(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	_, err := env.engine.Create(ctx, CreateParams{BookingID: env.booking.ID, ClientID: env.client.ID, Amount: 0, Currency: "PHP", HoldProvider: "stripe"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.engine.Create(ctx, CreateParams{BookingID: env.booking.ID, ClientID: env.client.ID, Amount: -5, Currency: "PHP", HoldProvider: "stripe"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.engine.Create(ctx, CreateParams{BookingID: env.booking.ID, ClientID: env.client.ID, Amount: 100, Currency: "JPY", HoldProvider: "stripe"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.engine.Create(ctx, CreateParams{BookingID: env.booking.ID, ClientID: env.client.ID, Amount: 100, Currency: "PHP", HoldProvider: "square"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.engine.Create(ctx, CreateParams{BookingID: "missing", ClientID: env.client.ID, Amount: 100, Currency: "PHP", HoldProvider: "stripe"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.engine.Create(ctx, CreateParams{BookingID: env.booking.ID, ClientID: env.provider.ID, Amount: 100, Currency: "PHP", HoldProvider: "stripe"})
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Equal(t, 0, env.gw.holds)
}

func TestCreateHoldDeclined(t *testing.T) {
	env := setupEngine(t)
	env.gw.declineHold = true

	_, err := env.engine.Create(context.Background(), CreateParams{
		BookingID: env.booking.ID, ClientID: env.client.ID,
		Amount: 100, Currency: "PHP", HoldProvider: "stripe",
	})
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, "card_declined", gerr.Code)

	// отказ провайдера — эскроу не создаётся вовсе
	var count int64
	env.db.Model(&models.Escrow{}).Count(&count)
	require.Zero(t, count)
}

func TestCreateWritesHoldLedger(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)

	require.Equal(t, models.EscrowStatusFundsHeld, esc.Status)
	require.NotEmpty(t, esc.ProviderHoldID)

	txs := env.ledger(t, esc.ID)
	require.Len(t, txs, 1)
	require.Equal(t, models.TransactionTypeHold, txs[0].Type)
	require.Equal(t, models.TransactionStatusSuccess, txs[0].Status)
	require.Equal(t, int64(50000), txs[0].Amount)
}

func TestCaptureFlow(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	ctx := context.Background()

	// захват не клиентом запрещён
	_, err := env.engine.Capture(ctx, esc.ID, env.provider.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	esc, err = env.engine.Capture(ctx, esc.ID, env.client.ID)
	require.NoError(t, err)
	require.Equal(t, models.EscrowStatusInProgress, esc.Status)
	require.True(t, esc.ClientApproved)
	require.NotEmpty(t, esc.ProviderCaptureID)

	// повторный захват отклоняется по статусу
	_, err = env.engine.Capture(ctx, esc.ID, env.client.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, 1, env.gw.captures)

	txs := env.ledger(t, esc.ID)
	require.Len(t, txs, 2)
	require.Equal(t, models.TransactionTypeCapture, txs[1].Type)
}

func TestCaptureDeclineKeepsStatus(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	env.gw.declineCapture = true

	_, err := env.engine.Capture(context.Background(), esc.ID, env.client.ID)
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)

	var got models.Escrow
	require.NoError(t, env.db.First(&got, "id = ?", esc.ID).Error)
	require.Equal(t, models.EscrowStatusFundsHeld, got.Status)

	// отказ фиксируется FAILED-записью журнала
	txs := env.ledger(t, esc.ID)
	require.Len(t, txs, 2)
	require.Equal(t, models.TransactionTypeCapture, txs[1].Type)
	require.Equal(t, models.TransactionStatusFailed, txs[1].Status)
}

func TestApprove(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	ctx := context.Background()

	_, err := env.engine.Approve(ctx, esc.ID, env.provider.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	esc, err = env.engine.Approve(ctx, esc.ID, env.client.ID)
	require.NoError(t, err)
	require.True(t, esc.ClientApproved)
	require.NotNil(t, esc.ClientApprovedAt)
	// одобрение само по себе не списывает средства
	require.Equal(t, models.EscrowStatusFundsHeld, esc.Status)
	require.Equal(t, 0, env.gw.captures)

	// повторное одобрение идемпотентно
	esc, err = env.engine.Approve(ctx, esc.ID, env.client.ID)
	require.NoError(t, err)
	require.True(t, esc.ClientApproved)
}

func TestRefundBeforeCapture(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)

	esc, err := env.engine.Refund(context.Background(), esc.ID, env.client.ID, models.RoleClient, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, models.EscrowStatusRefunded, esc.Status)
	// до захвата возврат снимает холд, а не рефандит списание
	require.Equal(t, 1, env.gw.releases)
	require.Equal(t, 0, env.gw.refunds)
}

func TestRefundAfterSettlementRejected(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	require.NoError(t, env.db.Model(&models.Escrow{}).Where("id = ?", esc.ID).
		Update("status", models.EscrowStatusPayoutCompleted).Error)

	_, err := env.engine.Refund(context.Background(), esc.ID, env.client.ID, models.RoleClient, "too late")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestRefundAuthorization(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	ctx := context.Background()

	_, err := env.engine.Refund(ctx, esc.ID, env.provider.ID, models.RoleProvider, "nope")
	require.ErrorIs(t, err, ErrUnauthorized)

	// админ может вернуть средства за клиента
	esc, err = env.engine.Refund(ctx, esc.ID, env.admin.ID, models.RoleAdmin, "support request")
	require.NoError(t, err)
	require.Equal(t, models.EscrowStatusRefunded, esc.Status)
}

func TestPayoutRequiresApproval(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)

	// IN_PROGRESS без одобрения клиента
	require.NoError(t, env.db.Model(&models.Escrow{}).Where("id = ?", esc.ID).
		Update("status", models.EscrowStatusInProgress).Error)

	_, _, err := env.engine.ProcessPayout(context.Background(), esc.ID, env.provider.ID,
		&gateway.Destination{Method: "wallet", WalletID: "w-1"})
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, 0, env.gw.payouts)
}

func TestPayoutFlow(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	ctx := context.Background()

	_, err := env.engine.Capture(ctx, esc.ID, env.client.ID)
	require.NoError(t, err)

	// выплату запрашивает только исполнитель
	_, _, err = env.engine.ProcessPayout(ctx, esc.ID, env.client.ID,
		&gateway.Destination{Method: "wallet", WalletID: "w-1"})
	require.ErrorIs(t, err, ErrUnauthorized)

	esc, payout, err := env.engine.ProcessPayout(ctx, esc.ID, env.provider.ID,
		&gateway.Destination{Method: "wallet", WalletID: "w-1"})
	require.NoError(t, err)
	require.Equal(t, models.EscrowStatusPayoutInitiated, esc.Status)
	require.Equal(t, models.PayoutStatusProcessing, payout.Status)
	require.NotEmpty(t, payout.ProviderPayoutID)

	esc, err = env.engine.CompletePayout(ctx, esc.ID, payout.ProviderPayoutID)
	require.NoError(t, err)
	require.Equal(t, models.EscrowStatusPayoutCompleted, esc.Status)

	var got models.Payout
	require.NoError(t, env.db.First(&got, "id = ?", payout.ID).Error)
	require.Equal(t, models.PayoutStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// повторное подтверждение не находит PROCESSING-выплаты
	_, err = env.engine.CompletePayout(ctx, esc.ID, payout.ProviderPayoutID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPayoutSavedDestination(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	ctx := context.Background()

	_, err := env.engine.Capture(ctx, esc.ID, env.client.ID)
	require.NoError(t, err)

	// без сохранённых реквизитов выплата без тела запроса невозможна
	_, _, err = env.engine.ProcessPayout(ctx, esc.ID, env.provider.ID, nil)
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", env.provider.ID).
		Update("payout_destination", `{"method":"wallet","walletID":"w-saved"}`).Error)

	_, payout, err := env.engine.ProcessPayout(ctx, esc.ID, env.provider.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.PayoutMethodWallet, payout.Method)
}

func TestFailPayoutReturnsToInProgress(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	ctx := context.Background()

	_, err := env.engine.Capture(ctx, esc.ID, env.client.ID)
	require.NoError(t, err)
	_, payout, err := env.engine.ProcessPayout(ctx, esc.ID, env.provider.ID,
		&gateway.Destination{Method: "wallet", WalletID: "w-1"})
	require.NoError(t, err)

	esc, err = env.engine.FailPayout(ctx, esc.ID, payout.ProviderPayoutID, "account closed")
	require.NoError(t, err)
	require.Equal(t, models.EscrowStatusInProgress, esc.Status)

	var got models.Payout
	require.NoError(t, env.db.First(&got, "id = ?", payout.ID).Error)
	require.Equal(t, models.PayoutStatusFailed, got.Status)
	require.Equal(t, "account closed", got.FailureReason)

	// после провала выплату можно запросить снова
	_, _, err = env.engine.ProcessPayout(ctx, esc.ID, env.provider.ID,
		&gateway.Destination{Method: "wallet", WalletID: "w-1"})
	require.NoError(t, err)
}

func TestPayoutTransportError(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	ctx := context.Background()

	_, err := env.engine.Capture(ctx, esc.ID, env.client.ID)
	require.NoError(t, err)

	env.gw.payoutErr = errors.New("connection reset")
	_, _, err = env.engine.ProcessPayout(ctx, esc.ID, env.provider.ID,
		&gateway.Destination{Method: "wallet", WalletID: "w-1"})
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)

	// эскроу не тронут, попытка выплаты помечена FAILED
	var got models.Escrow
	require.NoError(t, env.db.First(&got, "id = ?", esc.ID).Error)
	require.Equal(t, models.EscrowStatusInProgress, got.Status)
	var payout models.Payout
	require.NoError(t, env.db.First(&payout, "escrow_id = ?", esc.ID).Error)
	require.Equal(t, models.PayoutStatusFailed, payout.Status)
}

func TestLedgerImmutable(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)

	txs := env.ledger(t, esc.ID)
	require.Len(t, txs, 1)

	err := env.db.Model(&txs[0]).Update("amount", 1).Error
	require.ErrorIs(t, err, models.ErrTransactionImmutable)

	err = env.db.Delete(&txs[0]).Error
	require.ErrorIs(t, err, models.ErrTransactionImmutable)

	// запись осталась нетронутой
	var got models.EscrowTransaction
	require.NoError(t, env.db.First(&got, "id = ?", txs[0].ID).Error)
	require.Equal(t, int64(50000), got.Amount)
}

func TestUploadProof(t *testing.T) {
	env := setupEngine(t)
	esc := env.create(t)
	ctx := context.Background()

	_, err := env.engine.UploadProof(ctx, esc.ID, env.client.ID, []string{"doc1"}, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	esc, err = env.engine.UploadProof(ctx, esc.ID, env.provider.ID, []string{"doc1", "doc2"}, "before/after photos")
	require.NoError(t, err)
	require.JSONEq(t, `["doc1","doc2"]`, string(esc.ProofOfWork))
	require.Equal(t, "before/after photos", esc.ProofNotes)

	// догрузка дописывает, а не затирает
	esc, err = env.engine.UploadProof(ctx, esc.ID, env.provider.ID, []string{"doc3"}, "")
	require.NoError(t, err)
	require.JSONEq(t, `["doc1","doc2","doc3"]`, string(esc.ProofOfWork))
	require.Equal(t, "before/after photos", esc.ProofNotes)
}
