package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/biter777/countries"
)

// Result единый ответ адаптера платёжного провайдера.
// Success=false означает отказ на стороне провайдера (карта отклонена,
// недостаточно средств) — это не ошибка транспорта. Транспортные сбои
// (таймаут, 5xx без тела) возвращаются обычной ошибкой.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	// TxID идентификатор объекта на стороне провайдера
	// (hold/capture/refund/payout id)
	TxID string `json:"txId,omitempty"`
}

// Destination реквизиты получателя выплаты
type Destination struct {
	Method        string `json:"method"` // bank_account / wallet / crypto
	BankCode      string `json:"bankCode,omitempty"`
	BankCountry   string `json:"bankCountry,omitempty"`
	AccountName   string `json:"accountName,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	WalletID      string `json:"walletID,omitempty"`
	CryptoAddress string `json:"cryptoAddress,omitempty"`
}

// ValidateDestination проверяет реквизиты до обращения к провайдеру
func ValidateDestination(d Destination) error {
	switch d.Method {
	case "bank_account":
		if d.AccountNumber == "" {
			return errors.New("account number required")
		}
		if c := countries.ByName(d.BankCountry); c == countries.Unknown {
			return fmt.Errorf("unknown bank country %q", d.BankCountry)
		}
	case "wallet":
		if d.WalletID == "" {
			return errors.New("wallet id required")
		}
	case "crypto":
		if d.CryptoAddress == "" {
			return errors.New("crypto address required")
		}
	default:
		return fmt.Errorf("unsupported destination method %q", d.Method)
	}
	return nil
}

// Gateway контракт платёжного провайдера. Движок эскроу не знает
// ничего о конкретном протоколе — только об этих пяти операциях.
type Gateway interface {
	Name() string
	// CreateHold резервирует средства без списания
	CreateHold(ctx context.Context, amount int64, currency, clientRef, description string) (*Result, error)
	// Capture превращает удержание в списание
	Capture(ctx context.Context, holdID string, amount int64, currency string) (*Result, error)
	// Release отменяет незахваченное удержание либо делает полный возврат
	Release(ctx context.Context, holdID string) (*Result, error)
	// Refund явный возврат уже списанных средств
	Refund(ctx context.Context, chargeID string, amount int64, reason string) (*Result, error)
	// InitiatePayout отправляет средства на внешний счёт получателя
	InitiatePayout(ctx context.Context, amount int64, currency string, dest Destination, reference string) (*Result, error)
}
