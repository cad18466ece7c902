package gateway

import (
	"context"
	"encoding/base64"
	"net/http"

	"servipay/config"
)

// payMongo адаптер PayMongo (карты, GCash). Авторизация basic-auth
// секретным ключом.
type payMongo struct {
	api *apiClient
}

func newPayMongo(cfg config.GatewayConfig) *payMongo {
	token := base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey + ":"))
	return &payMongo{
		api: newAPIClient("https://api.paymongo.com/v1", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic "+token)
		}),
	}
}

func (p *payMongo) Name() string { return "paymongo" }

func (p *payMongo) result(resp *apiResponse) *Result {
	if resp.decline() {
		return &Result{
			Success: false,
			Message: resp.str("errors", "detail"),
			Code:    resp.str("errors", "code"),
		}
	}
	return &Result{Success: true, TxID: resp.str("data", "id")}
}

func (p *payMongo) CreateHold(ctx context.Context, amount int64, currency, clientRef, description string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payment_intents", map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":               amount,
				"currency":             currency,
				"capture_type":         "manual",
				"description":          description,
				"statement_descriptor": clientRef,
				"payment_method_allowed": []string{"card", "gcash", "paymaya"},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payMongo) Capture(ctx context.Context, holdID string, amount int64, currency string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payment_intents/"+holdID+"/capture", map[string]any{
		"data": map[string]any{"attributes": map[string]any{"amount": amount}},
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payMongo) Release(ctx context.Context, holdID string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payment_intents/"+holdID+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payMongo) Refund(ctx context.Context, chargeID string, amount int64, reason string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/refunds", map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"payment_id": chargeID,
				"amount":     amount,
				"reason":     reason,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payMongo) InitiatePayout(ctx context.Context, amount int64, currency string, dest Destination, reference string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payouts", map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":    amount,
				"currency":  currency,
				"reference": reference,
				"destination": map[string]any{
					"type":           dest.Method,
					"bank_code":      dest.BankCode,
					"account_name":   dest.AccountName,
					"account_number": dest.AccountNumber,
					"wallet_id":      dest.WalletID,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}
