package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"servipay/config"
)

// payPal адаптер PayPal: authorize/capture по orders API, выплаты через
// Payouts API. Минорные единицы конвертируются в строку с точкой,
// как того требует протокол.
type payPal struct {
	api *apiClient
}

func newPayPal(cfg config.GatewayConfig) *payPal {
	token := base64.StdEncoding.EncodeToString([]byte(cfg.PublicKey + ":" + cfg.SecretKey))
	return &payPal{
		api: newAPIClient("https://api-m.paypal.com/v2", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic "+token)
		}),
	}
}

func (p *payPal) Name() string { return "paypal" }

// money представление суммы в формате PayPal (целые единицы.центы)
func money(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func (p *payPal) result(resp *apiResponse) *Result {
	if resp.decline() {
		return &Result{Success: false, Message: resp.str("message"), Code: resp.str("name")}
	}
	return &Result{Success: true, TxID: resp.str("id")}
}

func (p *payPal) CreateHold(ctx context.Context, amount int64, currency, clientRef, description string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/checkout/orders", map[string]any{
		"intent": "AUTHORIZE",
		"purchase_units": []map[string]any{{
			"reference_id": clientRef,
			"description":  description,
			"amount":       map[string]any{"currency_code": currency, "value": money(amount)},
		}},
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payPal) Capture(ctx context.Context, holdID string, amount int64, currency string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payments/authorizations/"+holdID+"/capture", map[string]any{
		"amount": map[string]any{"currency_code": currency, "value": money(amount)},
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payPal) Release(ctx context.Context, holdID string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payments/authorizations/"+holdID+"/void", nil)
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payPal) Refund(ctx context.Context, chargeID string, amount int64, reason string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payments/captures/"+chargeID+"/refund", map[string]any{
		"note_to_payer": reason,
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payPal) InitiatePayout(ctx context.Context, amount int64, currency string, dest Destination, reference string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payments/payouts", map[string]any{
		"sender_batch_header": map[string]any{"sender_batch_id": reference},
		"items": []map[string]any{{
			"recipient_type": "EMAIL",
			"receiver":       dest.WalletID,
			"amount":         map[string]any{"currency": currency, "value": money(amount)},
		}},
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}
