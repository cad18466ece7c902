package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"servipay/config"
)

// ErrPayoutUnsupported провайдер не поддерживает исходящие выплаты.
// Движок обязан вернуть ошибку конфигурации, а не тихий успех.
var ErrPayoutUnsupported = errors.New("provider does not support payouts")

// payMaya адаптер Maya Business: только приём платежей с ручным
// захватом; выплат у провайдера нет.
type payMaya struct {
	api *apiClient
}

func newPayMaya(cfg config.GatewayConfig) *payMaya {
	token := base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey + ":"))
	return &payMaya{
		api: newAPIClient("https://pg.paymaya.com/payments/v1", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic "+token)
		}),
	}
}

func (p *payMaya) Name() string { return "paymaya" }

func (p *payMaya) result(resp *apiResponse) *Result {
	if resp.decline() {
		return &Result{Success: false, Message: resp.str("message"), Code: resp.str("code")}
	}
	return &Result{Success: true, TxID: resp.str("id")}
}

func (p *payMaya) CreateHold(ctx context.Context, amount int64, currency, clientRef, description string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payments", map[string]any{
		"totalAmount":         map[string]any{"value": amount, "currency": currency},
		"authorizationType":   "NORMAL",
		"requestReferenceNumber": clientRef,
		"description":         description,
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payMaya) Capture(ctx context.Context, holdID string, amount int64, currency string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payments/"+holdID+"/capture", map[string]any{
		"captureAmount": map[string]any{"value": amount, "currency": currency},
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payMaya) Release(ctx context.Context, holdID string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payments/"+holdID+"/void", nil)
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payMaya) Refund(ctx context.Context, chargeID string, amount int64, reason string) (*Result, error) {
	resp, err := p.api.do(ctx, http.MethodPost, "/payments/"+chargeID+"/refunds", map[string]any{
		"reason": reason,
		"totalAmount": map[string]any{"value": amount},
	})
	if err != nil {
		return nil, err
	}
	return p.result(resp), nil
}

func (p *payMaya) InitiatePayout(ctx context.Context, amount int64, currency string, dest Destination, reference string) (*Result, error) {
	return nil, ErrPayoutUnsupported
}
