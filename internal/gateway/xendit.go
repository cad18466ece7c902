package gateway

import (
	"context"
	"encoding/base64"
	"net/http"

	"servipay/config"
)

// xendit адаптер Xendit: удержания через authorization-платежи,
// выплаты через disbursements.
type xendit struct {
	api *apiClient
}

func newXendit(cfg config.GatewayConfig) *xendit {
	token := base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey + ":"))
	return &xendit{
		api: newAPIClient("https://api.xendit.co", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic "+token)
		}),
	}
}

func (x *xendit) Name() string { return "xendit" }

func (x *xendit) result(resp *apiResponse) *Result {
	if resp.decline() {
		return &Result{Success: false, Message: resp.str("message"), Code: resp.str("error_code")}
	}
	return &Result{Success: true, TxID: resp.str("id")}
}

func (x *xendit) CreateHold(ctx context.Context, amount int64, currency, clientRef, description string) (*Result, error) {
	resp, err := x.api.do(ctx, http.MethodPost, "/payment_requests", map[string]any{
		"amount":       amount,
		"currency":     currency,
		"capture_method": "manual",
		"reference_id": clientRef,
		"description":  description,
	})
	if err != nil {
		return nil, err
	}
	return x.result(resp), nil
}

func (x *xendit) Capture(ctx context.Context, holdID string, amount int64, currency string) (*Result, error) {
	resp, err := x.api.do(ctx, http.MethodPost, "/payment_requests/"+holdID+"/captures", map[string]any{
		"capture_amount": amount,
	})
	if err != nil {
		return nil, err
	}
	return x.result(resp), nil
}

func (x *xendit) Release(ctx context.Context, holdID string) (*Result, error) {
	resp, err := x.api.do(ctx, http.MethodPost, "/payment_requests/"+holdID+"/void", nil)
	if err != nil {
		return nil, err
	}
	return x.result(resp), nil
}

func (x *xendit) Refund(ctx context.Context, chargeID string, amount int64, reason string) (*Result, error) {
	resp, err := x.api.do(ctx, http.MethodPost, "/refunds", map[string]any{
		"payment_request_id": chargeID,
		"amount":             amount,
		"reason":             reason,
	})
	if err != nil {
		return nil, err
	}
	return x.result(resp), nil
}

func (x *xendit) InitiatePayout(ctx context.Context, amount int64, currency string, dest Destination, reference string) (*Result, error) {
	resp, err := x.api.do(ctx, http.MethodPost, "/v2/payouts", map[string]any{
		"reference_id":     reference,
		"amount":           amount,
		"currency":         currency,
		"channel_code":     dest.BankCode,
		"channel_properties": map[string]any{
			"account_holder_name": dest.AccountName,
			"account_number":      dest.AccountNumber,
		},
	})
	if err != nil {
		return nil, err
	}
	return x.result(resp), nil
}
