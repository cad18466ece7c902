package gateway

import (
	"context"
	"net/http"
	"strconv"

	"servipay/config"
)

// stripeGateway адаптер Stripe: manual-capture PaymentIntents и Payouts
type stripeGateway struct {
	api *apiClient
}

func newStripe(cfg config.GatewayConfig) *stripeGateway {
	return &stripeGateway{
		api: newAPIClient("https://api.stripe.com/v1", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
		}),
	}
}

func (s *stripeGateway) Name() string { return "stripe" }

func (s *stripeGateway) result(resp *apiResponse) *Result {
	if resp.decline() {
		return &Result{
			Success: false,
			Message: resp.str("error", "message"),
			Code:    resp.str("error", "code"),
		}
	}
	return &Result{Success: true, TxID: resp.str("id")}
}

func (s *stripeGateway) CreateHold(ctx context.Context, amount int64, currency, clientRef, description string) (*Result, error) {
	resp, err := s.api.do(ctx, http.MethodPost, "/payment_intents", map[string]any{
		"amount":         strconv.FormatInt(amount, 10),
		"currency":       currency,
		"capture_method": "manual",
		"description":    description,
		"metadata":       map[string]any{"client_ref": clientRef},
	})
	if err != nil {
		return nil, err
	}
	return s.result(resp), nil
}

func (s *stripeGateway) Capture(ctx context.Context, holdID string, amount int64, currency string) (*Result, error) {
	resp, err := s.api.do(ctx, http.MethodPost, "/payment_intents/"+holdID+"/capture", map[string]any{
		"amount_to_capture": strconv.FormatInt(amount, 10),
	})
	if err != nil {
		return nil, err
	}
	return s.result(resp), nil
}

func (s *stripeGateway) Release(ctx context.Context, holdID string) (*Result, error) {
	resp, err := s.api.do(ctx, http.MethodPost, "/payment_intents/"+holdID+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	return s.result(resp), nil
}

func (s *stripeGateway) Refund(ctx context.Context, chargeID string, amount int64, reason string) (*Result, error) {
	resp, err := s.api.do(ctx, http.MethodPost, "/refunds", map[string]any{
		"payment_intent": chargeID,
		"amount":         strconv.FormatInt(amount, 10),
		"reason":         reason,
	})
	if err != nil {
		return nil, err
	}
	return s.result(resp), nil
}

func (s *stripeGateway) InitiatePayout(ctx context.Context, amount int64, currency string, dest Destination, reference string) (*Result, error) {
	resp, err := s.api.do(ctx, http.MethodPost, "/payouts", map[string]any{
		"amount":   strconv.FormatInt(amount, 10),
		"currency": currency,
		"metadata": map[string]any{"reference": reference, "destination": dest.AccountNumber},
	})
	if err != nil {
		return nil, err
	}
	return s.result(resp), nil
}
