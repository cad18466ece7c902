package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient общий HTTP-клиент адаптеров: JSON туда и обратно,
// ограниченный таймаут, авторизация через колбэк провайдера.
type apiClient struct {
	base string
	http *http.Client
	auth func(*http.Request)
}

func newAPIClient(base string, auth func(*http.Request)) *apiClient {
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 15 * time.Second},
		auth: auth,
	}
}

// apiResponse разобранный ответ провайдера
type apiResponse struct {
	StatusCode int
	Body       map[string]any
}

// decline ответ вида 4xx с телом — отказ провайдера, не ошибка транспорта
func (r *apiResponse) decline() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *apiResponse) str(keys ...string) string {
	cur := r.Body
	for i, k := range keys {
		v, ok := cur[k]
		if !ok {
			return ""
		}
		if i == len(keys)-1 {
			s, _ := v.(string)
			return s
		}
		cur, ok = v.(map[string]any)
		if !ok {
			return ""
		}
	}
	return ""
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any) (*apiResponse, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		// таймаут и сетевые сбои трактуются как неуспех, не как успех
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	out := &apiResponse{StatusCode: resp.StatusCode, Body: map[string]any{}}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Body); err != nil {
			if resp.StatusCode >= 500 {
				return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
			}
			return nil, fmt.Errorf("gateway response is not JSON: %w", err)
		}
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, out.str("message"))
	}
	return out, nil
}
