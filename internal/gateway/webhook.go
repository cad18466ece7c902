package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MaxWebhookAge допустимый возраст события: защита от повторной подачи
const MaxWebhookAge = 5 * time.Minute

var (
	ErrBadSignature  = errors.New("webhook signature mismatch")
	ErrStaleWebhook  = errors.New("webhook timestamp outside allowed window")
	ErrBadTimestamp  = errors.New("webhook timestamp is not a unix time")
)

// SignWebhook считает подпись HMAC-SHA256 над "timestamp.rawBody".
// Используется в тестах и для локальной эмуляции провайдера.
func SignWebhook(secret, timestamp string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook проверяет подпись и свежесть события.
// Сравнение подписи константное по времени.
func VerifyWebhook(secret, timestamp, signature string, rawBody []byte, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadTimestamp, timestamp)
	}
	at := time.Unix(ts, 0)
	if now.Sub(at) > MaxWebhookAge || at.Sub(now) > MaxWebhookAge {
		return ErrStaleWebhook
	}
	want := SignWebhook(secret, timestamp, rawBody)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
