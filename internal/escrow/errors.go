package escrow

import (
	"errors"
	"fmt"
)

// Ошибки движка разделены по видам, чтобы контроллеры могли отличать
// вину вызывающего (4xx) от сбоев инфраструктуры (5xx).
var (
	// ErrNotFound эскроу/выплата/заказ не найдены
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized вызывающий не является стороной эскроу или не админ
	ErrUnauthorized = errors.New("caller is not allowed to perform this operation")
	// ErrInvalidState операция не разрешена в текущем статусе
	ErrInvalidState = errors.New("operation is not allowed in current status")
	// ErrValidation некорректный ввод: сумма, валюта, провайдер, реквизиты
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration у выбранного провайдера нет ключей или операции
	ErrConfiguration = errors.New("gateway is not configured for this operation")
)

// GatewayError отказ или сбой внешнего провайдера.
// Message безопасен для показа вызывающему.
type GatewayError struct {
	Provider string
	Code     string
	Message  string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("gateway %s: %s", e.Provider, e.Message)
}
