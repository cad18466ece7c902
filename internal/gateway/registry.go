package gateway

import (
	"errors"
	"fmt"

	"servipay/config"
)

// Providers закрытый список поддерживаемых провайдеров
var Providers = []string{"paymongo", "xendit", "stripe", "paypal", "paymaya"}

// ErrNotConfigured провайдер известен, но ключи не заданы
var ErrNotConfigured = errors.New("gateway is not configured")

// ErrUnknownProvider провайдер вне закрытого списка
var ErrUnknownProvider = errors.New("unknown gateway provider")

// Registry сопоставляет имя провайдера с адаптером.
// Собирается один раз на старте; движок не ветвится по имени провайдера.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry создаёт адаптеры для всех провайдеров, у которых есть ключи
func NewRegistry(cfgs map[string]config.GatewayConfig) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for name, gc := range cfgs {
		switch name {
		case "paymongo":
			r.gateways[name] = newPayMongo(gc)
		case "xendit":
			r.gateways[name] = newXendit(gc)
		case "stripe":
			r.gateways[name] = newStripe(gc)
		case "paypal":
			r.gateways[name] = newPayPal(gc)
		case "paymaya":
			r.gateways[name] = newPayMaya(gc)
		}
	}
	return r
}

// Register добавляет адаптер вручную (используется в тестах)
func (r *Registry) Register(g Gateway) {
	r.gateways[g.Name()] = g
}

// Supported сообщает, входит ли имя в закрытый список провайдеров
func Supported(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

// Get возвращает адаптер провайдера.
// Неизвестное имя и отсутствие ключей — разные ошибки: первое ошибка
// валидации запроса, второе ошибка конфигурации.
func (r *Registry) Get(name string) (Gateway, error) {
	if !Supported(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return g, nil
}
