package gateway

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов
// и локального запуска без внешнего платёжного шлюза.
type MockGateway struct {
	Customer    domain.GatewayCustomer
	CustomerErr error
	LineItems   []domain.GatewayLineItem
	ListErr     error

	FetchCalls int
	ListCalls  int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Customer: domain.GatewayCustomer{
			ID:    "cus_mock",
			Name:  "Mock Customer",
			Email: "mock@example.com",
		},
	}
}

// FetchCustomer возвращает заранее настроенный профиль и считает вызовы.
func (m *MockGateway) FetchCustomer(ctx context.Context, externalID string) (domain.GatewayCustomer, error) {
	m.FetchCalls++
	if m.CustomerErr != nil {
		return domain.GatewayCustomer{}, m.CustomerErr
	}
	profile := m.Customer
	if profile.ID == "" {
		profile.ID = externalID
	}
	return profile, nil
}

// ListLineItems возвращает настроенные позиции и считает вызовы.
func (m *MockGateway) ListLineItems(ctx context.Context, sessionID string) ([]domain.GatewayLineItem, error) {
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.LineItems, nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
