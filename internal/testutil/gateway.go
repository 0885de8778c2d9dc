package testutil

import (
	"context"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a testify mock of payment.Gateway
type MockGateway struct {
	mock.Mock
}

var _ payment.Gateway = (*MockGateway)(nil)

// NewMockGateway creates a MockGateway whose expectations are asserted when
// the test ends
func NewMockGateway(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGateway {
	m := &MockGateway{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockGateway) CreateIntent(ctx context.Context, req payment.CreateIntentRequest) (*payment.Intent, error) {
	args := m.Called(ctx, req)
	return intentOrNil(args.Get(0)), args.Error(1)
}

func (m *MockGateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodRef string) (*payment.Intent, error) {
	args := m.Called(ctx, intentID, paymentMethodRef)
	return intentOrNil(args.Get(0)), args.Error(1)
}

func (m *MockGateway) CancelIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	args := m.Called(ctx, intentID)
	return intentOrNil(args.Get(0)), args.Error(1)
}

func (m *MockGateway) GetIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	args := m.Called(ctx, intentID)
	return intentOrNil(args.Get(0)), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.GatewayRefund, error) {
	args := m.Called(ctx, req)
	if r, ok := args.Get(0).(*payment.GatewayRefund); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func intentOrNil(v any) *payment.Intent {
	if i, ok := v.(*payment.Intent); ok {
		return i
	}
	return nil
}

// Intent builds a gateway intent for an order
func Intent(id string, status payment.Status, amount int64, currency string, orderID, storeID uuid.UUID) *payment.Intent {
	return &payment.Intent{
		ID:           id,
		Status:       status,
		Amount:       amount,
		Currency:     currency,
		ClientSecret: id + "_secret",
		Metadata: map[string]string{
			payment.MetadataOrderID: orderID.String(),
			payment.MetadataStoreID: storeID.String(),
		},
	}
}
