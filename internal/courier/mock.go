package courier

import (
	"context"

	"github.com/naturemedica/commerce/internal/domain"
)

// MockProvider implements Provider for tests. Each method delegates to its
// corresponding func field so tests can inject behavior per call.
type MockProvider struct {
	CodeFn                func() domain.CourierCode
	CreateShipmentFn      func(ctx context.Context, params CreateShipmentParams) (*ShipmentRecord, error)
	CheckServiceabilityFn func(ctx context.Context, pincode string) (*Serviceability, error)
	TrackByAWBFn          func(ctx context.Context, awb string) (*domain.TrackingView, error)
	SchedulePickupFn      func(ctx context.Context, shipmentID string) (*PickupResult, error)
	CancelShipmentFn      func(ctx context.Context, awb string) error

	CreateShipmentCalls int
	TrackByAWBCalls     int
}

var _ Provider = (*MockProvider)(nil)

func (m *MockProvider) Code() domain.CourierCode {
	if m.CodeFn != nil {
		return m.CodeFn()
	}
	return domain.CourierShiprocket
}

func (m *MockProvider) CreateShipment(ctx context.Context, params CreateShipmentParams) (*ShipmentRecord, error) {
	m.CreateShipmentCalls++
	if m.CreateShipmentFn != nil {
		return m.CreateShipmentFn(ctx, params)
	}
	return &ShipmentRecord{Provider: m.Code(), TrackingID: "MOCK123", AWB: "MOCK123"}, nil
}

func (m *MockProvider) CheckServiceability(ctx context.Context, pincode string) (*Serviceability, error) {
	if m.CheckServiceabilityFn != nil {
		return m.CheckServiceabilityFn(ctx, pincode)
	}
	return &Serviceability{PrepaidAvailable: true, CODAvailable: true}, nil
}

func (m *MockProvider) TrackByAWB(ctx context.Context, awb string) (*domain.TrackingView, error) {
	m.TrackByAWBCalls++
	if m.TrackByAWBFn != nil {
		return m.TrackByAWBFn(ctx, awb)
	}
	return &domain.TrackingView{Provider: m.Code(), AWB: awb}, nil
}

func (m *MockProvider) SchedulePickup(ctx context.Context, shipmentID string) (*PickupResult, error) {
	if m.SchedulePickupFn != nil {
		return m.SchedulePickupFn(ctx, shipmentID)
	}
	return &PickupResult{PickupID: "PICKUP1"}, nil
}

func (m *MockProvider) CancelShipment(ctx context.Context, awb string) error {
	if m.CancelShipmentFn != nil {
		return m.CancelShipmentFn(ctx, awb)
	}
	return nil
}
