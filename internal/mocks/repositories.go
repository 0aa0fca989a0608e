package mocks

import (
	"context"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// MockTelemetryRepository is a mock implementation of TelemetryRepository
type MockTelemetryRepository struct {
	SaveMeterSampleFunc      func(ctx context.Context, sample *domain.MeterSample) error
	SaveConnectorStateFunc   func(ctx context.Context, state *domain.ConnectorState) error
	SaveTransactionEventFunc func(ctx context.Context, event *domain.TransactionEvent) error

	MeterSamples      []domain.MeterSample
	ConnectorStates   []domain.ConnectorState
	TransactionEvents []domain.TransactionEvent
}

func (m *MockTelemetryRepository) SaveMeterSample(ctx context.Context, sample *domain.MeterSample) error {
	m.MeterSamples = append(m.MeterSamples, *sample)
	if m.SaveMeterSampleFunc != nil {
		return m.SaveMeterSampleFunc(ctx, sample)
	}
	return nil
}

func (m *MockTelemetryRepository) SaveConnectorState(ctx context.Context, state *domain.ConnectorState) error {
	m.ConnectorStates = append(m.ConnectorStates, *state)
	if m.SaveConnectorStateFunc != nil {
		return m.SaveConnectorStateFunc(ctx, state)
	}
	return nil
}

func (m *MockTelemetryRepository) SaveTransactionEvent(ctx context.Context, event *domain.TransactionEvent) error {
	m.TransactionEvents = append(m.TransactionEvents, *event)
	if m.SaveTransactionEventFunc != nil {
		return m.SaveTransactionEventFunc(ctx, event)
	}
	return nil
}
