package ports

import (
	"context"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// TelemetryRepository is the append-only telemetry sink. Implementations
// never update or delete; the reporting side reads the history as-is.
type TelemetryRepository interface {
	SaveMeterSample(ctx context.Context, sample *domain.MeterSample) error
	SaveConnectorState(ctx context.Context, state *domain.ConnectorState) error
	SaveTransactionEvent(ctx context.Context, event *domain.TransactionEvent) error
}
