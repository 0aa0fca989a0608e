package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-central/internal/ports"
)

type TelemetryRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTelemetryRepository(db *gorm.DB, log *zap.Logger) ports.TelemetryRepository {
	return &TelemetryRepository{
		db:  db,
		log: log,
	}
}

func (r *TelemetryRepository) SaveMeterSample(ctx context.Context, sample *domain.MeterSample) error {
	return r.create(ctx, sample)
}

func (r *TelemetryRepository) SaveConnectorState(ctx context.Context, state *domain.ConnectorState) error {
	return r.create(ctx, state)
}

func (r *TelemetryRepository) SaveTransactionEvent(ctx context.Context, event *domain.TransactionEvent) error {
	return r.create(ctx, event)
}

func (r *TelemetryRepository) create(ctx context.Context, row interface{}) error {
	start := time.Now()
	err := r.db.WithContext(ctx).Create(row).Error
	telemetry.DatabaseLatency.Observe(time.Since(start).Seconds())
	return err
}
