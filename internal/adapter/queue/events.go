package queue

import (
	"encoding/json"

	"go.uber.org/zap"
)

// BootEvent is published on every accepted BootNotification.
type BootEvent struct {
	ChargerID int    `json:"chargerId"`
	Vendor    string `json:"vendor"`
	Model     string `json:"model"`
	Status    string `json:"status"`
}

// TransactionStartedEvent is published when a transaction binds to a
// connector (StatusNotification Charging).
type TransactionStartedEvent struct {
	ChargerID     int    `json:"chargerId"`
	Connector     int64  `json:"connector"`
	TransactionID int64  `json:"transactionId"`
	IdTag         string `json:"idTag"`
}

// TransactionStoppedEvent is published on StopTransaction for a resolved
// connector.
type TransactionStoppedEvent struct {
	ChargerID     int    `json:"chargerId"`
	Connector     int64  `json:"connector"`
	TransactionID int64  `json:"transactionId"`
	Reason        string `json:"reason"`
}

// PublishJSON marshals event and publishes it fire-and-forget. A nil queue
// (events disabled) and publish failures are both non-fatal: telemetry
// consumers are best-effort, the charging session must not notice them.
func PublishJSON(q MessageQueue, log *zap.Logger, subject string, event interface{}) {
	if q == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("Failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := q.Publish(subject, data); err != nil {
		log.Error("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
