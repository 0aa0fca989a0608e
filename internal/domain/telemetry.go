package domain

// Telemetry rows appended by the central system. Table and column names
// match the reporting database consumed by the supervision web app, which
// predates this service, so they stay in Catalan.

// MeterSample is one sampled meter reading from a MeterValues request.
type MeterSample struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	ChargerID     int    `gorm:"column:charger_id"`
	Connector     int64  `gorm:"column:connector"`
	TransactionID int64  `gorm:"column:transaccio"`
	Timestamp     string `gorm:"column:hora"`
	Value         string `gorm:"column:valor"`
	Unit          string `gorm:"column:unit"`
	Measurand     string `gorm:"column:measurand"`
	Context       string `gorm:"column:context"`
}

func (MeterSample) TableName() string { return "meter_values" }

// ConnectorState is one connector status change from a StatusNotification.
type ConnectorState struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ChargerID int    `gorm:"column:charger_id"`
	Connector int64  `gorm:"column:connector"`
	Status    string `gorm:"column:estat"`
	Timestamp string `gorm:"column:hora"`
	ErrorCode string `gorm:"column:error_code"`
}

func (ConnectorState) TableName() string { return "estats" }

// TransactionEvent is a Start or Stop edge of a charging transaction.
type TransactionEvent struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ChargerID int    `gorm:"column:charger_id"`
	Event     string `gorm:"column:estat"`
	Connector int64  `gorm:"column:connector"`
	Timestamp string `gorm:"column:hora"`
	Reason    string `gorm:"column:motiu"`
}

func (TransactionEvent) TableName() string { return "transaccions" }

// Transaction event kinds.
const (
	TransactionStart = "Start"
	TransactionStop  = "Stop"
)
