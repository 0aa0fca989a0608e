package queue

// MessageQueue defines the interface for a message queue adapter
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}

// Subjects published by the central system.
const (
	SubjectChargerBoot        = "charger.boot"
	SubjectTransactionStarted = "transaction.started"
	SubjectTransactionStopped = "transaction.stopped"
)
