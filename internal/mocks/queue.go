package mocks

import "sync"

// MockMessageQueue is a mock implementation of MessageQueue
type MockMessageQueue struct {
	mu        sync.Mutex
	Published []PublishedMessage

	PublishFunc   func(subject string, data []byte) error
	SubscribeFunc func(subject string, handler func(data []byte) error) error
}

type PublishedMessage struct {
	Subject string
	Data    []byte
}

func (m *MockMessageQueue) Publish(subject string, data []byte) error {
	m.mu.Lock()
	m.Published = append(m.Published, PublishedMessage{Subject: subject, Data: data})
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(subject, data)
	}
	return nil
}

func (m *MockMessageQueue) Subscribe(subject string, handler func(data []byte) error) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(subject, handler)
	}
	return nil
}

func (m *MockMessageQueue) Close() error { return nil }
