// README: In-memory messenger for tests and local runs.
package messenger

import (
	"context"
	"sync"
)

// Mock records publishes and fans them out to in-process subscribers.
type Mock struct {
	mu        sync.Mutex
	published map[string][]Message
	subs      map[string][]chan Message
}

func NewMock() *Mock {
	return &Mock{
		published: map[string][]Message{},
		subs:      map[string][]chan Message{},
	}
}

func (m *Mock) Publish(_ context.Context, topic string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[topic] = append(m.published[topic], msg)
	for _, ch := range m.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (m *Mock) Subscribe(_ context.Context, topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, 16)
	m.mu.Lock()
	m.subs[topic] = append(m.subs[topic], ch)
	m.mu.Unlock()

	stop := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, c := range m.subs[topic] {
			if c == ch {
				m.subs[topic] = append(m.subs[topic][:i], m.subs[topic][i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, stop, nil
}

// Published returns everything sent to a topic so far.
func (m *Mock) Published(topic string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.published[topic]))
	copy(out, m.published[topic])
	return out
}
