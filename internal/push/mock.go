// README: Recording pusher for tests.
package push

import (
	"context"
	"sync"
)

type MockCall struct {
	Kind  string
	Token string
	Ride  Ride
}

type Mock struct {
	mu    sync.Mutex
	Calls []MockCall
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) DriverAccepted(_ context.Context, token string, ride Ride) error {
	m.record("driver_accepted", token, ride)
	return nil
}

func (m *Mock) DriverArrived(_ context.Context, token string, ride Ride) error {
	m.record("driver_arrived", token, ride)
	return nil
}

func (m *Mock) record(kind, token string, ride Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Kind: kind, Token: token, Ride: ride})
}

// MockTokens maps phone numbers to device tokens in memory.
type MockTokens map[string]string

func (m MockTokens) DeviceToken(_ context.Context, phone string) (string, bool, error) {
	token, ok := m[phone]
	return token, ok, nil
}
