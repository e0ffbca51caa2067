// README: Rider push notifications for driver lifecycle moments.
package push

import (
	"context"

	"shuttle/internal/types"
)

// Ride is the payload attached to every rider notification.
type Ride struct {
	ReservationID types.ReservationID
	EventID       types.EventID
	EventName     string
}

// Pusher delivers notifications to a rider device. Delivery is best effort;
// callers log failures and move on.
type Pusher interface {
	DriverAccepted(ctx context.Context, deviceToken string, ride Ride) error
	DriverArrived(ctx context.Context, deviceToken string, ride Ride) error
}

// TokenSource resolves a rider's device token from their phone number.
type TokenSource interface {
	DeviceToken(ctx context.Context, phone string) (string, bool, error)
}

// Noop discards notifications. Used when Firebase is not configured.
type Noop struct{}

func (Noop) DriverAccepted(context.Context, string, Ride) error { return nil }
func (Noop) DriverArrived(context.Context, string, Ride) error  { return nil }
