// README: Travel-time and address resolution behind one Geocoder interface.
package maps

import (
	"context"
	"errors"
	"time"

	"shuttle/internal/types"
)

var (
	ErrNoRoute       = errors.New("no route found between locations")
	ErrUnknownPlace  = errors.New("unknown place")
	ErrUnknownLegs   = errors.New("no travel time known between locations")
	ErrMissingAPIKey = errors.New("google maps api key is empty")
)

// Geocoder estimates driving times and resolves human-readable addresses.
type Geocoder interface {
	Estimate(ctx context.Context, from, to types.LatLng) (time.Duration, error)
	ResolveAddress(ctx context.Context, loc types.LatLng, placeID string) (types.Address, error)
}
