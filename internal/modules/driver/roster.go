// README: Online-driver roster that seeds fresh event strategies.
package driver

import (
	"context"

	"shuttle/internal/modules/strategy"
	"shuttle/internal/types"
)

// LocationSource reads live driver locations. A driver with a location is
// online; going online is pinging.
type LocationSource interface {
	DriverLocation(ctx context.Context, driverID types.DriverID) (types.LatLng, bool, error)
}

// Roster lists the drivers a new strategy should start with: online, with a
// vehicle, and their capacity resolved.
type Roster struct {
	store     *Store
	locations LocationSource
}

func NewRoster(store *Store, locations LocationSource) *Roster {
	return &Roster{store: store, locations: locations}
}

func (r *Roster) OnlineDrivers(ctx context.Context, eventID types.EventID) ([]strategy.OnlineDriver, error) {
	drivers, err := r.store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	out := make([]strategy.OnlineDriver, 0, len(drivers))
	for _, d := range drivers {
		if d.VehicleID == nil {
			continue
		}
		_, online, err := r.locations.DriverLocation(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if !online {
			continue
		}
		v, err := r.store.Vehicle(ctx, *d.VehicleID)
		if err != nil {
			return nil, err
		}
		out = append(out, strategy.OnlineDriver{ID: d.ID, Capacity: v.Capacity})
	}
	return out, nil
}
