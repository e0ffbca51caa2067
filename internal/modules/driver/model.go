// README: Event driver and vehicle definitions.
package driver

import (
	"errors"

	"shuttle/internal/types"
)

var (
	ErrNotFound = errors.New("driver not found")
	// ErrNoVehicle rejects market operations for drivers without an
	// assigned vehicle; capacity comes from the vehicle.
	ErrNoVehicle = errors.New("driver has no vehicle assigned")
	// ErrHasDriver rejects accepting a reservation another driver holds.
	ErrHasDriver = errors.New("reservation already has a driver")
	// ErrHasDest rejects accepting while the driver is en route to a
	// destination.
	ErrHasDest = errors.New("driver already has a destination")
)

type Driver struct {
	ID        types.DriverID
	Phone     string
	EventID   types.EventID
	VehicleID *string
}

type Vehicle struct {
	ID       string
	Year     int
	Make     string
	Model    string
	Color    string
	License  string
	Capacity int
}
