// README: Reservation aggregate, stops and status definitions.
package reservation

import (
	"errors"
	"time"

	"shuttle/internal/modules/estimate"
	"shuttle/internal/modules/strategy"
	"shuttle/internal/types"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusActive     Status = "active"
	StatusComplete   Status = "complete"
	StatusCancelled  Status = "cancelled"
	StatusIncomplete Status = "incomplete"
)

var (
	ErrNotFound = errors.New("reservation not found")
	// ErrHasPickup rejects cancelling a reservation once any of its stops
	// is completed.
	ErrHasPickup = errors.New("reservation already has a completed stop")
	// ErrTooFewStops rejects reservations without a distinct start and end.
	ErrTooFewStops = errors.New("reservation needs at least two distinct stops")
	// ErrEventStopReused rejects forms that point at the event property
	// more than once.
	ErrEventStopReused = errors.New("event location used for more than one stop")
	// ErrEventStopPosition rejects forms whose event stop is neither first
	// nor last.
	ErrEventStopPosition = errors.New("event location must be the first or last stop")
	// ErrNoEventProperty rejects event-location stops for events without a
	// property.
	ErrNoEventProperty = errors.New("event has no property to resolve the stop against")
)

type Reservation struct {
	ID                types.ReservationID
	EventID           types.EventID
	MadeAt            time.Time
	Reserver          string
	Passengers        int
	InitialPassengers int
	Status            Status
	DriverID          *types.DriverID
	DriverAssignedAt  *time.Time
	CancelledAt       *time.Time
	CompleteAt        *time.Time
	CancelReason      *int
	Stops             []Stop
}

// Stop is one leg of a reservation as persisted. Event-location stops carry
// the property coordinates resolved at booking time.
type Stop struct {
	ID              types.StopID
	Order           int
	IsEventLocation bool
	Location        types.LatLng
	Address         types.Address
	PlaceID         *string
	// ETA is the estimate quoted at booking, in seconds from then.
	ETA        int
	ArrivedAt  *time.Time
	CompleteAt *time.Time
}

// IsDropoff reports whether the ride starts at the event property, meaning
// the riders are being taken away from the event.
func (r *Reservation) IsDropoff() bool {
	return len(r.Stops) > 0 && r.Stops[0].IsEventLocation
}

// HasCompletedStop reports whether any leg of the ride already happened.
func (r *Reservation) HasCompletedStop() bool {
	for _, s := range r.Stops {
		if s.CompleteAt != nil {
			return true
		}
	}
	return false
}

// Stop returns the stop with the given id.
func (r *Reservation) Stop(id types.StopID) (Stop, bool) {
	for _, s := range r.Stops {
		if s.ID == id {
			return s, true
		}
	}
	return Stop{}, false
}

// Detail converts the aggregate into the shape itinerary operations consume.
// Event-location stops are left out; the itinerary represents them with its
// own markers.
func (r *Reservation) Detail() strategy.ReservationDetail {
	d := strategy.ReservationDetail{
		ID:         r.ID,
		Passengers: r.Passengers,
		IsDropoff:  r.IsDropoff(),
	}
	for _, s := range r.Stops {
		if s.IsEventLocation {
			continue
		}
		placeID := ""
		if s.PlaceID != nil {
			placeID = *s.PlaceID
		}
		d.Stops = append(d.Stops, strategy.ReservationStopDetail{
			StopID: s.ID,
			Location: strategy.StopLocation{
				Coords:  s.Location,
				Address: s.Address,
				PlaceID: placeID,
			},
		})
	}
	return d
}

// View converts the aggregate into the projection the estimate engine
// matches itineraries against. Unlike Detail it keeps every stop.
func (r *Reservation) View() estimate.ReservationView {
	v := estimate.ReservationView{
		ID:         r.ID,
		Passengers: r.Passengers,
	}
	for _, s := range r.Stops {
		placeID := ""
		if s.PlaceID != nil {
			placeID = *s.PlaceID
		}
		v.Stops = append(v.Stops, estimate.ReservationStopView{
			StopID:          s.ID,
			IsEventLocation: s.IsEventLocation,
			Location: strategy.StopLocation{
				Coords:  s.Location,
				Address: s.Address,
				PlaceID: placeID,
			},
		})
	}
	return v
}
