// README: Itinerary model: stops, per-driver strategies and the per-event strategy map.
package strategy

import (
	"shuttle/internal/types"
)

type StopKind string

const (
	// KindEvent is a "return to the event property" waypoint. It carries no
	// payload; its coordinates resolve to the event property location.
	KindEvent StopKind = "event"
	// KindReservation is a rider pickup or dropoff leg.
	KindReservation StopKind = "reservation"
)

// StopLocation is the resolved place a reservation stop points at.
type StopLocation struct {
	Coords  types.LatLng  `json:"coords"`
	Address types.Address `json:"address"`
	PlaceID string        `json:"place_id,omitempty"`
}

// Stop is one itinerary waypoint. It is a tagged union: the reservation
// fields are meaningful only when Kind == KindReservation.
type Stop struct {
	Kind StopKind `json:"kind"`

	ReservationID types.ReservationID `json:"id_reservation,omitempty"`
	StopID        types.StopID        `json:"id_stop,omitempty"`
	Location      StopLocation        `json:"location,omitempty"`
	IsDropoff     bool                `json:"is_dropoff,omitempty"`
	// Order disambiguates multiple stops belonging to the same reservation:
	// pickup is 0, dropoff legs increase.
	Order      int `json:"order,omitempty"`
	Passengers int `json:"passengers,omitempty"`
}

// NewEventStop returns the return-to-event marker stop.
func NewEventStop() Stop {
	return Stop{Kind: KindEvent}
}

func (s Stop) IsEvent() bool { return s.Kind == KindEvent }

// DriverStrategy is one online driver's itinerary for one event. Dest is the
// stop the driver is physically heading to; Queue holds everything after it.
type DriverStrategy struct {
	ID          types.DriverID              `json:"id"`
	EventID     types.EventID               `json:"id_event"`
	Dest        *Stop                       `json:"dest,omitempty"`
	Queue       []Stop                      `json:"queue"`
	PickedUp    map[types.ReservationID]int `json:"picked_up"`
	MaxCapacity int                         `json:"max_capacity"`
}

func NewDriverStrategy(id types.DriverID, eventID types.EventID, maxCapacity int) DriverStrategy {
	return DriverStrategy{
		ID:          id,
		EventID:     eventID,
		Queue:       []Stop{},
		PickedUp:    map[types.ReservationID]int{},
		MaxCapacity: maxCapacity,
	}
}

// Passengers is the number of riders currently in the vehicle.
func (d DriverStrategy) Passengers() int {
	total := 0
	for _, n := range d.PickedUp {
		total += n
	}
	return total
}

// CanFit reports whether n more riders fit without exceeding the vehicle
// capacity.
func (d DriverStrategy) CanFit(n int) bool {
	return d.Passengers()+n <= d.MaxCapacity
}

// IsPickedUp reports whether the reservation is currently boarded.
func (d DriverStrategy) IsPickedUp(id types.ReservationID) bool {
	_, ok := d.PickedUp[id]
	return ok
}

// Clone returns a deep copy. Itinerary operations are value-in value-out so
// callers can discard speculative mutations.
func (d DriverStrategy) Clone() DriverStrategy {
	out := d
	if d.Dest != nil {
		dest := *d.Dest
		out.Dest = &dest
	}
	out.Queue = make([]Stop, len(d.Queue))
	copy(out.Queue, d.Queue)
	out.PickedUp = make(map[types.ReservationID]int, len(d.PickedUp))
	for id, n := range d.PickedUp {
		out.PickedUp[id] = n
	}
	return out
}

// Strategy is the dispatch state for one event: every online driver's
// itinerary, keyed by driver id. It is the unit of persistence in the KV
// cache.
type Strategy struct {
	Drivers map[types.DriverID]DriverStrategy `json:"drivers"`
}

func NewStrategy() Strategy {
	return Strategy{Drivers: map[types.DriverID]DriverStrategy{}}
}

func (s Strategy) Clone() Strategy {
	out := NewStrategy()
	for id, d := range s.Drivers {
		out.Drivers[id] = d.Clone()
	}
	return out
}

// ReservationDetail is the slice of a reservation the itinerary model needs.
// The reservation module converts its aggregate into this shape, which keeps
// the pure model free of persistence concerns.
type ReservationDetail struct {
	ID         types.ReservationID
	Passengers int
	// IsDropoff marks a reservation that starts at the event property and
	// drops riders off elsewhere (a return leg).
	IsDropoff bool
	Stops     []ReservationStopDetail
}

// ReservationStopDetail is one non-event stop of a reservation.
type ReservationStopDetail struct {
	StopID   types.StopID
	Location StopLocation
}
