// README: Pure itinerary operations: inserting reservations and advancing stops.
package strategy

import (
	"errors"

	"shuttle/internal/types"
)

var (
	// ErrNoDest rejects operations that need a current destination.
	ErrNoDest = errors.New("driver has no destination")
	// ErrDriverNotFound is returned when a driver id is absent from the
	// event strategy.
	ErrDriverNotFound = errors.New("driver not found in strategy")
	// ErrReservationPickedUp rejects removing a reservation whose riders
	// are already in the vehicle.
	ErrReservationPickedUp = errors.New("reservation is picked up")
)

// AddReservation returns a copy of the strategy with the reservation's stops
// inserted.
//
// A pickup reservation contributes its pickup stop followed by a
// return-to-event marker. A dropoff reservation (return leg from the event)
// contributes its dropoff stops right after the first event marker that has
// no dropoff run pending behind it; the marker itself is created when the
// itinerary does not already end on one.
func (d DriverStrategy) AddReservation(res ReservationDetail) DriverStrategy {
	next := d.Clone()
	if res.IsDropoff {
		next.addDropoffReservation(res)
	} else {
		next.addPickupReservation(res)
	}
	return next
}

func (d *DriverStrategy) addPickupReservation(res ReservationDetail) {
	first := res.Stops[0]
	stop := Stop{
		Kind:          KindReservation,
		ReservationID: res.ID,
		StopID:        first.StopID,
		Location:      first.Location,
		IsDropoff:     false,
		Order:         0,
		Passengers:    res.Passengers,
	}
	if d.Dest == nil {
		d.Dest = &stop
	} else {
		d.Queue = append(d.Queue, stop)
	}
	d.Queue = append(d.Queue, NewEventStop())
}

func (d *DriverStrategy) addDropoffReservation(res ReservationDetail) {
	marker := NewEventStop()
	switch {
	case d.Dest == nil:
		d.Dest = &marker
	case len(d.Queue) > 0 && d.Queue[len(d.Queue)-1].IsEvent():
		// The itinerary already ends at the event; reuse that marker.
	default:
		d.Queue = append(d.Queue, marker)
	}

	at := d.idxAfterFirstFreeEvent() + 1
	for i, rs := range res.Stops {
		stop := Stop{
			Kind:          KindReservation,
			ReservationID: res.ID,
			StopID:        rs.StopID,
			Location:      rs.Location,
			IsDropoff:     true,
			Order:         i,
			Passengers:    res.Passengers,
		}
		d.Queue = append(d.Queue, Stop{})
		copy(d.Queue[at+i+1:], d.Queue[at+i:])
		d.Queue[at+i] = stop
	}
}

// idxAfterFirstFreeEvent returns the queue index of the first event marker
// whose contiguous dropoff run has not yet started, or -1 when that marker
// is the current destination. The caller guarantees at least one event
// marker exists.
func (d *DriverStrategy) idxAfterFirstFreeEvent() int {
	if d.Dest != nil && d.Dest.IsEvent() && len(d.Queue) == 0 {
		return -1
	}
	for idx, stop := range d.Queue {
		if !stop.IsEvent() {
			continue
		}
		if idx+1 == len(d.Queue) {
			return idx
		}
		next := d.Queue[idx+1]
		if next.Kind == KindReservation && !next.IsDropoff {
			return idx
		}
	}
	return len(d.Queue) - 1
}

// Advance consumes the current destination and promotes the queue head.
//
// Consuming a pickup stop boards its riders; consuming a dropoff stop
// unboards them. Promoting a dropoff stop into the destination boards its
// riders (they board when the vehicle leaves the event). Draining the queue
// clears the destination and resets the boarded set.
func (d DriverStrategy) Advance() (DriverStrategy, error) {
	if d.Dest == nil {
		return DriverStrategy{}, ErrNoDest
	}
	next := d.Clone()

	left := *next.Dest
	if left.Kind == KindReservation {
		if left.IsDropoff {
			delete(next.PickedUp, left.ReservationID)
		} else {
			next.PickedUp[left.ReservationID] = left.Passengers
		}
	}

	if len(next.Queue) == 0 {
		next.Dest = nil
		next.PickedUp = map[types.ReservationID]int{}
		return next, nil
	}

	head := next.Queue[0]
	next.Queue = next.Queue[1:]
	next.Dest = &head
	if head.Kind == KindReservation && head.IsDropoff {
		next.PickedUp[head.ReservationID] = head.Passengers
	}
	return next, nil
}

// RemoveReservation strips every stop belonging to the reservation from the
// itinerary. It fails when the reservation is already boarded.
func (d DriverStrategy) RemoveReservation(id types.ReservationID) (DriverStrategy, error) {
	if d.IsPickedUp(id) {
		return DriverStrategy{}, ErrReservationPickedUp
	}
	next := d.Clone()
	if next.Dest != nil && next.Dest.ReservationID == id && next.Dest.Kind == KindReservation {
		next.Dest = nil
	}
	kept := next.Queue[:0]
	for _, stop := range next.Queue {
		if stop.Kind == KindReservation && stop.ReservationID == id {
			continue
		}
		kept = append(kept, stop)
	}
	next.Queue = kept
	return next, nil
}
