// README: ETA-annotated projections of driver strategies.
package estimate

import (
	"errors"

	"shuttle/internal/modules/strategy"
	"shuttle/internal/types"
)

var (
	// ErrNoDriverLocation means a driver has no live location cached, so no
	// travel time can be computed from their position.
	ErrNoDriverLocation = errors.New("no driver location was found")
	// ErrReservationNotInStrategy flags a cache/DB divergence: the
	// reservation claims a driver whose itinerary does not contain it.
	ErrReservationNotInStrategy = errors.New("reservation was not found in the driver strategy")
)

// StopEstimation is a stop with its absolute ETA in seconds from now.
type StopEstimation struct {
	Stop strategy.Stop `json:"stop"`
	ETA  int           `json:"eta"`
}

// DriverEstimations is the read-only, ETA-annotated projection of one
// driver's itinerary. It is always derived, never persisted.
type DriverEstimations struct {
	ID          types.DriverID              `json:"id"`
	EventID     types.EventID               `json:"id_event"`
	Dest        *StopEstimation             `json:"dest,omitempty"`
	Queue       []StopEstimation            `json:"queue"`
	PickedUp    map[types.ReservationID]int `json:"picked_up"`
	MaxCapacity int                         `json:"max_capacity"`
}

func newDriverEstimations(d strategy.DriverStrategy, dest *StopEstimation, queue []StopEstimation) DriverEstimations {
	return DriverEstimations{
		ID:          d.ID,
		EventID:     d.EventID,
		Dest:        dest,
		Queue:       queue,
		PickedUp:    d.PickedUp,
		MaxCapacity: d.MaxCapacity,
	}
}

// StripEstimates drops the ETA annotations, returning the plain itinerary.
func (d DriverEstimations) StripEstimates() strategy.DriverStrategy {
	out := strategy.DriverStrategy{
		ID:          d.ID,
		EventID:     d.EventID,
		Queue:       make([]strategy.Stop, 0, len(d.Queue)),
		PickedUp:    d.PickedUp,
		MaxCapacity: d.MaxCapacity,
	}
	if d.Dest != nil {
		dest := d.Dest.Stop
		out.Dest = &dest
	}
	for _, s := range d.Queue {
		out.Queue = append(out.Queue, s.Stop)
	}
	return out.Clone()
}

// Duration is the total committed itinerary time in seconds: the ETA of the
// last stop.
func (d DriverEstimations) Duration() int {
	if n := len(d.Queue); n > 0 {
		return d.Queue[n-1].ETA
	}
	if d.Dest != nil {
		return d.Dest.ETA
	}
	return 0
}

// IsPickedUp reports whether the reservation's riders are in the vehicle.
func (d DriverEstimations) IsPickedUp(id types.ReservationID) bool {
	_, ok := d.PickedUp[id]
	return ok
}

// PickedUpIDs lists the reservations currently boarded.
func (d DriverEstimations) PickedUpIDs() []types.ReservationID {
	ids := make([]types.ReservationID, 0, len(d.PickedUp))
	for id := range d.PickedUp {
		ids = append(ids, id)
	}
	return ids
}

// IsEmpty reports whether the driver has nothing boarded, no destination and
// an empty queue.
func (d DriverEstimations) IsEmpty() bool {
	return len(d.PickedUp) == 0 && d.Dest == nil && len(d.Queue) == 0
}

// SharingLocationWith lists every reservation the driver's live location
// should be streamed to: boarded riders plus everyone in dest and queue.
func (d DriverEstimations) SharingLocationWith() []types.ReservationID {
	seen := map[types.ReservationID]bool{}
	for id := range d.PickedUp {
		seen[id] = true
	}
	if d.Dest != nil && d.Dest.Stop.Kind == strategy.KindReservation {
		seen[d.Dest.Stop.ReservationID] = true
	}
	for _, s := range d.Queue {
		if s.Stop.Kind == strategy.KindReservation {
			seen[s.Stop.ReservationID] = true
		}
	}
	ids := make([]types.ReservationID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// stops returns dest and queue as one ordered slice.
func (d DriverEstimations) stops() []StopEstimation {
	out := make([]StopEstimation, 0, len(d.Queue)+1)
	if d.Dest != nil {
		out = append(out, *d.Dest)
	}
	out = append(out, d.Queue...)
	return out
}

// QueuePosition returns how many other reservations are served before this
// one: 0 means the driver is heading to it (or its riders are boarded).
func (d DriverEstimations) QueuePosition(id types.ReservationID) (int, error) {
	if d.IsPickedUp(id) {
		return 0, nil
	}
	if d.Dest != nil && d.Dest.Stop.Kind == strategy.KindReservation && d.Dest.Stop.ReservationID == id {
		return 0, nil
	}
	ahead := map[types.ReservationID]bool{}
	for pid := range d.PickedUp {
		ahead[pid] = true
	}
	if d.Dest != nil && d.Dest.Stop.Kind == strategy.KindReservation {
		ahead[d.Dest.Stop.ReservationID] = true
	}
	for _, s := range d.Queue {
		if s.Stop.Kind != strategy.KindReservation {
			continue
		}
		if s.Stop.ReservationID == id {
			return len(ahead), nil
		}
		ahead[s.Stop.ReservationID] = true
	}
	return 0, ErrReservationNotInStrategy
}

// ReservationEstimate is the rider-facing answer: one ETA per reservation
// stop plus the queue position.
type ReservationEstimate struct {
	StopETAs      []StopEstimation `json:"stop_etas"`
	QueuePosition int              `json:"queue_position"`
}

// ReservationStopView is one reservation stop as the estimator needs it.
type ReservationStopView struct {
	StopID          types.StopID
	IsEventLocation bool
	Location        strategy.StopLocation
}

// ReservationView is the slice of a reservation the estimator needs.
type ReservationView struct {
	ID         types.ReservationID
	Passengers int
	Stops      []ReservationStopView
}

// IsDropoff reports whether the reservation is a return leg: it starts at
// the event property.
func (v ReservationView) IsDropoff() bool {
	return len(v.Stops) > 0 && v.Stops[0].IsEventLocation
}

// EstimateReservation projects the driver's ETAs onto a reservation's
// stops. Stops the driver already served get an ETA of 0. An event-location
// stop borrows the ETA of the event marker adjacent to the reservation's own
// stops, since markers are shared between reservations.
func (d DriverEstimations) EstimateReservation(v ReservationView) (ReservationEstimate, error) {
	pos, err := d.QueuePosition(v.ID)
	if err != nil {
		return ReservationEstimate{}, err
	}

	all := d.stops()
	etas := make([]StopEstimation, 0, len(v.Stops))
	for _, rs := range v.Stops {
		if rs.IsEventLocation {
			etas = append(etas, StopEstimation{
				Stop: strategy.NewEventStop(),
				ETA:  d.eventMarkerETA(all, v),
			})
			continue
		}
		etas = append(etas, d.reservationStopETA(all, rs, v.Passengers, v.ID))
	}
	return ReservationEstimate{StopETAs: etas, QueuePosition: pos}, nil
}

func (d DriverEstimations) reservationStopETA(all []StopEstimation, rs ReservationStopView, passengers int, id types.ReservationID) StopEstimation {
	for _, s := range all {
		if s.Stop.Kind == strategy.KindReservation && s.Stop.StopID == rs.StopID {
			return s
		}
	}
	// Already served; report it with a zero ETA.
	return StopEstimation{
		Stop: strategy.Stop{
			Kind:          strategy.KindReservation,
			ReservationID: id,
			StopID:        rs.StopID,
			Location:      rs.Location,
			Passengers:    passengers,
		},
	}
}

// eventMarkerETA finds the event marker that belongs to the reservation's
// leg: the first marker after the reservation's own stops, or, for a return
// leg, the marker right before them.
func (d DriverEstimations) eventMarkerETA(all []StopEstimation, v ReservationView) int {
	idx := -1
	for i, s := range all {
		if s.Stop.Kind == strategy.KindReservation && s.Stop.ReservationID == v.ID {
			idx = i
			if v.IsDropoff() {
				break
			}
		}
	}
	if v.IsDropoff() {
		for i := idx - 1; i >= 0; i-- {
			if all[i].Stop.IsEvent() {
				return all[i].ETA
			}
		}
		return 0
	}
	for i := idx + 1; i < len(all); i++ {
		if all[i].Stop.IsEvent() {
			return all[i].ETA
		}
	}
	// The reservation's own stops are gone; the next marker from the start
	// is the remaining return leg.
	for _, s := range all {
		if s.Stop.IsEvent() {
			return s.ETA
		}
	}
	return 0
}

// StrategyEstimations is the ETA-annotated projection of a whole event
// strategy.
type StrategyEstimations struct {
	Drivers map[types.DriverID]DriverEstimations `json:"drivers"`
}

func (s StrategyEstimations) Driver(id types.DriverID) (DriverEstimations, error) {
	d, ok := s.Drivers[id]
	if !ok {
		return DriverEstimations{}, strategy.ErrDriverNotFound
	}
	return d, nil
}

// StripEstimates converts back to the persistable strategy form.
func (s StrategyEstimations) StripEstimates() strategy.Strategy {
	out := strategy.NewStrategy()
	for id, d := range s.Drivers {
		out.Drivers[id] = d.StripEstimates()
	}
	return out
}
