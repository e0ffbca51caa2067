// README: Reservation service: booking, cancellation and rider estimates.
package reservation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"shuttle/internal/messenger"
	"shuttle/internal/modules/dispatch"
	"shuttle/internal/modules/estimate"
	"shuttle/internal/modules/event"
	"shuttle/internal/modules/strategy"
	"shuttle/internal/types"
)

// ErrReservationsClosed rejects bookings outside the event's reservation
// window.
var ErrReservationsClosed = errors.New("reservations are closed for the event")

// Fallback ETAs quoted when an event has no drivers online yet.
const (
	noDriverFirstStopETA  = int(7 * time.Minute / time.Second)
	noDriverSecondStopETA = int(14 * time.Minute / time.Second)
)

// campusReservationID keys the speculative campus estimate. It is constant
// so the travel-time segments it produces stay cacheable.
const campusReservationID = types.ReservationID("f8272da1-e043-46a8-a5f7-ca922d7da52a")

// Geocoder resolves display addresses at booking time.
type Geocoder interface {
	ResolveAddress(ctx context.Context, loc types.LatLng, placeID string) (types.Address, error)
}

// EventSource reads event aggregates and their properties.
type EventSource interface {
	Get(ctx context.Context, id types.EventID) (*event.Event, error)
	Property(ctx context.Context, id types.EventID) (*event.Property, error)
}

// StrategyState is the slice of the market state store the service touches.
type StrategyState interface {
	MutateDriver(ctx context.Context, eventID types.EventID, driverID types.DriverID, fn func(strategy.DriverStrategy) (strategy.DriverStrategy, error)) (strategy.Strategy, error)
	PropertyLocation(ctx context.Context, eventID types.EventID) (types.LatLng, bool, error)
	SetPropertyLocation(ctx context.Context, eventID types.EventID, loc types.LatLng) error
}

// Estimator annotates event strategies with ETAs.
type Estimator interface {
	EstimateEvent(ctx context.Context, eventID types.EventID) (estimate.StrategyEstimations, error)
}

// Matcher speculatively assigns pooled reservations to drivers.
type Matcher interface {
	AssignPool(ctx context.Context, eventID types.EventID, est estimate.StrategyEstimations, pool []dispatch.PoolReservation, targetID types.ReservationID) (estimate.StrategyEstimations, *estimate.DriverEstimations, error)
}

type Service struct {
	store     *Store
	events    EventSource
	state     StrategyState
	estimator Estimator
	engine    Matcher
	geocoder  Geocoder
	messenger messenger.Messenger
	log       *slog.Logger

	now func() time.Time
}

func NewService(store *Store, events EventSource, state StrategyState, estimator Estimator, engine Matcher, geocoder Geocoder, m messenger.Messenger, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		events:    events,
		state:     state,
		estimator: estimator,
		engine:    engine,
		geocoder:  geocoder,
		messenger: m,
		log:       log,
		now:       time.Now,
	}
}

// Form is a booking request. Stops without a location point at the event
// property.
type Form struct {
	Passengers int
	Stops      []FormStop
}

type FormStop struct {
	Location *FormStopLocation
}

type FormStopLocation struct {
	Coords types.LatLng
	// PlaceID, when set, names the Google place the rider picked.
	PlaceID string
	// Address is the rider-entered label, used as-is when no place id is
	// available.
	Address string
}

func (s *Service) Get(ctx context.Context, id types.ReservationID) (*Reservation, error) {
	return s.store.Get(ctx, id)
}

// Create books a reservation: resolve the stops, quote ETAs by
// speculatively matching it against the live pool, persist, broadcast.
func (s *Service) Create(ctx context.Context, phone string, eventID types.EventID, form Form) (*Reservation, error) {
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.ReservationsOpen(s.now()) {
		return nil, ErrReservationsClosed
	}

	stops, err := s.processForm(ctx, eventID, form)
	if err != nil {
		return nil, err
	}

	r := &Reservation{
		ID:                newReservationID(),
		EventID:           eventID,
		MadeAt:            s.now(),
		Reserver:          phone,
		Passengers:        form.Passengers,
		InitialPassengers: form.Passengers,
		Status:            StatusWaiting,
		Stops:             stops,
	}

	est, err := s.estimateSpeculative(ctx, r)
	if err != nil {
		return nil, err
	}
	for i := range r.Stops {
		if i < len(est.StopETAs) {
			r.Stops[i].ETA = est.StopETAs[i].ETA
		}
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	if err := messenger.SendReservationUpdate(ctx, s.messenger, r.ID, r.EventID, r); err != nil {
		s.log.Warn("reservation: broadcast create", "reservation", r.ID, "err", err)
	}
	return r, nil
}

// Cancel voids a reservation and scrubs it from its driver's itinerary.
// Cancelling an already cancelled reservation is a no-op; a reservation with
// a completed stop, or one whose riders are boarded, cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id types.ReservationID, reason *int) (*Reservation, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.CancelledAt != nil {
		return r, nil
	}
	if r.HasCompletedStop() {
		return nil, ErrHasPickup
	}

	// Scrub the itinerary before touching the row: RemoveReservation
	// rejects boarded riders, and a cancelled row with riders still in the
	// car is the worse failure mode.
	if r.DriverID != nil {
		_, err := s.state.MutateDriver(ctx, r.EventID, *r.DriverID, func(d strategy.DriverStrategy) (strategy.DriverStrategy, error) {
			return d.RemoveReservation(id)
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.Cancel(ctx, id); err != nil {
		return nil, err
	}
	if reason != nil {
		if err := s.store.SetCancelReason(ctx, id, *reason); err != nil {
			return nil, err
		}
	}
	r, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := messenger.SendReservationUpdate(ctx, s.messenger, r.ID, r.EventID, r); err != nil {
		s.log.Warn("reservation: broadcast cancel", "reservation", r.ID, "err", err)
	}
	return r, nil
}

// Estimate answers "when will my ride happen" for an existing reservation.
// An assigned driver answers from their itinerary; an unassigned reservation
// is matched speculatively against the pool.
func (s *Service) Estimate(ctx context.Context, r *Reservation) (estimate.ReservationEstimate, error) {
	return s.estimateReservation(ctx, r, true)
}

func (s *Service) estimateReservation(ctx context.Context, r *Reservation, heal bool) (estimate.ReservationEstimate, error) {
	if r.DriverID == nil {
		return s.estimateSpeculative(ctx, r)
	}

	strat, err := s.estimator.EstimateEvent(ctx, r.EventID)
	if err != nil {
		return estimate.ReservationEstimate{}, err
	}
	driver, err := strat.Driver(*r.DriverID)
	if err != nil {
		return estimate.ReservationEstimate{}, err
	}

	est, err := driver.EstimateReservation(r.View())
	if errors.Is(err, estimate.ErrReservationNotInStrategy) && heal {
		// The driver dropped off the market (e.g. strategy cache reset)
		// while still assigned in the database. Release the row and
		// estimate from the pool instead.
		if err := s.store.RemoveDriver(ctx, r.ID); err != nil {
			return estimate.ReservationEstimate{}, err
		}
		fresh, err := s.store.Get(ctx, r.ID)
		if err != nil {
			return estimate.ReservationEstimate{}, err
		}
		return s.estimateReservation(ctx, fresh, false)
	}
	return est, err
}

// estimateSpeculative drops the reservation into the pool, runs the matching
// loop until it lands on a driver, and reads the ETAs off that itinerary.
func (s *Service) estimateSpeculative(ctx context.Context, r *Reservation) (estimate.ReservationEstimate, error) {
	strat, err := s.estimator.EstimateEvent(ctx, r.EventID)
	if err != nil {
		return estimate.ReservationEstimate{}, err
	}
	pool, err := s.Pool(ctx, r.EventID)
	if err != nil {
		return estimate.ReservationEstimate{}, err
	}

	if !poolContains(pool, r.ID) {
		pool = append(pool, dispatch.PoolReservation{Detail: r.Detail(), MadeAt: r.MadeAt})
	}

	_, driver, err := s.engine.AssignPool(ctx, r.EventID, strat, pool, r.ID)
	if err != nil {
		return estimate.ReservationEstimate{}, err
	}
	if driver == nil {
		return s.noDriversEstimate(r), nil
	}
	return driver.EstimateReservation(r.View())
}

// EstimateNew quotes a booking that does not exist yet.
func (s *Service) EstimateNew(ctx context.Context, eventID types.EventID, form Form) (estimate.ReservationEstimate, error) {
	stops, err := s.processForm(ctx, eventID, form)
	if err != nil {
		return estimate.ReservationEstimate{}, err
	}
	r := &Reservation{
		ID:         newReservationID(),
		EventID:    eventID,
		MadeAt:     s.now(),
		Passengers: form.Passengers,
		Status:     StatusWaiting,
		Stops:      stops,
	}
	return s.estimateSpeculative(ctx, r)
}

// EstimateCampus quotes the standing "campus to event" ride shown before a
// rider fills any form. The reservation and stop ids are fixed so the
// segment estimates it produces hit the cache across calls.
func (s *Service) EstimateCampus(ctx context.Context, eventID types.EventID, campus types.LatLng, label string) (estimate.ReservationEstimate, error) {
	form := Form{
		Passengers: 1,
		Stops: []FormStop{
			{Location: &FormStopLocation{Coords: campus, Address: label}},
			{},
		},
	}
	stops, err := s.processForm(ctx, eventID, form)
	if err != nil {
		return estimate.ReservationEstimate{}, err
	}
	stops[0].ID = types.StopID("32420f81-2690-4e48-a32f-4f8f256af199")
	stops[1].ID = types.StopID("cd2163e4-f630-40d9-b596-216866a0fc25")

	r := &Reservation{
		ID:         campusReservationID,
		EventID:    eventID,
		MadeAt:     s.now(),
		Passengers: 1,
		Status:     StatusWaiting,
		Stops:      stops,
	}
	return s.estimateSpeculative(ctx, r)
}

// Pool lists the unassigned reservations of an event in matching form.
func (s *Service) Pool(ctx context.Context, eventID types.EventID) ([]dispatch.PoolReservation, error) {
	list, err := s.store.ListPool(ctx, eventID)
	if err != nil {
		return nil, err
	}
	out := make([]dispatch.PoolReservation, 0, len(list))
	for _, r := range list {
		out = append(out, dispatch.PoolReservation{Detail: r.Detail(), MadeAt: r.MadeAt})
	}
	return out, nil
}

// PoolEstimates returns event estimations with every pooled reservation
// speculatively assigned. This is the projection drivers see.
func (s *Service) PoolEstimates(ctx context.Context, eventID types.EventID) (estimate.StrategyEstimations, error) {
	strat, err := s.estimator.EstimateEvent(ctx, eventID)
	if err != nil {
		return estimate.StrategyEstimations{}, err
	}
	pool, err := s.Pool(ctx, eventID)
	if err != nil {
		return estimate.StrategyEstimations{}, err
	}
	est, _, err := s.engine.AssignPool(ctx, eventID, strat, pool, "")
	return est, err
}

// processForm validates a booking form and resolves each stop. Exactly one
// stop may omit its location, and only at either end of the ride; it
// resolves to the event property.
func (s *Service) processForm(ctx context.Context, eventID types.EventID, form Form) ([]Stop, error) {
	if len(form.Stops) < 2 {
		return nil, ErrTooFewStops
	}

	stops := make([]Stop, 0, len(form.Stops))
	eventStopUsed := false
	for i, fs := range form.Stops {
		if fs.Location == nil {
			if eventStopUsed {
				return nil, ErrEventStopReused
			}
			if i != 0 && i != len(form.Stops)-1 {
				return nil, ErrEventStopPosition
			}
			eventStopUsed = true
			stop, err := s.eventStop(ctx, eventID, i)
			if err != nil {
				return nil, err
			}
			stops = append(stops, stop)
			continue
		}
		stop, err := s.locatedStop(ctx, *fs.Location, i)
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

func (s *Service) locatedStop(ctx context.Context, loc FormStopLocation, order int) (Stop, error) {
	var address types.Address
	if loc.PlaceID == "" && loc.Address != "" {
		address = types.Address{Main: loc.Address}
	} else {
		resolved, err := s.geocoder.ResolveAddress(ctx, loc.Coords, loc.PlaceID)
		if err != nil {
			return Stop{}, err
		}
		address = resolved
	}

	stop := Stop{
		ID:       newStopID(),
		Order:    order,
		Location: loc.Coords,
		Address:  address,
	}
	if loc.PlaceID != "" {
		placeID := loc.PlaceID
		stop.PlaceID = &placeID
	}
	return stop, nil
}

func (s *Service) eventStop(ctx context.Context, eventID types.EventID, order int) (Stop, error) {
	property, err := s.events.Property(ctx, eventID)
	if err != nil {
		return Stop{}, err
	}
	if property == nil {
		return Stop{}, ErrNoEventProperty
	}

	loc, ok, err := s.state.PropertyLocation(ctx, eventID)
	if err != nil {
		return Stop{}, err
	}
	if !ok {
		loc = property.Location
		if err := s.state.SetPropertyLocation(ctx, eventID, loc); err != nil {
			return Stop{}, err
		}
	}

	return Stop{
		ID:              newStopID(),
		Order:           order,
		IsEventLocation: true,
		Location:        loc,
		Address:         types.Address{Main: property.Label},
	}, nil
}

// noDriversEstimate is the degraded quote when the event has no drivers
// online: flat fallback ETAs and the front of the queue.
func (s *Service) noDriversEstimate(r *Reservation) estimate.ReservationEstimate {
	out := estimate.ReservationEstimate{QueuePosition: 0}
	fallback := [2]int{noDriverFirstStopETA, noDriverSecondStopETA}
	for i, stop := range r.Stops {
		if i > 1 {
			break
		}
		out.StopETAs = append(out.StopETAs, estimate.StopEstimation{
			Stop: strategy.Stop{
				Kind:          strategy.KindReservation,
				ReservationID: r.ID,
				StopID:        stop.ID,
				Location: strategy.StopLocation{
					Coords:  stop.Location,
					Address: stop.Address,
				},
				Order:      stop.Order,
				Passengers: r.Passengers,
			},
			ETA: fallback[i],
		})
	}
	return out
}

func poolContains(pool []dispatch.PoolReservation, id types.ReservationID) bool {
	for _, p := range pool {
		if p.Detail.ID == id {
			return true
		}
	}
	return false
}

func newReservationID() types.ReservationID {
	return types.ReservationID(newID())
}

func newStopID() types.StopID {
	return types.StopID(newID())
}

func newID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
