// README: Driver service: pings, accepting rides and working the itinerary.
package driver

import (
	"context"
	"log/slog"

	"shuttle/internal/messenger"
	"shuttle/internal/modules/estimate"
	"shuttle/internal/modules/reservation"
	"shuttle/internal/modules/strategy"
	"shuttle/internal/push"
	"shuttle/internal/types"
)

// DriverSource reads driver and vehicle rows.
type DriverSource interface {
	Get(ctx context.Context, id types.DriverID) (*Driver, error)
	Find(ctx context.Context, eventID types.EventID, phone string) (*Driver, error)
	Vehicle(ctx context.Context, id string) (*Vehicle, error)
}

// MarketState is the slice of the strategy store the service drives.
type MarketState interface {
	DriverLocation(ctx context.Context, driverID types.DriverID) (types.LatLng, bool, error)
	SetDriverLocation(ctx context.Context, driverID types.DriverID, loc types.LatLng) error
	AddDriver(ctx context.Context, eventID types.EventID, driverID types.DriverID, capacity int) error
	RemoveDriver(ctx context.Context, eventID types.EventID, driverID types.DriverID) error
	MutateDriver(ctx context.Context, eventID types.EventID, driverID types.DriverID, fn func(strategy.DriverStrategy) (strategy.DriverStrategy, error)) (strategy.Strategy, error)
}

type Estimator interface {
	EstimateEvent(ctx context.Context, eventID types.EventID) (estimate.StrategyEstimations, error)
}

// ReservationStore is the slice of reservation persistence the service
// needs to work stops.
type ReservationStore interface {
	Get(ctx context.Context, id types.ReservationID) (*reservation.Reservation, error)
	AssignDriver(ctx context.Context, id types.ReservationID, driverID types.DriverID) (bool, error)
	RemoveDriver(ctx context.Context, id types.ReservationID) error
	MarkStopArrived(ctx context.Context, stopID types.StopID) error
	MarkStopComplete(ctx context.Context, stopID types.StopID) error
	MarkComplete(ctx context.Context, id types.ReservationID) error
}

// PoolProjection produces event estimations with the pool speculatively
// assigned.
type PoolProjection interface {
	PoolEstimates(ctx context.Context, eventID types.EventID) (estimate.StrategyEstimations, error)
}

type Service struct {
	drivers      DriverSource
	reservations ReservationStore
	state        MarketState
	estimator    Estimator
	pool         PoolProjection
	messenger    messenger.Messenger
	pusher       push.Pusher
	tokens       push.TokenSource
	log          *slog.Logger
}

func NewService(drivers DriverSource, reservations ReservationStore, state MarketState, estimator Estimator, pool PoolProjection, m messenger.Messenger, pusher push.Pusher, tokens push.TokenSource, log *slog.Logger) *Service {
	return &Service{
		drivers:      drivers,
		reservations: reservations,
		state:        state,
		estimator:    estimator,
		pool:         pool,
		messenger:    m,
		pusher:       pusher,
		tokens:       tokens,
		log:          log,
	}
}

func (s *Service) Find(ctx context.Context, eventID types.EventID, phone string) (*Driver, error) {
	return s.drivers.Find(ctx, eventID, phone)
}

// Ping reports where the driver is. The first ping after being offline puts
// the driver on the market; every ping streams the position to the riders
// sharing the vehicle and returns the driver's current itinerary.
func (s *Service) Ping(ctx context.Context, eventID types.EventID, driverID types.DriverID, loc types.LatLng) (estimate.DriverEstimations, error) {
	_, online, err := s.state.DriverLocation(ctx, driverID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}
	if !online {
		d, err := s.drivers.Get(ctx, driverID)
		if err != nil {
			return estimate.DriverEstimations{}, err
		}
		if d.VehicleID == nil {
			return estimate.DriverEstimations{}, ErrNoVehicle
		}
		v, err := s.drivers.Vehicle(ctx, *d.VehicleID)
		if err != nil {
			return estimate.DriverEstimations{}, err
		}
		if err := s.state.AddDriver(ctx, eventID, driverID, v.Capacity); err != nil {
			return estimate.DriverEstimations{}, err
		}
	}

	// Resolve who shares the vehicle before moving the pin, then publish.
	est, err := s.estimator.EstimateEvent(ctx, eventID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}
	driver, err := est.Driver(driverID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}
	if err := s.state.SetDriverLocation(ctx, driverID, loc); err != nil {
		return estimate.DriverEstimations{}, err
	}
	if err := messenger.SendDriverLocation(ctx, s.messenger, eventID, driverID, driver.SharingLocationWith(), loc); err != nil {
		s.log.Warn("driver: broadcast location", "driver", driverID, "err", err)
	}

	return s.driverEstimations(ctx, eventID, driverID)
}

// Accept claims a pooled reservation for the driver and inserts it into
// their itinerary. The database row is the arbiter: the conditional update
// makes exactly one concurrent accept win.
func (s *Service) Accept(ctx context.Context, driverID types.DriverID, reservationID types.ReservationID) (estimate.DriverEstimations, error) {
	r, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}
	if r.DriverID != nil {
		return estimate.DriverEstimations{}, ErrHasDriver
	}

	won, err := s.reservations.AssignDriver(ctx, reservationID, driverID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}
	if !won {
		return estimate.DriverEstimations{}, ErrHasDriver
	}
	r, err = s.reservations.Get(ctx, reservationID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}

	_, err = s.state.MutateDriver(ctx, r.EventID, driverID, func(d strategy.DriverStrategy) (strategy.DriverStrategy, error) {
		if d.Dest != nil {
			return strategy.DriverStrategy{}, ErrHasDest
		}
		return d.AddReservation(r.Detail()), nil
	})
	if err != nil {
		// Release the claim so the reservation goes back to the pool.
		if rbErr := s.reservations.RemoveDriver(ctx, reservationID); rbErr != nil {
			s.log.Error("driver: release claim after failed accept", "reservation", reservationID, "err", rbErr)
		}
		return estimate.DriverEstimations{}, err
	}

	if err := messenger.SendReservationUpdate(ctx, s.messenger, r.ID, r.EventID, r); err != nil {
		s.log.Warn("driver: broadcast accept", "reservation", r.ID, "err", err)
	}
	s.notify(ctx, r, s.pusher.DriverAccepted)

	return s.driverEstimations(ctx, r.EventID, driverID)
}

// Arrive confirms the driver reached their current destination. Arriving at
// a pickup notifies the rider; arriving at the event marker is a plain
// acknowledgement.
func (s *Service) Arrive(ctx context.Context, eventID types.EventID, driverID types.DriverID) (estimate.DriverEstimations, error) {
	driver, err := s.driverEstimations(ctx, eventID, driverID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}
	if driver.Dest == nil {
		return estimate.DriverEstimations{}, strategy.ErrNoDest
	}
	dest := driver.Dest.Stop
	if dest.Kind != strategy.KindReservation {
		return driver, nil
	}

	if err := s.reservations.MarkStopArrived(ctx, dest.StopID); err != nil {
		return estimate.DriverEstimations{}, err
	}
	r, err := s.reservations.Get(ctx, dest.ReservationID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}
	if err := messenger.SendReservationUpdate(ctx, s.messenger, r.ID, r.EventID, r); err != nil {
		s.log.Warn("driver: broadcast arrival", "reservation", r.ID, "err", err)
	}
	if !dest.IsDropoff {
		s.notify(ctx, r, s.pusher.DriverArrived)
	}
	return driver, nil
}

// Next completes the current destination and advances the itinerary:
// picking riders up, dropping them off, and closing out reservations once
// the queue drains.
func (s *Service) Next(ctx context.Context, eventID types.EventID, driverID types.DriverID) (estimate.DriverEstimations, error) {
	driver, err := s.driverEstimations(ctx, eventID, driverID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}
	if driver.Dest == nil {
		return estimate.DriverEstimations{}, strategy.ErrNoDest
	}
	dest := driver.Dest.Stop

	if dest.Kind == strategy.KindReservation {
		if err := s.reservations.MarkStopComplete(ctx, dest.StopID); err != nil {
			return estimate.DriverEstimations{}, err
		}
	}

	// Last stop of the run: every boarded reservation is done.
	if len(driver.Queue) == 0 {
		for _, id := range driver.PickedUpIDs() {
			if err := s.reservations.MarkComplete(ctx, id); err != nil {
				return estimate.DriverEstimations{}, err
			}
		}
	}

	if _, err := s.state.MutateDriver(ctx, eventID, driverID, func(d strategy.DriverStrategy) (strategy.DriverStrategy, error) {
		return d.Advance()
	}); err != nil {
		return estimate.DriverEstimations{}, err
	}

	if dest.Kind == strategy.KindReservation {
		r, err := s.reservations.Get(ctx, dest.ReservationID)
		if err != nil {
			return estimate.DriverEstimations{}, err
		}
		if err := messenger.SendReservationUpdate(ctx, s.messenger, r.ID, r.EventID, r); err != nil {
			s.log.Warn("driver: broadcast stop completion", "reservation", r.ID, "err", err)
		}
	}

	return s.driverEstimations(ctx, eventID, driverID)
}

// AvailableReservation is the ride offered to the driver right now: the
// reservation behind their projected destination, with its stop ETAs.
type AvailableReservation struct {
	Reservation *reservation.Reservation
	Stops       []estimate.StopEstimation
}

// AvailableReservation projects the pool onto the market and returns the
// ride the driver would serve next, or nil when there is nothing for them.
func (s *Service) AvailableReservation(ctx context.Context, eventID types.EventID, driverID types.DriverID) (*AvailableReservation, error) {
	est, err := s.pool.PoolEstimates(ctx, eventID)
	if err != nil {
		return nil, err
	}
	driver, err := est.Driver(driverID)
	if err != nil {
		return nil, err
	}
	if driver.Dest == nil || driver.Dest.Stop.Kind != strategy.KindReservation {
		return nil, nil
	}

	resID := driver.Dest.Stop.ReservationID
	stops := []estimate.StopEstimation{*driver.Dest}
	for _, stop := range driver.Queue {
		if stop.Stop.Kind == strategy.KindReservation && stop.Stop.ReservationID == resID {
			stops = append(stops, stop)
		}
	}

	r, err := s.reservations.Get(ctx, resID)
	if err != nil {
		return nil, err
	}
	return &AvailableReservation{Reservation: r, Stops: stops}, nil
}

func (s *Service) driverEstimations(ctx context.Context, eventID types.EventID, driverID types.DriverID) (estimate.DriverEstimations, error) {
	est, err := s.estimator.EstimateEvent(ctx, eventID)
	if err != nil {
		return estimate.DriverEstimations{}, err
	}
	return est.Driver(driverID)
}

// notify delivers a rider push, best effort.
func (s *Service) notify(ctx context.Context, r *reservation.Reservation, send func(context.Context, string, push.Ride) error) {
	token, ok, err := s.tokens.DeviceToken(ctx, r.Reserver)
	if err != nil {
		s.log.Warn("driver: device token lookup", "reservation", r.ID, "err", err)
		return
	}
	if !ok {
		return
	}
	ride := push.Ride{ReservationID: r.ID, EventID: r.EventID}
	if err := send(ctx, token, ride); err != nil {
		s.log.Warn("driver: push notification", "reservation", r.ID, "err", err)
	}
}
