// README: Tests for the driver lifecycle: ping, accept, arrive and next.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"shuttle/internal/messenger"
	"shuttle/internal/modules/estimate"
	"shuttle/internal/modules/reservation"
	"shuttle/internal/modules/strategy"
	"shuttle/internal/push"
	"shuttle/internal/types"
)

type fakeDrivers struct {
	drivers  map[types.DriverID]*Driver
	vehicles map[string]*Vehicle
}

func (f *fakeDrivers) Get(_ context.Context, id types.DriverID) (*Driver, error) {
	d, ok := f.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (f *fakeDrivers) Find(_ context.Context, eventID types.EventID, phone string) (*Driver, error) {
	for _, d := range f.drivers {
		if d.EventID == eventID && d.Phone == phone {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeDrivers) Vehicle(_ context.Context, id string) (*Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok {
		return nil, ErrNoVehicle
	}
	return v, nil
}

type fakeReservations struct {
	byID map[types.ReservationID]*reservation.Reservation

	completed    []types.ReservationID
	arrivedStops []types.StopID
	doneStops    []types.StopID
}

func (f *fakeReservations) Get(_ context.Context, id types.ReservationID) (*reservation.Reservation, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return r, nil
}

func (f *fakeReservations) AssignDriver(_ context.Context, id types.ReservationID, driverID types.DriverID) (bool, error) {
	r := f.byID[id]
	if r.DriverID != nil {
		return false, nil
	}
	d := driverID
	r.DriverID = &d
	r.Status = reservation.StatusActive
	return true, nil
}

func (f *fakeReservations) RemoveDriver(_ context.Context, id types.ReservationID) error {
	r := f.byID[id]
	r.DriverID = nil
	r.Status = reservation.StatusWaiting
	return nil
}

func (f *fakeReservations) MarkStopArrived(_ context.Context, stopID types.StopID) error {
	f.arrivedStops = append(f.arrivedStops, stopID)
	return nil
}

func (f *fakeReservations) MarkStopComplete(_ context.Context, stopID types.StopID) error {
	f.doneStops = append(f.doneStops, stopID)
	return nil
}

func (f *fakeReservations) MarkComplete(_ context.Context, id types.ReservationID) error {
	f.completed = append(f.completed, id)
	r := f.byID[id]
	r.Status = reservation.StatusComplete
	return nil
}

// fakeMarket keeps strategies in memory and estimates every leg at a flat
// five minutes.
type fakeMarket struct {
	strategies map[types.EventID]strategy.Strategy
	locations  map[types.DriverID]types.LatLng
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		strategies: map[types.EventID]strategy.Strategy{},
		locations:  map[types.DriverID]types.LatLng{},
	}
}

func (f *fakeMarket) strategyFor(eventID types.EventID) strategy.Strategy {
	s, ok := f.strategies[eventID]
	if !ok {
		s = strategy.NewStrategy()
		f.strategies[eventID] = s
	}
	return s
}

func (f *fakeMarket) DriverLocation(_ context.Context, id types.DriverID) (types.LatLng, bool, error) {
	loc, ok := f.locations[id]
	return loc, ok, nil
}

func (f *fakeMarket) SetDriverLocation(_ context.Context, id types.DriverID, loc types.LatLng) error {
	f.locations[id] = loc
	return nil
}

func (f *fakeMarket) AddDriver(_ context.Context, eventID types.EventID, driverID types.DriverID, capacity int) error {
	s := f.strategyFor(eventID)
	s.Drivers[driverID] = strategy.NewDriverStrategy(driverID, eventID, capacity)
	return nil
}

func (f *fakeMarket) RemoveDriver(_ context.Context, eventID types.EventID, driverID types.DriverID) error {
	delete(f.strategyFor(eventID).Drivers, driverID)
	return nil
}

func (f *fakeMarket) MutateDriver(_ context.Context, eventID types.EventID, driverID types.DriverID, fn func(strategy.DriverStrategy) (strategy.DriverStrategy, error)) (strategy.Strategy, error) {
	s := f.strategyFor(eventID)
	d, ok := s.Drivers[driverID]
	if !ok {
		return strategy.Strategy{}, strategy.ErrDriverNotFound
	}
	next, err := fn(d)
	if err != nil {
		return strategy.Strategy{}, err
	}
	s.Drivers[driverID] = next
	return s, nil
}

func (f *fakeMarket) EstimateEvent(_ context.Context, eventID types.EventID) (estimate.StrategyEstimations, error) {
	const flat = 300
	s := f.strategyFor(eventID)
	out := estimate.StrategyEstimations{Drivers: map[types.DriverID]estimate.DriverEstimations{}}
	for id, d := range s.Drivers {
		var dest *estimate.StopEstimation
		running := 0
		if d.Dest != nil {
			running = flat
			dest = &estimate.StopEstimation{Stop: *d.Dest, ETA: running}
		}
		queue := make([]estimate.StopEstimation, 0, len(d.Queue))
		for _, stop := range d.Queue {
			running += flat
			queue = append(queue, estimate.StopEstimation{Stop: stop, ETA: running})
		}
		out.Drivers[id] = estimate.DriverEstimations{
			ID: d.ID, EventID: d.EventID, Dest: dest, Queue: queue,
			PickedUp: d.PickedUp, MaxCapacity: d.MaxCapacity,
		}
	}
	return out, nil
}

type fakePool struct {
	market *fakeMarket
}

func (f *fakePool) PoolEstimates(ctx context.Context, eventID types.EventID) (estimate.StrategyEstimations, error) {
	return f.market.EstimateEvent(ctx, eventID)
}

type fixture struct {
	svc    *Service
	market *fakeMarket
	res    *fakeReservations
	bus    *messenger.Mock
	pusher *push.Mock
}

func newFixture() *fixture {
	vehicleID := "veh-1"
	drivers := &fakeDrivers{
		drivers: map[types.DriverID]*Driver{
			7: {ID: 7, Phone: "+18645550100", EventID: "ev", VehicleID: &vehicleID},
			8: {ID: 8, Phone: "+18645550101", EventID: "ev"},
		},
		vehicles: map[string]*Vehicle{
			"veh-1": {ID: "veh-1", Capacity: 4},
		},
	}
	market := newFakeMarket()
	res := &fakeReservations{byID: map[types.ReservationID]*reservation.Reservation{}}
	bus := messenger.NewMock()
	pusher := push.NewMock()
	tokens := push.MockTokens{"+18645550199": "token-1"}

	svc := NewService(drivers, res, market, market, &fakePool{market: market}, bus, pusher, tokens, slog.New(slog.DiscardHandler))
	return &fixture{svc: svc, market: market, res: res, bus: bus, pusher: pusher}
}

func waitingReservation(id types.ReservationID) *reservation.Reservation {
	return &reservation.Reservation{
		ID:                id,
		EventID:           "ev",
		MadeAt:            time.Now(),
		Reserver:          "+18645550199",
		Passengers:        2,
		InitialPassengers: 2,
		Status:            reservation.StatusWaiting,
		Stops: []reservation.Stop{
			{ID: types.StopID(string(id) + "-s0"), Order: 0, Location: types.LatLng{Lat: 34.677, Lng: -82.840}},
			{ID: types.StopID(string(id) + "-s1"), Order: 1, IsEventLocation: true},
		},
	}
}

func TestPing_FirstPingAddsDriver(t *testing.T) {
	f := newFixture()
	loc := types.LatLng{Lat: 34.69, Lng: -82.83}

	est, err := f.svc.Ping(context.Background(), "ev", 7, loc)
	if err != nil {
		t.Fatal(err)
	}
	if est.MaxCapacity != 4 {
		t.Errorf("capacity = %d, want the vehicle's 4", est.MaxCapacity)
	}
	if got, ok := f.market.locations[7]; !ok || !got.CloseTo(loc) {
		t.Errorf("location not stored, got %+v", got)
	}
	if msgs := f.bus.Published("event:ev"); len(msgs) != 1 || msgs[0].Kind != messenger.KindDriverLocation {
		t.Errorf("event topic = %+v, want one driver location", msgs)
	}
}

func TestPing_NoVehicle(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Ping(context.Background(), "ev", 8, types.LatLng{})
	if !errors.Is(err, ErrNoVehicle) {
		t.Errorf("err = %v, want ErrNoVehicle", err)
	}
}

func TestAccept_AssignsAndInserts(t *testing.T) {
	f := newFixture()
	f.res.byID["res-a"] = waitingReservation("res-a")
	if _, err := f.svc.Ping(context.Background(), "ev", 7, types.LatLng{Lat: 34.69, Lng: -82.83}); err != nil {
		t.Fatal(err)
	}

	est, err := f.svc.Accept(context.Background(), 7, "res-a")
	if err != nil {
		t.Fatal(err)
	}
	if est.Dest == nil || est.Dest.Stop.ReservationID != "res-a" {
		t.Errorf("dest = %+v, want the res-a pickup", est.Dest)
	}
	r := f.res.byID["res-a"]
	if r.DriverID == nil || *r.DriverID != 7 {
		t.Errorf("reservation driver = %v, want 7", r.DriverID)
	}
	if calls := f.pusher.Calls; len(calls) != 1 || calls[0].Kind != "driver_accepted" || calls[0].Token != "token-1" {
		t.Errorf("push calls = %+v, want one accepted push", calls)
	}
}

func TestAccept_SecondDriverLoses(t *testing.T) {
	f := newFixture()
	f.res.byID["res-a"] = waitingReservation("res-a")
	ctx := context.Background()
	if _, err := f.svc.Ping(ctx, "ev", 7, types.LatLng{Lat: 34.69, Lng: -82.83}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, 7, "res-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, 7, "res-a"); !errors.Is(err, ErrHasDriver) {
		t.Errorf("err = %v, want ErrHasDriver", err)
	}
}

func TestAccept_BusyDriverRollsBack(t *testing.T) {
	f := newFixture()
	f.res.byID["res-a"] = waitingReservation("res-a")
	f.res.byID["res-b"] = waitingReservation("res-b")
	ctx := context.Background()
	if _, err := f.svc.Ping(ctx, "ev", 7, types.LatLng{Lat: 34.69, Lng: -82.83}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, 7, "res-a"); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Accept(ctx, 7, "res-b")
	if !errors.Is(err, ErrHasDest) {
		t.Fatalf("err = %v, want ErrHasDest", err)
	}
	r := f.res.byID["res-b"]
	if r.DriverID != nil || r.Status != reservation.StatusWaiting {
		t.Errorf("failed accept must release the claim, got %+v", r)
	}
}

func TestArrive_PickupMarksAndPushes(t *testing.T) {
	f := newFixture()
	f.res.byID["res-a"] = waitingReservation("res-a")
	ctx := context.Background()
	if _, err := f.svc.Ping(ctx, "ev", 7, types.LatLng{Lat: 34.69, Lng: -82.83}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, 7, "res-a"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Arrive(ctx, "ev", 7); err != nil {
		t.Fatal(err)
	}
	if len(f.res.arrivedStops) != 1 || f.res.arrivedStops[0] != "res-a-s0" {
		t.Errorf("arrived stops = %v, want the pickup stop", f.res.arrivedStops)
	}
	calls := f.pusher.Calls
	if len(calls) != 2 || calls[1].Kind != "driver_arrived" {
		t.Errorf("push calls = %+v, want accepted then arrived", calls)
	}
}

func TestNext_CompletesRunWhenQueueDrains(t *testing.T) {
	f := newFixture()
	f.res.byID["res-a"] = waitingReservation("res-a")
	ctx := context.Background()
	if _, err := f.svc.Ping(ctx, "ev", 7, types.LatLng{Lat: 34.69, Lng: -82.83}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(ctx, 7, "res-a"); err != nil {
		t.Fatal(err)
	}

	// Depart the pickup: riders board, dest becomes the event marker.
	est, err := f.svc.Next(ctx, "ev", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.res.doneStops) != 1 || f.res.doneStops[0] != "res-a-s0" {
		t.Errorf("done stops = %v, want the pickup stop", f.res.doneStops)
	}
	if est.Dest == nil || !est.Dest.Stop.IsEvent() {
		t.Fatalf("dest = %+v, want the event marker", est.Dest)
	}
	if !est.IsPickedUp("res-a") {
		t.Error("riders should be boarded after leaving the pickup")
	}

	// Arrive at the event and depart: the run is over.
	est, err = f.svc.Next(ctx, "ev", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.res.completed) != 1 || f.res.completed[0] != "res-a" {
		t.Errorf("completed = %v, want res-a", f.res.completed)
	}
	if !est.IsEmpty() {
		t.Errorf("itinerary should be empty after the run, got %+v", est)
	}
}

func TestNext_NoDest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.Ping(ctx, "ev", 7, types.LatLng{Lat: 34.69, Lng: -82.83}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Next(ctx, "ev", 7); !errors.Is(err, strategy.ErrNoDest) {
		t.Errorf("err = %v, want ErrNoDest", err)
	}
}

func TestAvailableReservation(t *testing.T) {
	f := newFixture()
	f.res.byID["res-a"] = waitingReservation("res-a")
	ctx := context.Background()
	if _, err := f.svc.Ping(ctx, "ev", 7, types.LatLng{Lat: 34.69, Lng: -82.83}); err != nil {
		t.Fatal(err)
	}

	// Nothing offered while the itinerary is empty and the pool fake does
	// not assign.
	offer, err := f.svc.AvailableReservation(ctx, "ev", 7)
	if err != nil {
		t.Fatal(err)
	}
	if offer != nil {
		t.Errorf("offer = %+v, want nil", offer)
	}

	// Once the reservation sits in the itinerary, it is the offer.
	if _, err := f.svc.Accept(ctx, 7, "res-a"); err != nil {
		t.Fatal(err)
	}
	offer, err = f.svc.AvailableReservation(ctx, "ev", 7)
	if err != nil {
		t.Fatal(err)
	}
	if offer == nil || offer.Reservation.ID != "res-a" {
		t.Fatalf("offer = %+v, want res-a", offer)
	}
	if len(offer.Stops) != 1 || offer.Stops[0].Stop.StopID != "res-a-s0" {
		t.Errorf("offer stops = %+v, want the pickup with its ETA", offer.Stops)
	}
}
