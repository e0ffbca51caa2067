// README: Tests for the estimate engine against the campus mock geocoder.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"shuttle/internal/maps"
	"shuttle/internal/modules/strategy"
	"shuttle/internal/types"
)

type fakeState struct {
	strat     strategy.Strategy
	locations map[types.DriverID]types.LatLng
	property  *types.LatLng

	destCache    map[string]int
	segmentCache map[string]int
}

func newFakeState(strat strategy.Strategy) *fakeState {
	return &fakeState{
		strat:        strat,
		locations:    map[types.DriverID]types.LatLng{},
		destCache:    map[string]int{},
		segmentCache: map[string]int{},
	}
}

func (f *fakeState) GetOrCreate(context.Context, types.EventID) (strategy.Strategy, error) {
	return f.strat, nil
}

func (f *fakeState) DriverLocation(_ context.Context, id types.DriverID) (types.LatLng, bool, error) {
	loc, ok := f.locations[id]
	return loc, ok, nil
}

func (f *fakeState) PropertyLocation(context.Context, types.EventID) (types.LatLng, bool, error) {
	if f.property == nil {
		return types.LatLng{}, false, nil
	}
	return *f.property, true, nil
}

func (f *fakeState) SetPropertyLocation(_ context.Context, _ types.EventID, loc types.LatLng) error {
	f.property = &loc
	return nil
}

func destKey(driver strategy.DriverStrategy) string {
	return fmt.Sprintf("%d:%s", driver.ID, driver.Dest.Key())
}

func (f *fakeState) DriverDestEstimate(_ context.Context, _ types.EventID, driver strategy.DriverStrategy, _ time.Time) (int, bool, error) {
	v, ok := f.destCache[destKey(driver)]
	return v, ok, nil
}

func (f *fakeState) SetDriverDestEstimate(_ context.Context, _ types.EventID, driver strategy.DriverStrategy, seconds int, _ time.Time) error {
	f.destCache[destKey(driver)] = seconds
	return nil
}

func (f *fakeState) SegmentEstimate(_ context.Context, _ types.EventID, from, to strategy.Stop, _ time.Time) (int, bool, error) {
	v, ok := f.segmentCache[from.PairKey(to)]
	return v, ok, nil
}

func (f *fakeState) SetSegmentEstimate(_ context.Context, _ types.EventID, from, to strategy.Stop, seconds int, _ time.Time) error {
	f.segmentCache[from.PairKey(to)] = seconds
	return nil
}

type fakeEvents struct {
	property *types.LatLng
}

func (f *fakeEvents) EventPropertyLocation(context.Context, types.EventID) (types.LatLng, bool, error) {
	if f.property == nil {
		return types.LatLng{}, false, nil
	}
	return *f.property, true, nil
}

func (f *fakeEvents) ListActiveEventIDs(context.Context) ([]types.EventID, error) {
	return []types.EventID{"ev"}, nil
}

type countingGeocoder struct {
	inner Geocoder
	calls int
}

func (g *countingGeocoder) Estimate(ctx context.Context, from, to types.LatLng) (time.Duration, error) {
	g.calls++
	return g.inner.Estimate(ctx, from, to)
}

func pickupStop(id types.ReservationID, at types.LatLng) strategy.Stop {
	return strategy.Stop{
		Kind:          strategy.KindReservation,
		ReservationID: id,
		StopID:        types.StopID(string(id) + "-s0"),
		Location:      strategy.StopLocation{Coords: at},
		Passengers:    1,
	}
}

func newTestService(state MarketState, geocoder Geocoder, events EventSource) *Service {
	svc := NewService(state, geocoder, events, slog.New(slog.DiscardHandler))
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return svc
}

func TestEstimateEvent_SinglePickup(t *testing.T) {
	// Driver 7 at Tiger Blvd heading to a Benet Hall pickup, then back to
	// the event at the CSP lot. Mock legs: Tiger->Benet 10min, Benet->CSP 5min.
	dest := pickupStop("res-a", maps.BenetHall.Location)
	driver := strategy.NewDriverStrategy(7, "ev", 4)
	driver.Dest = &dest
	driver.Queue = []strategy.Stop{strategy.NewEventStop()}

	strat := strategy.NewStrategy()
	strat.Drivers[7] = driver

	state := newFakeState(strat)
	state.locations[7] = maps.TigerBlvd.Location
	events := &fakeEvents{property: &maps.CSP.Location}

	svc := newTestService(state, maps.NewMock(), events)
	est, err := svc.EstimateEvent(context.Background(), "ev")
	if err != nil {
		t.Fatal(err)
	}

	d, err := est.Driver(7)
	if err != nil {
		t.Fatal(err)
	}
	if d.Dest.ETA != 600 {
		t.Errorf("dest ETA = %d, want 600", d.Dest.ETA)
	}
	if len(d.Queue) != 1 || d.Queue[0].ETA != 900 {
		t.Errorf("queue = %+v, want one marker at 900", d.Queue)
	}
}

func TestEstimateEvent_AccumulatesAlongQueue(t *testing.T) {
	// Tiger->Benet 600, Benet->CSP 900, CSP->Douthit 1140, Douthit->CSP 1380.
	dest := pickupStop("res-a", maps.BenetHall.Location)
	driver := strategy.NewDriverStrategy(7, "ev", 4)
	driver.Dest = &dest
	driver.Queue = []strategy.Stop{
		strategy.NewEventStop(),
		pickupStop("res-b", maps.Douthit.Location),
		strategy.NewEventStop(),
	}

	strat := strategy.NewStrategy()
	strat.Drivers[7] = driver

	state := newFakeState(strat)
	state.locations[7] = maps.TigerBlvd.Location
	events := &fakeEvents{property: &maps.CSP.Location}

	svc := newTestService(state, maps.NewMock(), events)
	est, err := svc.EstimateEvent(context.Background(), "ev")
	if err != nil {
		t.Fatal(err)
	}

	d, _ := est.Driver(7)
	want := []int{900, 1140, 1380}
	for i, w := range want {
		if d.Queue[i].ETA != w {
			t.Errorf("queue[%d].ETA = %d, want %d", i, d.Queue[i].ETA, w)
		}
	}
	for i := 1; i < len(d.Queue); i++ {
		if d.Queue[i].ETA < d.Queue[i-1].ETA {
			t.Errorf("ETAs must be non-decreasing, got %d after %d", d.Queue[i].ETA, d.Queue[i-1].ETA)
		}
	}
}

func TestEstimateEvent_UsesCaches(t *testing.T) {
	dest := pickupStop("res-a", maps.BenetHall.Location)
	driver := strategy.NewDriverStrategy(7, "ev", 4)
	driver.Dest = &dest
	driver.Queue = []strategy.Stop{strategy.NewEventStop()}

	strat := strategy.NewStrategy()
	strat.Drivers[7] = driver

	state := newFakeState(strat)
	state.locations[7] = maps.TigerBlvd.Location
	events := &fakeEvents{property: &maps.CSP.Location}
	geocoder := &countingGeocoder{inner: maps.NewMock()}

	svc := newTestService(state, geocoder, events)
	ctx := context.Background()
	if _, err := svc.EstimateEvent(ctx, "ev"); err != nil {
		t.Fatal(err)
	}
	warm := geocoder.calls
	if _, err := svc.EstimateEvent(ctx, "ev"); err != nil {
		t.Fatal(err)
	}
	if geocoder.calls != warm {
		t.Errorf("second estimate hit the geocoder %d more times, want 0", geocoder.calls-warm)
	}
}

func TestEstimateEvent_OfflineDriver(t *testing.T) {
	dest := pickupStop("res-a", maps.BenetHall.Location)
	driver := strategy.NewDriverStrategy(7, "ev", 4)
	driver.Dest = &dest

	strat := strategy.NewStrategy()
	strat.Drivers[7] = driver

	state := newFakeState(strat) // no location for driver 7
	events := &fakeEvents{property: &maps.CSP.Location}

	svc := newTestService(state, maps.NewMock(), events)
	_, err := svc.EstimateEvent(context.Background(), "ev")
	if !errors.Is(err, ErrNoDriverLocation) {
		t.Errorf("err = %v, want ErrNoDriverLocation", err)
	}
}

func TestEstimateEvent_NoEventProperty(t *testing.T) {
	driver := strategy.NewDriverStrategy(7, "ev", 4)
	marker := strategy.NewEventStop()
	driver.Dest = &marker

	strat := strategy.NewStrategy()
	strat.Drivers[7] = driver

	state := newFakeState(strat)
	state.locations[7] = maps.TigerBlvd.Location

	svc := newTestService(state, maps.NewMock(), &fakeEvents{})
	_, err := svc.EstimateEvent(context.Background(), "ev")
	if !errors.Is(err, ErrNoEventProperty) {
		t.Errorf("err = %v, want ErrNoEventProperty", err)
	}
}

func TestRefreshEvent_RewritesDestLeg(t *testing.T) {
	dest := pickupStop("res-a", maps.BenetHall.Location)
	driver := strategy.NewDriverStrategy(7, "ev", 4)
	driver.Dest = &dest

	strat := strategy.NewStrategy()
	strat.Drivers[7] = driver

	state := newFakeState(strat)
	state.locations[7] = maps.TigerBlvd.Location
	events := &fakeEvents{property: &maps.CSP.Location}

	svc := newTestService(state, maps.NewMock(), events)
	ctx := context.Background()
	if _, err := svc.EstimateEvent(ctx, "ev"); err != nil {
		t.Fatal(err)
	}

	// Driver drove to Douthit; the cache still says Tiger->Benet.
	state.locations[7] = maps.Douthit.Location
	est, err := svc.RefreshEvent(ctx, "ev")
	if err != nil {
		t.Fatal(err)
	}
	d, _ := est.Driver(7)
	if d.Dest.ETA != 300 {
		t.Errorf("dest ETA after refresh = %d, want 300 (Douthit->Benet)", d.Dest.ETA)
	}
}
