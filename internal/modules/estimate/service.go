// README: Estimate engine: walks itineraries and derives absolute stop ETAs.
package estimate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shuttle/internal/modules/strategy"
	"shuttle/internal/types"
)

// ErrNoEventProperty means the event has no property location to resolve
// event markers against.
var ErrNoEventProperty = errors.New("no property assigned to the event")

// MarketState is the slice of the strategy store the engine reads and
// refreshes.
type MarketState interface {
	GetOrCreate(ctx context.Context, eventID types.EventID) (strategy.Strategy, error)
	DriverLocation(ctx context.Context, driverID types.DriverID) (types.LatLng, bool, error)
	PropertyLocation(ctx context.Context, eventID types.EventID) (types.LatLng, bool, error)
	SetPropertyLocation(ctx context.Context, eventID types.EventID, loc types.LatLng) error
	DriverDestEstimate(ctx context.Context, eventID types.EventID, driver strategy.DriverStrategy, now time.Time) (int, bool, error)
	SetDriverDestEstimate(ctx context.Context, eventID types.EventID, driver strategy.DriverStrategy, seconds int, now time.Time) error
	SegmentEstimate(ctx context.Context, eventID types.EventID, from, to strategy.Stop, now time.Time) (int, bool, error)
	SetSegmentEstimate(ctx context.Context, eventID types.EventID, from, to strategy.Stop, seconds int, now time.Time) error
}

// Geocoder produces travel times between coordinates.
type Geocoder interface {
	Estimate(ctx context.Context, from, to types.LatLng) (time.Duration, error)
}

// EventSource resolves event property locations and enumerates the events
// the background refresher should keep warm.
type EventSource interface {
	EventPropertyLocation(ctx context.Context, eventID types.EventID) (types.LatLng, bool, error)
	ListActiveEventIDs(ctx context.Context) ([]types.EventID, error)
}

// refreshInterval is how often the background task re-estimates active
// events.
const refreshInterval = 60 * time.Second

type Service struct {
	state    MarketState
	geocoder Geocoder
	events   EventSource
	log      *slog.Logger

	now func() time.Time

	// OnRefresh, when set, is invoked with fresh estimations after each
	// successful background refresh of an event.
	OnRefresh func(ctx context.Context, eventID types.EventID, est StrategyEstimations)
}

func NewService(state MarketState, geocoder Geocoder, events EventSource, log *slog.Logger) *Service {
	return &Service{
		state:    state,
		geocoder: geocoder,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// EstimateEvent annotates every driver itinerary of the event with absolute
// ETAs. Drivers are estimated concurrently; the first failure aborts the
// whole batch.
func (s *Service) EstimateEvent(ctx context.Context, eventID types.EventID) (StrategyEstimations, error) {
	strat, err := s.state.GetOrCreate(ctx, eventID)
	if err != nil {
		return StrategyEstimations{}, err
	}
	return s.EstimateStrategy(ctx, eventID, strat)
}

// EstimateStrategy annotates an in-memory strategy without touching the
// persisted one. The matching engine uses it to estimate speculative
// insertions.
func (s *Service) EstimateStrategy(ctx context.Context, eventID types.EventID, strat strategy.Strategy) (StrategyEstimations, error) {
	out := StrategyEstimations{Drivers: make(map[types.DriverID]DriverEstimations, len(strat.Drivers))}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, driver := range strat.Drivers {
		g.Go(func() error {
			est, err := s.estimateDriver(gctx, eventID, driver)
			if err != nil {
				return err
			}
			mu.Lock()
			out.Drivers[est.ID] = est
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StrategyEstimations{}, err
	}
	return out, nil
}

func (s *Service) estimateDriver(ctx context.Context, eventID types.EventID, driver strategy.DriverStrategy) (DriverEstimations, error) {
	destSeconds := 0
	var dest *StopEstimation
	if driver.Dest != nil {
		seconds, err := s.destEstimate(ctx, eventID, driver)
		if err != nil {
			return DriverEstimations{}, err
		}
		destSeconds = seconds
		dest = &StopEstimation{Stop: *driver.Dest, ETA: seconds}
	}

	queue, err := s.queueEstimates(ctx, eventID, driver, destSeconds)
	if err != nil {
		return DriverEstimations{}, err
	}
	return newDriverEstimations(driver, dest, queue), nil
}

// destEstimate resolves the driver-to-destination leg through its cache.
func (s *Service) destEstimate(ctx context.Context, eventID types.EventID, driver strategy.DriverStrategy) (int, error) {
	seconds, ok, err := s.state.DriverDestEstimate(ctx, eventID, driver, s.now())
	if err != nil {
		return 0, err
	}
	if ok {
		return seconds, nil
	}
	return s.refreshDestEstimate(ctx, eventID, driver)
}

// refreshDestEstimate always calls the geocoder and rewrites the cache.
func (s *Service) refreshDestEstimate(ctx context.Context, eventID types.EventID, driver strategy.DriverStrategy) (int, error) {
	if driver.Dest == nil {
		return 0, strategy.ErrNoDest
	}
	loc, online, err := s.state.DriverLocation(ctx, driver.ID)
	if err != nil {
		return 0, err
	}
	if !online {
		return 0, ErrNoDriverLocation
	}
	to, err := s.stopCoords(ctx, eventID, *driver.Dest)
	if err != nil {
		return 0, err
	}
	d, err := s.geocoder.Estimate(ctx, loc, to)
	if err != nil {
		return 0, err
	}
	seconds := int(d / time.Second)
	if err := s.state.SetDriverDestEstimate(ctx, eventID, driver, seconds, s.now()); err != nil {
		return 0, err
	}
	return seconds, nil
}

// queueEstimates walks the queue pairwise, accumulating segment times onto
// the destination ETA. Accumulation is pure addition, so ETAs are
// non-decreasing along the queue.
func (s *Service) queueEstimates(ctx context.Context, eventID types.EventID, driver strategy.DriverStrategy, destSeconds int) ([]StopEstimation, error) {
	queue := make([]StopEstimation, 0, len(driver.Queue))
	if driver.Dest == nil {
		return queue, nil
	}
	running := destSeconds
	prev := *driver.Dest
	for _, stop := range driver.Queue {
		segment, err := s.segmentEstimate(ctx, eventID, prev, stop)
		if err != nil {
			return nil, err
		}
		running += segment
		queue = append(queue, StopEstimation{Stop: stop, ETA: running})
		prev = stop
	}
	return queue, nil
}

func (s *Service) segmentEstimate(ctx context.Context, eventID types.EventID, from, to strategy.Stop) (int, error) {
	seconds, ok, err := s.state.SegmentEstimate(ctx, eventID, from, to, s.now())
	if err != nil {
		return 0, err
	}
	if ok {
		return seconds, nil
	}

	fromCoords, err := s.stopCoords(ctx, eventID, from)
	if err != nil {
		return 0, err
	}
	toCoords, err := s.stopCoords(ctx, eventID, to)
	if err != nil {
		return 0, err
	}
	d, err := s.geocoder.Estimate(ctx, fromCoords, toCoords)
	if err != nil {
		return 0, err
	}
	seconds = int(d / time.Second)
	if err := s.state.SetSegmentEstimate(ctx, eventID, from, to, seconds, s.now()); err != nil {
		return 0, err
	}
	return seconds, nil
}

// stopCoords resolves a stop to coordinates. Event markers resolve to the
// event property location, cached separately.
func (s *Service) stopCoords(ctx context.Context, eventID types.EventID, stop strategy.Stop) (types.LatLng, error) {
	if stop.Kind == strategy.KindReservation {
		return stop.Location.Coords, nil
	}
	loc, ok, err := s.state.PropertyLocation(ctx, eventID)
	if err != nil {
		return types.LatLng{}, err
	}
	if ok {
		return loc, nil
	}
	loc, ok, err = s.events.EventPropertyLocation(ctx, eventID)
	if err != nil {
		return types.LatLng{}, err
	}
	if !ok {
		return types.LatLng{}, ErrNoEventProperty
	}
	if err := s.state.SetPropertyLocation(ctx, eventID, loc); err != nil {
		return types.LatLng{}, err
	}
	return loc, nil
}

// RefreshEvent re-geocodes the destination leg of every driver that has
// one, then returns fresh estimations. The background task calls this to
// track driver movement between pings.
func (s *Service) RefreshEvent(ctx context.Context, eventID types.EventID) (StrategyEstimations, error) {
	strat, err := s.state.GetOrCreate(ctx, eventID)
	if err != nil {
		return StrategyEstimations{}, err
	}
	for _, driver := range strat.Drivers {
		if driver.Dest == nil {
			continue
		}
		if _, err := s.refreshDestEstimate(ctx, eventID, driver); err != nil {
			return StrategyEstimations{}, err
		}
	}
	return s.EstimateStrategy(ctx, eventID, strat)
}

// RunRefresher periodically refreshes every active event until ctx is
// cancelled. Per-event failures are logged and skipped; the loop never
// stops on its own.
func (s *Service) RunRefresher(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshTick(ctx)
		}
	}
}

func (s *Service) refreshTick(ctx context.Context) {
	ids, err := s.events.ListActiveEventIDs(ctx)
	if err != nil {
		s.log.Error("refresh: list active events", "err", err)
		return
	}
	for _, id := range ids {
		est, err := s.RefreshEvent(ctx, id)
		if err != nil {
			s.log.Error("refresh: event estimates", "event", id, "err", err)
			continue
		}
		if s.OnRefresh != nil {
			s.OnRefresh(ctx, id, est)
		}
	}
}
