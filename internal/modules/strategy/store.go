// README: Market state store backed by Redis: strategies, live locations and ETA caches.
package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"shuttle/internal/types"
)

const (
	strategyKeyPrefix   = "market:strategy:%s"
	propertyKeyPrefix   = "market:property:%s"
	driverLocKeyPrefix  = "market:driverloc:%d"
	destEstKeyPrefix    = "market:est:driver:%s"
	segmentEstKeyPrefix = "market:est:stop:%s"
	clearScanPattern    = "market:*"

	// estRefreshThreshold is how long a travel-time sample stays usable
	// before a fresh geocoder call is required.
	estRefreshThreshold = 60 * time.Second
)

// CachedEstimate is one travel-time sample. It goes stale when older than
// estRefreshThreshold.
type CachedEstimate struct {
	Seconds int   `json:"seconds"`
	MadeAt  int64 `json:"made_at"`
}

func NewCachedEstimate(seconds int, now time.Time) CachedEstimate {
	return CachedEstimate{Seconds: seconds, MadeAt: now.Unix()}
}

func (e CachedEstimate) Stale(now time.Time) bool {
	return now.Unix()-e.MadeAt > int64(estRefreshThreshold/time.Second)
}

// OnlineDriver is one driver eligible for a fresh strategy entry.
type OnlineDriver struct {
	ID       types.DriverID
	Capacity int
}

// RosterSource enumerates the online drivers of an event with their vehicle
// capacities. It seeds a strategy on first access.
type RosterSource interface {
	OnlineDrivers(ctx context.Context, eventID types.EventID) ([]OnlineDriver, error)
}

// Store owns every piece of in-flight market state. All strategy mutations
// for one event are serialized through a per-event mutex so concurrent
// pings, accepts and cancellations cannot overwrite each other's
// read-modify-write cycles.
type Store struct {
	redis  *redis.Client
	roster RosterSource

	mu    sync.Mutex
	locks map[types.EventID]*sync.Mutex
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{
		redis: rdb,
		locks: make(map[types.EventID]*sync.Mutex),
	}
}

// SetRoster installs the online-driver source. It is set after construction
// because the roster needs the store itself to tell who is online.
func (s *Store) SetRoster(r RosterSource) {
	s.roster = r
}

func (s *Store) eventLock(eventID types.EventID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[eventID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[eventID] = l
	}
	return l
}

// GetOrCreate returns the event strategy, building one empty entry per
// online driver on first access.
func (s *Store) GetOrCreate(ctx context.Context, eventID types.EventID) (Strategy, error) {
	l := s.eventLock(eventID)
	l.Lock()
	defer l.Unlock()
	return s.getOrCreateLocked(ctx, eventID)
}

func (s *Store) getOrCreateLocked(ctx context.Context, eventID types.EventID) (Strategy, error) {
	key := fmt.Sprintf(strategyKeyPrefix, eventID)
	var strat Strategy
	ok, err := s.getJSON(ctx, key, &strat)
	if err != nil {
		return Strategy{}, err
	}
	if ok {
		if strat.Drivers == nil {
			strat.Drivers = map[types.DriverID]DriverStrategy{}
		}
		return strat, nil
	}

	strat = NewStrategy()
	drivers, err := s.roster.OnlineDrivers(ctx, eventID)
	if err != nil {
		return Strategy{}, err
	}
	for _, d := range drivers {
		strat.Drivers[d.ID] = NewDriverStrategy(d.ID, eventID, d.Capacity)
	}
	if err := s.setJSON(ctx, key, strat); err != nil {
		return Strategy{}, err
	}
	return strat, nil
}

// Mutate applies fn to the event strategy and persists the result. The
// read-modify-write cycle holds the event lock for its whole duration.
func (s *Store) Mutate(ctx context.Context, eventID types.EventID, fn func(Strategy) (Strategy, error)) (Strategy, error) {
	l := s.eventLock(eventID)
	l.Lock()
	defer l.Unlock()

	strat, err := s.getOrCreateLocked(ctx, eventID)
	if err != nil {
		return Strategy{}, err
	}
	next, err := fn(strat)
	if err != nil {
		return Strategy{}, err
	}
	if err := s.setJSON(ctx, fmt.Sprintf(strategyKeyPrefix, eventID), next); err != nil {
		return Strategy{}, err
	}
	return next, nil
}

// MutateDriver applies fn to one driver's itinerary inside the event
// strategy.
func (s *Store) MutateDriver(ctx context.Context, eventID types.EventID, driverID types.DriverID, fn func(DriverStrategy) (DriverStrategy, error)) (Strategy, error) {
	return s.Mutate(ctx, eventID, func(strat Strategy) (Strategy, error) {
		driver, ok := strat.Drivers[driverID]
		if !ok {
			return Strategy{}, ErrDriverNotFound
		}
		next, err := fn(driver)
		if err != nil {
			return Strategy{}, err
		}
		strat.Drivers[driverID] = next
		return strat, nil
	})
}

// AddDriver inserts a fresh itinerary for a driver coming online.
func (s *Store) AddDriver(ctx context.Context, eventID types.EventID, driverID types.DriverID, capacity int) error {
	_, err := s.Mutate(ctx, eventID, func(strat Strategy) (Strategy, error) {
		strat.Drivers[driverID] = NewDriverStrategy(driverID, eventID, capacity)
		return strat, nil
	})
	return err
}

// RemoveDriver drops a driver from the event and forgets their live
// location, which also marks them offline.
func (s *Store) RemoveDriver(ctx context.Context, eventID types.EventID, driverID types.DriverID) error {
	if err := s.DeleteDriverLocation(ctx, driverID); err != nil {
		return err
	}
	_, err := s.Mutate(ctx, eventID, func(strat Strategy) (Strategy, error) {
		delete(strat.Drivers, driverID)
		return strat, nil
	})
	return err
}

// DriverLocation returns the driver's last pinged position, if any. A
// present location is what makes a driver "online".
func (s *Store) DriverLocation(ctx context.Context, driverID types.DriverID) (types.LatLng, bool, error) {
	var loc types.LatLng
	ok, err := s.getJSON(ctx, fmt.Sprintf(driverLocKeyPrefix, driverID), &loc)
	return loc, ok, err
}

func (s *Store) SetDriverLocation(ctx context.Context, driverID types.DriverID, loc types.LatLng) error {
	return s.setJSON(ctx, fmt.Sprintf(driverLocKeyPrefix, driverID), loc)
}

func (s *Store) DeleteDriverLocation(ctx context.Context, driverID types.DriverID) error {
	return s.redis.Del(ctx, fmt.Sprintf(driverLocKeyPrefix, driverID)).Err()
}

// PropertyLocation returns the cached event property coordinates.
func (s *Store) PropertyLocation(ctx context.Context, eventID types.EventID) (types.LatLng, bool, error) {
	var loc types.LatLng
	ok, err := s.getJSON(ctx, fmt.Sprintf(propertyKeyPrefix, eventID), &loc)
	return loc, ok, err
}

func (s *Store) SetPropertyLocation(ctx context.Context, eventID types.EventID, loc types.LatLng) error {
	return s.setJSON(ctx, fmt.Sprintf(propertyKeyPrefix, eventID), loc)
}

// DriverDestEstimate returns the cached driver-to-destination travel time,
// if present and fresh.
func (s *Store) DriverDestEstimate(ctx context.Context, eventID types.EventID, driver DriverStrategy, now time.Time) (int, bool, error) {
	if driver.Dest == nil {
		return 0, false, ErrNoDest
	}
	key := fmt.Sprintf("%d-%s", driver.ID, driver.Dest.Key())
	return s.estimate(ctx, fmt.Sprintf(destEstKeyPrefix, eventID), key, now)
}

// SetDriverDestEstimate stores a fresh driver-to-destination travel time.
func (s *Store) SetDriverDestEstimate(ctx context.Context, eventID types.EventID, driver DriverStrategy, seconds int, now time.Time) error {
	if driver.Dest == nil {
		return ErrNoDest
	}
	key := fmt.Sprintf("%d-%s", driver.ID, driver.Dest.Key())
	return s.setEstimate(ctx, fmt.Sprintf(destEstKeyPrefix, eventID), key, seconds, now)
}

// SegmentEstimate returns the cached travel time between two stops, if
// present and fresh. The pair key is symmetric.
func (s *Store) SegmentEstimate(ctx context.Context, eventID types.EventID, from, to Stop, now time.Time) (int, bool, error) {
	return s.estimate(ctx, fmt.Sprintf(segmentEstKeyPrefix, eventID), from.PairKey(to), now)
}

// SetSegmentEstimate stores a fresh stop-pair travel time.
func (s *Store) SetSegmentEstimate(ctx context.Context, eventID types.EventID, from, to Stop, seconds int, now time.Time) error {
	return s.setEstimate(ctx, fmt.Sprintf(segmentEstKeyPrefix, eventID), from.PairKey(to), seconds, now)
}

func (s *Store) estimate(ctx context.Context, bucket, key string, now time.Time) (int, bool, error) {
	estimates := map[string]CachedEstimate{}
	ok, err := s.getJSON(ctx, bucket, &estimates)
	if err != nil || !ok {
		return 0, false, err
	}
	est, ok := estimates[key]
	if !ok || est.Stale(now) {
		return 0, false, nil
	}
	return est.Seconds, true, nil
}

func (s *Store) setEstimate(ctx context.Context, bucket, key string, seconds int, now time.Time) error {
	estimates := map[string]CachedEstimate{}
	if _, err := s.getJSON(ctx, bucket, &estimates); err != nil {
		return err
	}
	estimates[key] = NewCachedEstimate(seconds, now)
	return s.setJSON(ctx, bucket, estimates)
}

// Clear drops every market key: strategies, property locations, live driver
// locations and both estimate caches.
func (s *Store) Clear(ctx context.Context) error {
	iter := s.redis.Scan(ctx, 0, clearScanPattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("market store: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("market store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("market store: encode %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("market store: set %s: %w", key, err)
	}
	return nil
}
