// README: Matching engine: pairs pooled reservations with drivers by score.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"shuttle/internal/modules/estimate"
	"shuttle/internal/modules/strategy"
	"shuttle/internal/types"
)

var ErrNoStops = errors.New("reservation has no stops")

// Scoring weights. Proximity decays linearly with the driver's distance to
// the reservation's first stop.
const (
	maxTimeDifferenceScore = 50.0
	maxWaitingTimeScore    = 50.0
	maxProximityScore      = 25.0
	proximityPenaltyPerKm  = 5.0

	scoreEpsilon = 1e-9
)

// PoolReservation is an unassigned reservation waiting for a driver.
type PoolReservation struct {
	Detail strategy.ReservationDetail
	MadeAt time.Time
}

// LocationSource reads live driver locations.
type LocationSource interface {
	DriverLocation(ctx context.Context, driverID types.DriverID) (types.LatLng, bool, error)
}

// Estimator annotates a strategy with ETAs without persisting it.
type Estimator interface {
	EstimateStrategy(ctx context.Context, eventID types.EventID, strat strategy.Strategy) (estimate.StrategyEstimations, error)
}

type Engine struct {
	locations LocationSource
	estimator Estimator
	log       *slog.Logger

	now func() time.Time
}

func NewEngine(locations LocationSource, estimator Estimator, log *slog.Logger) *Engine {
	return &Engine{
		locations: locations,
		estimator: estimator,
		log:       log,
		now:       time.Now,
	}
}

// AssignPool repeatedly picks the best scoring driver/reservation pair,
// inserts the reservation into that driver's itinerary and re-estimates,
// until the pool is drained or no pair is assignable. Assignments are
// speculative; nothing here writes to the strategy store or the database.
//
// When targetID is non-empty the loop stops as soon as that reservation is
// placed and returns the itinerary it landed on.
func (e *Engine) AssignPool(ctx context.Context, eventID types.EventID, est estimate.StrategyEstimations, pool []PoolReservation, targetID types.ReservationID) (estimate.StrategyEstimations, *estimate.DriverEstimations, error) {
	for len(pool) > 0 {
		driverID, resIdx, found, err := e.bestPair(ctx, est, pool)
		if err != nil {
			return estimate.StrategyEstimations{}, nil, err
		}
		if !found {
			return est, nil, nil
		}

		res := pool[resIdx]
		pool = append(pool[:resIdx:resIdx], pool[resIdx+1:]...)

		strat := est.StripEstimates()
		strat.Drivers[driverID] = strat.Drivers[driverID].AddReservation(res.Detail)

		est, err = e.estimator.EstimateStrategy(ctx, eventID, strat)
		if err != nil {
			return estimate.StrategyEstimations{}, nil, err
		}

		if targetID != "" && res.Detail.ID == targetID {
			driver, err := est.Driver(driverID)
			if err != nil {
				return estimate.StrategyEstimations{}, nil, err
			}
			return est, &driver, nil
		}
	}
	return est, nil, nil
}

type pairScore struct {
	score         float64
	driverID      types.DriverID
	reservationID types.ReservationID
	poolIdx       int
}

// bestPair scores every assignable driver/reservation pair and returns the
// winner. Pairs the driver cannot fit are skipped. found is false when no
// pair is assignable at all.
func (e *Engine) bestPair(ctx context.Context, est estimate.StrategyEstimations, pool []PoolReservation) (driverID types.DriverID, poolIdx int, found bool, err error) {
	scores := make([]pairScore, 0, len(est.Drivers)*len(pool))
	for id, driver := range est.Drivers {
		capacity := driver.StripEstimates()
		for idx, res := range pool {
			if !capacity.CanFit(res.Detail.Passengers) {
				continue
			}
			score, err := e.scorePair(ctx, driver, res)
			if err != nil {
				return 0, 0, false, err
			}
			scores = append(scores, pairScore{score, id, res.Detail.ID, idx})
		}
	}
	if len(scores) == 0 {
		return 0, 0, false, nil
	}

	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if math.Abs(a.score-b.score) >= scoreEpsilon {
			return a.score > b.score
		}
		if a.driverID != b.driverID {
			return a.driverID > b.driverID
		}
		return a.reservationID < b.reservationID
	})
	best := scores[0]
	e.log.Debug("matched pair", "driver", best.driverID, "reservation", best.reservationID, "score", best.score)
	return best.driverID, best.poolIdx, true, nil
}

// scorePair rewards drivers that free up close to when the reservation was
// made, reservations that have waited long, and drivers near the pickup.
// The driver id is a deterministic tie-break.
func (e *Engine) scorePair(ctx context.Context, driver estimate.DriverEstimations, res PoolReservation) (float64, error) {
	loc, online, err := e.locations.DriverLocation(ctx, driver.ID)
	if err != nil {
		return 0, err
	}
	if !online {
		return 0, estimate.ErrNoDriverLocation
	}
	if len(res.Detail.Stops) == 0 {
		return 0, ErrNoStops
	}

	now := e.now().Unix()
	madeAt := res.MadeAt.Unix()

	availableAt := now + int64(driver.Duration())
	timeDifference := float64(absInt64(madeAt - availableAt))
	timeDifferenceScore := math.Max(0, maxTimeDifferenceScore-timeDifference)

	waiting := float64(max(now-madeAt, 0))
	waitingTimeScore := math.Min(maxWaitingTimeScore, maxWaitingTimeScore*math.Log(1+waiting)/math.Ln2)

	distanceKm := loc.DistanceKm(res.Detail.Stops[0].Location.Coords)
	proximityScore := math.Max(0, maxProximityScore-proximityPenaltyPerKm*distanceKm)

	return timeDifferenceScore + waitingTimeScore + proximityScore + float64(driver.ID), nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
