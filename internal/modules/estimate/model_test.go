// README: Tests for ETA projections onto reservations.
package estimate

import (
	"errors"
	"testing"

	"shuttle/internal/modules/strategy"
	"shuttle/internal/types"
)

func resStop(id types.ReservationID, stopID types.StopID, eta int) StopEstimation {
	return StopEstimation{
		Stop: strategy.Stop{Kind: strategy.KindReservation, ReservationID: id, StopID: stopID},
		ETA:  eta,
	}
}

func marker(eta int) StopEstimation {
	return StopEstimation{Stop: strategy.NewEventStop(), ETA: eta}
}

func TestQueuePosition(t *testing.T) {
	destStop := resStop("res-a", "a-s0", 600)
	d := DriverEstimations{
		ID:       7,
		Dest:     &destStop,
		Queue:    []StopEstimation{marker(900), resStop("res-b", "b-s0", 1140), marker(1380)},
		PickedUp: map[types.ReservationID]int{},
	}

	if pos, err := d.QueuePosition("res-a"); err != nil || pos != 0 {
		t.Errorf("res-a position = %d, %v; want 0, nil", pos, err)
	}
	if pos, err := d.QueuePosition("res-b"); err != nil || pos != 1 {
		t.Errorf("res-b position = %d, %v; want 1, nil", pos, err)
	}
	if _, err := d.QueuePosition("res-x"); !errors.Is(err, ErrReservationNotInStrategy) {
		t.Errorf("err = %v, want ErrReservationNotInStrategy", err)
	}
}

func TestQueuePosition_BoardedIsZero(t *testing.T) {
	d := DriverEstimations{
		ID:       7,
		Queue:    []StopEstimation{},
		PickedUp: map[types.ReservationID]int{"res-a": 2},
	}
	if pos, err := d.QueuePosition("res-a"); err != nil || pos != 0 {
		t.Errorf("boarded reservation position = %d, %v; want 0, nil", pos, err)
	}
}

func TestEstimateReservation_PickupLeg(t *testing.T) {
	destStop := resStop("res-a", "a-s0", 600)
	d := DriverEstimations{
		ID:       7,
		Dest:     &destStop,
		Queue:    []StopEstimation{marker(900)},
		PickedUp: map[types.ReservationID]int{},
	}

	view := ReservationView{
		ID:         "res-a",
		Passengers: 1,
		Stops: []ReservationStopView{
			{StopID: "a-s0"},
			{IsEventLocation: true},
		},
	}
	est, err := d.EstimateReservation(view)
	if err != nil {
		t.Fatal(err)
	}
	if len(est.StopETAs) != 2 {
		t.Fatalf("got %d stop ETAs, want 2", len(est.StopETAs))
	}
	if est.StopETAs[0].ETA != 600 {
		t.Errorf("pickup ETA = %d, want 600", est.StopETAs[0].ETA)
	}
	// The event stop borrows the marker after the reservation's own stops.
	if est.StopETAs[1].ETA != 900 {
		t.Errorf("event ETA = %d, want 900", est.StopETAs[1].ETA)
	}
	if est.QueuePosition != 0 {
		t.Errorf("queue position = %d, want 0", est.QueuePosition)
	}
}

func TestEstimateReservation_DropoffLegUsesPrecedingMarker(t *testing.T) {
	m := marker(600)
	d := DriverEstimations{
		ID:       7,
		Dest:     &m,
		Queue:    []StopEstimation{resStop("res-a", "a-s0", 840)},
		PickedUp: map[types.ReservationID]int{},
	}

	view := ReservationView{
		ID:         "res-a",
		Passengers: 1,
		Stops: []ReservationStopView{
			{IsEventLocation: true},
			{StopID: "a-s0"},
		},
	}
	est, err := d.EstimateReservation(view)
	if err != nil {
		t.Fatal(err)
	}
	if est.StopETAs[0].ETA != 600 {
		t.Errorf("event ETA = %d, want the marker before the dropoff (600)", est.StopETAs[0].ETA)
	}
	if est.StopETAs[1].ETA != 840 {
		t.Errorf("dropoff ETA = %d, want 840", est.StopETAs[1].ETA)
	}
}

func TestEstimateReservation_ServedStopIsZero(t *testing.T) {
	// The pickup was already completed; only the return marker remains.
	m := marker(300)
	d := DriverEstimations{
		ID:       7,
		Dest:     &m,
		Queue:    []StopEstimation{},
		PickedUp: map[types.ReservationID]int{"res-a": 1},
	}

	view := ReservationView{
		ID:         "res-a",
		Passengers: 1,
		Stops: []ReservationStopView{
			{StopID: "a-s0"},
			{IsEventLocation: true},
		},
	}
	est, err := d.EstimateReservation(view)
	if err != nil {
		t.Fatal(err)
	}
	if est.StopETAs[0].ETA != 0 {
		t.Errorf("served stop ETA = %d, want 0", est.StopETAs[0].ETA)
	}
	if est.StopETAs[1].ETA != 300 {
		t.Errorf("event ETA = %d, want 300", est.StopETAs[1].ETA)
	}
}

func TestSharingLocationWith(t *testing.T) {
	destStop := resStop("res-a", "a-s0", 600)
	d := DriverEstimations{
		ID:       7,
		Dest:     &destStop,
		Queue:    []StopEstimation{marker(900), resStop("res-b", "b-s0", 1140)},
		PickedUp: map[types.ReservationID]int{"res-c": 2},
	}

	got := map[types.ReservationID]bool{}
	for _, id := range d.SharingLocationWith() {
		got[id] = true
	}
	for _, want := range []types.ReservationID{"res-a", "res-b", "res-c"} {
		if !got[want] {
			t.Errorf("missing %s in sharing set %v", want, got)
		}
	}
	if len(got) != 3 {
		t.Errorf("sharing set has %d entries, want 3", len(got))
	}
}

func TestStripEstimates_RoundTrip(t *testing.T) {
	destStop := resStop("res-a", "a-s0", 600)
	d := DriverEstimations{
		ID:          7,
		EventID:     "ev",
		Dest:        &destStop,
		Queue:       []StopEstimation{marker(900)},
		PickedUp:    map[types.ReservationID]int{},
		MaxCapacity: 4,
	}
	plain := d.StripEstimates()
	if plain.Dest == nil || plain.Dest.StopID != "a-s0" {
		t.Errorf("dest lost in strip: %+v", plain.Dest)
	}
	if len(plain.Queue) != 1 || !plain.Queue[0].IsEvent() {
		t.Errorf("queue lost in strip: %+v", plain.Queue)
	}
	if plain.MaxCapacity != 4 {
		t.Errorf("capacity lost in strip: %d", plain.MaxCapacity)
	}
}
