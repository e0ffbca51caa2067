// README: Tests for the campus mock geocoder.
package maps

import (
	"context"
	"errors"
	"testing"
	"time"

	"shuttle/internal/types"
)

func TestMockEstimate_Symmetric(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	forward, err := m.Estimate(ctx, TigerBlvd.Location, BenetHall.Location)
	if err != nil {
		t.Fatal(err)
	}
	back, err := m.Estimate(ctx, BenetHall.Location, TigerBlvd.Location)
	if err != nil {
		t.Fatal(err)
	}
	if forward != 10*time.Minute || back != forward {
		t.Errorf("Tiger<->Benet = %v/%v, want 10m both ways", forward, back)
	}
}

func TestMockEstimate_ToleratesRoundTrippedCoords(t *testing.T) {
	m := NewMock()
	nudged := types.LatLng{Lat: CSP.Location.Lat + 1e-6, Lng: CSP.Location.Lng - 1e-6}
	d, err := m.Estimate(context.Background(), nudged, Douthit.Location)
	if err != nil {
		t.Fatal(err)
	}
	if d != 4*time.Minute {
		t.Errorf("CSP->Douthit = %v, want 4m", d)
	}
}

func TestMockEstimate_UnknownLeg(t *testing.T) {
	m := NewMock()
	_, err := m.Estimate(context.Background(), types.LatLng{Lat: 0, Lng: 0}, CSP.Location)
	if !errors.Is(err, ErrUnknownLegs) {
		t.Errorf("err = %v, want ErrUnknownLegs", err)
	}
}

func TestMockResolveAddress(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	byID, err := m.ResolveAddress(ctx, types.LatLng{}, "Douthit")
	if err != nil {
		t.Fatal(err)
	}
	if byID.Main != "Douthit" || byID.Sub != "MOCK" {
		t.Errorf("address by id = %+v", byID)
	}

	byLoc, err := m.ResolveAddress(ctx, BenetHall.Location, "")
	if err != nil {
		t.Fatal(err)
	}
	if byLoc.Main != "Benet Hall" {
		t.Errorf("address by location = %+v", byLoc)
	}

	if _, err := m.ResolveAddress(ctx, types.LatLng{}, "nowhere"); !errors.Is(err, ErrUnknownPlace) {
		t.Errorf("err = %v, want ErrUnknownPlace", err)
	}
}
