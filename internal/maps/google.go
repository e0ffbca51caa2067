// README: Google Maps backed geocoder: Directions for travel times, Places
// and reverse geocoding for addresses.
package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"shuttle/internal/types"
)

type Google struct {
	client *maps.Client
}

func NewGoogle(apiKey string) (*Google, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Google{client: client}, nil
}

// Estimate returns the driving duration between two coordinates.
func (g *Google) Estimate(ctx context.Context, from, to types.LatLng) (time.Duration, error) {
	r := &maps.DirectionsRequest{
		Origin:      formatLatLng(from),
		Destination: formatLatLng(to),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, ErrNoRoute
	}
	return routes[0].Legs[0].Duration, nil
}

// ResolveAddress turns a stop into a display address. A place id takes
// precedence; without one the coordinates are reverse geocoded.
func (g *Google) ResolveAddress(ctx context.Context, loc types.LatLng, placeID string) (types.Address, error) {
	if placeID != "" {
		details, err := g.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
			PlaceID: placeID,
			Fields:  []maps.PlaceDetailsFieldMask{maps.PlaceDetailsFieldMaskName, maps.PlaceDetailsFieldMaskFormattedAddress},
		})
		if err != nil {
			return types.Address{}, fmt.Errorf("place details error: %w", err)
		}
		return types.Address{Main: details.Name, Sub: details.FormattedAddress}, nil
	}

	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: loc.Lat, Lng: loc.Lng},
	})
	if err != nil {
		return types.Address{}, fmt.Errorf("reverse geocode error: %w", err)
	}
	if len(results) == 0 {
		return types.Address{}, ErrUnknownPlace
	}
	return types.Address{Main: results[0].FormattedAddress}, nil
}

func formatLatLng(l types.LatLng) string {
	return fmt.Sprintf("%f,%f", l.Lat, l.Lng)
}
