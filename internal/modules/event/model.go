// README: Event aggregate and the property it shuttles riders to.
package event

import (
	"errors"
	"time"

	"shuttle/internal/types"
)

var (
	ErrNotFound = errors.New("event not found")
)

type Event struct {
	ID                types.EventID
	Name              string
	Bio               *string
	ImageURL          *string
	TimeStart         time.Time
	TimeEnd           time.Time
	ReservationsStart time.Time
	ReservationsEnd   time.Time
	PropertyID        *string
	OrgID             string
	PublishedAt       *time.Time
}

// Active reports whether the event is currently running and published.
func (e Event) Active(now time.Time) bool {
	return e.PublishedAt != nil && !e.TimeStart.After(now) && e.TimeEnd.After(now)
}

// ReservationsOpen reports whether the reservation window is open.
func (e Event) ReservationsOpen(now time.Time) bool {
	return !e.ReservationsStart.After(now) && e.ReservationsEnd.After(now)
}

// Property is the venue an event belongs to. Its location anchors every
// return-to-event itinerary stop.
type Property struct {
	ID       string
	Label    string
	Location types.LatLng
	ImageURL string
}
