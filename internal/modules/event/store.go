// README: Event store backed by PostgreSQL.
package event

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"shuttle/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const eventColumns = `
	id, name, bio, image_url,
	time_start, time_end, reservations_start, reservations_end,
	id_property, id_org, published_at`

func (s *Store) Get(ctx context.Context, id types.EventID) (*Event, error) {
	row := s.db.QueryRow(ctx, `
		SELECT`+eventColumns+`
		FROM events
		WHERE id = $1 AND obsolete_at IS NULL`, string(id),
	)
	return scanEvent(row)
}

// ListActive returns published events whose running window contains now.
func (s *Store) ListActive(ctx context.Context) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+eventColumns+`
		FROM events
		WHERE time_start <= $1
		  AND time_end > $1
		  AND obsolete_at IS NULL
		  AND published_at IS NOT NULL`, time.Now(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListActiveEventIDs feeds the background estimate refresher.
func (s *Store) ListActiveEventIDs(ctx context.Context) ([]types.EventID, error) {
	events, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]types.EventID, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// Property returns the venue of an event, or nil when none is assigned.
func (s *Store) Property(ctx context.Context, id types.EventID) (*Property, error) {
	row := s.db.QueryRow(ctx, `
		SELECT p.id, p.label, p.location_lat, p.location_lng, p.image_url
		FROM events e
		JOIN properties p ON p.id = e.id_property
		WHERE e.id = $1`, string(id),
	)

	var p Property
	err := row.Scan(&p.ID, &p.Label, &p.Location.Lat, &p.Location.Lng, &p.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// EventPropertyLocation adapts Property for callers that only need
// coordinates.
func (s *Store) EventPropertyLocation(ctx context.Context, id types.EventID) (types.LatLng, bool, error) {
	p, err := s.Property(ctx, id)
	if err != nil {
		return types.LatLng{}, false, err
	}
	if p == nil {
		return types.LatLng{}, false, nil
	}
	return p.Location, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var bio, imageURL, propertyID sql.NullString
	var publishedAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.Name, &bio, &imageURL,
		&e.TimeStart, &e.TimeEnd, &e.ReservationsStart, &e.ReservationsEnd,
		&propertyID, &e.OrgID, &publishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if bio.Valid {
		e.Bio = &bio.String
	}
	if imageURL.Valid {
		e.ImageURL = &imageURL.String
	}
	if propertyID.Valid {
		e.PropertyID = &propertyID.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		e.PublishedAt = &t
	}
	return &e, nil
}
