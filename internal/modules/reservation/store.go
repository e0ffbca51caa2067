// README: Reservation store backed by PostgreSQL.
package reservation

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

func (s *Store) Create(ctx context.Context, r *Reservation) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO reservations (
			id, id_event, made_at, reserver,
			passenger_count, initial_passenger_count, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(r.ID),
		string(r.EventID),
		r.MadeAt,
		r.Reserver,
		r.Passengers,
		r.InitialPassengers,
		string(r.Status),
	)
	if err != nil {
		return err
	}

	for _, stop := range r.Stops {
		_, err = tx.Exec(ctx, `
			INSERT INTO reservation_stops (
				id, id_reservation, stop_order, is_event_location,
				lat, lng, address_main, address_sub, place_id, eta
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			string(stop.ID),
			string(r.ID),
			stop.Order,
			stop.IsEventLocation,
			stop.Location.Lat, stop.Location.Lng,
			stop.Address.Main, stop.Address.Sub,
			stop.PlaceID,
			stop.ETA,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id types.ReservationID) (*Reservation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, id_event, made_at, reserver,
		       passenger_count, initial_passenger_count, status,
		       id_driver, driver_assigned_at, cancelled_at, complete_at, cancel_reason
		FROM reservations
		WHERE id = $1`, string(id),
	)
	r, err := scanReservation(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadStops(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ListPool returns the unassigned waiting reservations of an event, oldest
// first. These are the candidates the matching engine works through.
func (s *Store) ListPool(ctx context.Context, eventID types.EventID) ([]*Reservation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, id_event, made_at, reserver,
		       passenger_count, initial_passenger_count, status,
		       id_driver, driver_assigned_at, cancelled_at, complete_at, cancel_reason
		FROM reservations
		WHERE id_event = $1
		  AND id_driver IS NULL
		  AND status = $2
		ORDER BY made_at ASC`, string(eventID), string(StatusWaiting),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, r := range out {
		if err := s.loadStops(ctx, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AssignDriver claims the reservation for a driver. The claim only succeeds
// when no driver holds it yet, so two drivers accepting concurrently cannot
// both win.
func (s *Store) AssignDriver(ctx context.Context, id types.ReservationID, driverID types.DriverID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reservations
		SET id_driver = $2,
		    driver_assigned_at = NOW(),
		    status = $3
		WHERE id = $1 AND id_driver IS NULL AND status = $4`,
		string(id), int(driverID), string(StatusActive), string(StatusWaiting),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveDriver releases the reservation back into the pool.
func (s *Store) RemoveDriver(ctx context.Context, id types.ReservationID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reservations
		SET id_driver = NULL,
		    driver_assigned_at = NULL,
		    status = $2
		WHERE id = $1 AND status = $3`,
		string(id), string(StatusWaiting), string(StatusActive),
	)
	return err
}

func (s *Store) MarkStopArrived(ctx context.Context, stopID types.StopID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reservation_stops
		SET arrived_at = NOW()
		WHERE id = $1 AND arrived_at IS NULL`, string(stopID),
	)
	return err
}

func (s *Store) MarkStopComplete(ctx context.Context, stopID types.StopID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reservation_stops
		SET complete_at = NOW()
		WHERE id = $1 AND complete_at IS NULL`, string(stopID),
	)
	return err
}

func (s *Store) MarkComplete(ctx context.Context, id types.ReservationID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reservations
		SET status = $2, complete_at = NOW()
		WHERE id = $1`, string(id), string(StatusComplete),
	)
	return err
}

func (s *Store) Cancel(ctx context.Context, id types.ReservationID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reservations
		SET status = $2, cancelled_at = NOW()
		WHERE id = $1 AND cancelled_at IS NULL`, string(id), string(StatusCancelled),
	)
	return err
}

func (s *Store) SetCancelReason(ctx context.Context, id types.ReservationID, reason int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reservations
		SET cancel_reason = $2, cancel_reason_at = NOW()
		WHERE id = $1`, string(id), reason,
	)
	return err
}

func (s *Store) loadStops(ctx context.Context, r *Reservation) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, stop_order, is_event_location,
		       lat, lng, address_main, address_sub, place_id, eta,
		       arrived_at, complete_at
		FROM reservation_stops
		WHERE id_reservation = $1
		ORDER BY stop_order ASC`, string(r.ID),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var stop Stop
		var placeID sql.NullString
		var arrivedAt, completeAt sql.NullTime

		err := rows.Scan(
			&stop.ID, &stop.Order, &stop.IsEventLocation,
			&stop.Location.Lat, &stop.Location.Lng,
			&stop.Address.Main, &stop.Address.Sub,
			&placeID, &stop.ETA,
			&arrivedAt, &completeAt,
		)
		if err != nil {
			return err
		}
		if placeID.Valid {
			stop.PlaceID = &placeID.String
		}
		stop.ArrivedAt = toTimePtr(arrivedAt)
		stop.CompleteAt = toTimePtr(completeAt)
		r.Stops = append(r.Stops, stop)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*Reservation, error) {
	var r Reservation
	var driverID sql.NullInt64
	var driverAssignedAt, cancelledAt, completeAt sql.NullTime
	var cancelReason sql.NullInt64

	err := row.Scan(
		&r.ID, &r.EventID, &r.MadeAt, &r.Reserver,
		&r.Passengers, &r.InitialPassengers, &r.Status,
		&driverID, &driverAssignedAt, &cancelledAt, &completeAt, &cancelReason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		d := types.DriverID(driverID.Int64)
		r.DriverID = &d
	}
	if cancelReason.Valid {
		v := int(cancelReason.Int64)
		r.CancelReason = &v
	}
	r.DriverAssignedAt = toTimePtr(driverAssignedAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	r.CompleteAt = toTimePtr(completeAt)
	return &r, nil
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
