// README: Driver and vehicle store backed by PostgreSQL.
package driver

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"shuttle/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.DriverID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, phone, id_event, id_vehicle
		FROM event_drivers
		WHERE id = $1 AND obsolete_at IS NULL`, int(id),
	)
	return scanDriver(row)
}

// Find resolves a driver from the event they drive for and their phone.
func (s *Store) Find(ctx context.Context, eventID types.EventID, phone string) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, phone, id_event, id_vehicle
		FROM event_drivers
		WHERE id_event = $1 AND phone = $2 AND obsolete_at IS NULL`,
		string(eventID), phone,
	)
	return scanDriver(row)
}

func (s *Store) ListByEvent(ctx context.Context, eventID types.EventID) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, phone, id_event, id_vehicle
		FROM event_drivers
		WHERE id_event = $1 AND obsolete_at IS NULL
		ORDER BY id ASC`, string(eventID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) Vehicle(ctx context.Context, id string) (*Vehicle, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, year, make, model, color, license, capacity
		FROM vehicles
		WHERE id = $1 AND obsolete_at IS NULL`, id,
	)

	var v Vehicle
	err := row.Scan(&v.ID, &v.Year, &v.Make, &v.Model, &v.Color, &v.License, &v.Capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoVehicle
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*Driver, error) {
	var d Driver
	var vehicleID sql.NullString

	err := row.Scan(&d.ID, &d.Phone, &d.EventID, &vehicleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if vehicleID.Valid {
		d.VehicleID = &vehicleID.String
	}
	return &d, nil
}
