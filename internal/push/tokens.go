// README: Device token lookup backed by the users table.
package push

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TokenStore struct {
	db *pgxpool.Pool
}

func NewTokenStore(db *pgxpool.Pool) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) DeviceToken(ctx context.Context, phone string) (string, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT device_token
		FROM users
		WHERE phone = $1`, phone,
	)
	var token sql.NullString
	err := row.Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !token.Valid || token.String == "" {
		return "", false, nil
	}
	return token.String, true, nil
}
