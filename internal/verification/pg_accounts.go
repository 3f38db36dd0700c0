package verification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgAccountStore flips users.is_email_verified.
type PgAccountStore struct {
	db execer
}

func NewPgAccountStore(db execer) *PgAccountStore {
	return &PgAccountStore{db: db}
}

func (s *PgAccountStore) MarkEmailVerified(ctx context.Context, email string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET is_email_verified = true,
		    updated_at = now()
		WHERE lower(email) = $1
	`, email)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
