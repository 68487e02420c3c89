package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ncc/internal/identity/models"
	id "ncc/pkg/domain"
	"ncc/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists accounts in the accounts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, account *models.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, string(account.ID), account.Email, account.Name, account.PasswordHash, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("create account: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM accounts WHERE id = $1
	`, string(userID))
	return scanAccount(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM accounts WHERE lower(email) = lower($1)
	`, email)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	var rawID string
	err := row.Scan(&rawID, &account.Email, &account.Name, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	account.ID = id.UserID(rawID)
	return &account, nil
}
