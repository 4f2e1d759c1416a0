package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a Postgres connection pool through the pgx driver and pings
// it. The caller must Close the returned DB.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Postgres is a Provider backed by the users table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a Provider using db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const selectUser = `SELECT id, username, password_hash, role, verification_status,
	COALESCE(totp_secret, ''), totp_enabled FROM users`

func (p *Postgres) GetByUsername(ctx context.Context, username string) (Record, error) {
	row := p.db.QueryRowContext(ctx, selectUser+` WHERE lower(username) = lower($1)`, strings.TrimSpace(username))
	return scanRecord(row)
}

func (p *Postgres) GetByID(ctx context.Context, id string) (Record, error) {
	row := p.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id)
	return scanRecord(row)
}

func (p *Postgres) Create(ctx context.Context, r Record) error {
	if r.Role == "" {
		r.Role = RolePatient
	}
	secret := sql.NullString{String: r.TOTPSecret, Valid: r.TOTPSecret != ""}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, verification_status, totp_secret, totp_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Username, r.PasswordHash, r.Role, r.VerificationStatus, secret, r.TOTPEnabled,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) SetTOTPSecret(ctx context.Context, id, secret string) error {
	return p.exec(ctx,
		`UPDATE users SET totp_secret = $2, totp_enabled = FALSE, updated_at = now() WHERE id = $1`,
		id, secret,
	)
}

func (p *Postgres) EnableTOTP(ctx context.Context, id string) error {
	return p.exec(ctx,
		`UPDATE users SET totp_enabled = (totp_secret IS NOT NULL), updated_at = now() WHERE id = $1`,
		id,
	)
}

func (p *Postgres) exec(ctx context.Context, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row *sql.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Username, &r.PasswordHash, &r.Role, &r.VerificationStatus, &r.TOTPSecret, &r.TOTPEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan user: %w", err)
	}
	return r, nil
}
