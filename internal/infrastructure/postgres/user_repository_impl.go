package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopease/auth-service/internal/domain/entity"
	"github.com/shopease/auth-service/internal/domain/repository"
)

const userColumns = `id, username, email, phone, firstname, lastname, password_hash,
	role, profile_picture, addresses, reset_token, reset_token_expires,
	last_login, created_at, updated_at`

// UserRepository persists users in a single Postgres row per account.
// Addresses live in a JSONB column so address mutations are one atomic
// row update, mirroring a document-store subrecord.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	u := &entity.User{}
	var addrs []byte
	var resetToken *string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.Firstname,
		&u.Lastname, &u.PasswordHash, &u.Role, &u.ProfilePicture, &addrs,
		&resetToken, &u.ResetTokenExpiry, &u.LastLogin, &u.CreatedAt,
		&u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if resetToken != nil {
		u.ResetToken = *resetToken
	}
	if len(addrs) > 0 {
		if err := json.Unmarshal(addrs, &u.Addresses); err != nil {
			return nil, fmt.Errorf("decode addresses: %w", err)
		}
	}
	return u, nil
}

func marshalAddresses(addrs []entity.Address) ([]byte, error) {
	if addrs == nil {
		addrs = []entity.Address{}
	}
	return json.Marshal(addrs)
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	addrs, err := marshalAddresses(u.Addresses)
	if err != nil {
		return err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, phone, firstname, lastname, password_hash, role, profile_picture, addresses)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, u.Username, u.Email, u.Phone, u.Firstname, u.Lastname, u.PasswordHash,
		u.Role, u.ProfilePicture, addrs)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return &repository.ConflictError{Field: field}
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindConflict reports which unique field is already taken by another user.
func (r *UserRepository) FindConflict(ctx context.Context, username, email, phone, excludeID string) (string, error) {
	var field string
	err := r.pool.QueryRow(ctx, `
		SELECT CASE
			WHEN email = $2 THEN 'email'
			WHEN username = $1 THEN 'username'
			ELSE 'phone'
		END
		FROM users
		WHERE (username = $1 OR email = $2 OR phone = $3)
		  AND ($4 = '' OR id::text <> $4)
		LIMIT 1
	`, username, email, phone, excludeID).Scan(&field)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return field, nil
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	addrs, err := marshalAddresses(u.Addresses)
	if err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET firstname = $1, lastname = $2, phone = $3, profile_picture = $4,
		    addresses = $5, updated_at = $6
		WHERE id = $7
	`, u.Firstname, u.Lastname, u.Phone, u.ProfilePicture, addrs, u.UpdatedAt, u.ID)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return &repository.ConflictError{Field: field}
		}
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2
	`, passwordHash, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE users SET last_login = $1 WHERE id = $2
	`, at, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetResetToken(ctx context.Context, id, token string, expiry time.Time) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET reset_token = $1, reset_token_expires = $2, updated_at = now()
		WHERE id = $3
	`, token, expiry, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ConsumeResetToken matches token and expiry in a single conditional UPDATE
// so the lookup, the expiry check, the password write and the token clear are
// one atomic step. Unknown and expired tokens are indistinguishable.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, token, passwordHash string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $1, reset_token = NULL, reset_token_expires = NULL,
		    updated_at = now()
		WHERE reset_token = $2 AND reset_token_expires > now()
		RETURNING `+userColumns+`
	`, passwordHash, token)
	return scanUser(row)
}

// MutateAddresses applies fn to the address list under a row lock.
func (r *UserRepository) MutateAddresses(ctx context.Context, id string, fn func([]entity.Address) ([]entity.Address, error)) (*entity.User, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	next, err := fn(u.Addresses)
	if err != nil {
		return nil, err
	}
	addrs, err := marshalAddresses(next)
	if err != nil {
		return nil, err
	}
	u.Addresses = next
	u.UpdatedAt = time.Now()

	if _, err := tx.Exec(ctx, `
		UPDATE users SET addresses = $1, updated_at = $2 WHERE id = $3
	`, addrs, u.UpdatedAt, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

// uniqueViolationField maps a Postgres unique-violation error to the user
// field covered by the violated constraint.
func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch pgErr.ConstraintName {
	case "users_username_key":
		return "username", true
	case "users_email_key":
		return "email", true
	case "users_phone_key":
		return "phone", true
	}
	return "", false
}

var _ repository.UserRepository = (*UserRepository)(nil)
