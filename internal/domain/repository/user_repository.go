package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopease/auth-service/internal/domain/entity"
)

// ErrNotFound is returned by lookups that match no user record.
var ErrNotFound = errors.New("user not found")

// ConflictError reports a uniqueness violation on one of the globally unique
// user fields. Field is "username", "email" or "phone".
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return e.Field + " already in use"
}

// UserRepository is the credential-store contract. Every method that
// reads-then-writes a single user record must apply the change atomically
// against that record.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)

	// FindConflict reports which of username/email/phone is already taken
	// by another user (excluding excludeID, which may be empty). It returns
	// "username", "email", "phone", or "" when all three are free.
	FindConflict(ctx context.Context, username, email, phone, excludeID string) (string, error)

	Update(ctx context.Context, u *entity.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error

	// SetResetToken stores a pending reset token and its expiry on the user
	// record, replacing any previous pending token.
	SetResetToken(ctx context.Context, id, token string, expiry time.Time) error

	// ConsumeResetToken atomically matches a non-expired reset token, sets
	// the new password hash and clears both token fields. It returns
	// ErrNotFound when the token is unknown or expired; the two cases are
	// deliberately indistinguishable.
	ConsumeResetToken(ctx context.Context, token, passwordHash string) (*entity.User, error)

	// MutateAddresses applies fn to the user's address list under a row
	// lock so concurrent mutations of the same account cannot lose updates.
	// The list returned by fn replaces the stored one.
	MutateAddresses(ctx context.Context, id string, fn func([]entity.Address) ([]entity.Address, error)) (*entity.User, error)
}
