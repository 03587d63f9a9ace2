package entity

import (
	"time"
)

// Role is the authorization tier of an account.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// DefaultProfilePicture is the placeholder assigned at registration.
const DefaultProfilePicture = "default.jpg"

// User is the aggregate root for the account domain.
// PasswordHash holds a bcrypt digest, never the plaintext. The reset token
// fields are only populated while a password reset is pending.
type User struct {
	ID               string
	Username         string
	Email            string
	Phone            string
	Firstname        string
	Lastname         string
	PasswordHash     string
	Role             Role
	ProfilePicture   string
	Addresses        []Address
	ResetToken       string
	ResetTokenExpiry *time.Time
	LastLogin        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FullName returns "Firstname Lastname".
func (u *User) FullName() string {
	return u.Firstname + " " + u.Lastname
}

// Address is owned by exactly one user; it has no identity outside the
// owning user's address list.
type Address struct {
	ID         string `json:"id"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"isDefault"`
}

// PublicUser is the externally visible representation of a User. It carries
// no secret-derived fields; building responses from it keeps the password
// hash and reset token out of every payload.
type PublicUser struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	Firstname      string     `json:"firstname"`
	Lastname       string     `json:"lastname"`
	Role           Role       `json:"role"`
	ProfilePicture string     `json:"profilePicture"`
	Addresses      []Address  `json:"addresses"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Public strips the credential and reset-token fields.
func (u *User) Public() PublicUser {
	addrs := u.Addresses
	if addrs == nil {
		addrs = []Address{}
	}
	return PublicUser{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Phone:          u.Phone,
		Firstname:      u.Firstname,
		Lastname:       u.Lastname,
		Role:           u.Role,
		ProfilePicture: u.ProfilePicture,
		Addresses:      addrs,
		LastLogin:      u.LastLogin,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// NormalizeDefault enforces the single-default invariant on an address list:
// a non-empty list has exactly one default entry. The first flagged entry
// wins; if none is flagged the first entry becomes default.
func NormalizeDefault(addrs []Address) []Address {
	if len(addrs) == 0 {
		return addrs
	}
	seen := false
	for i := range addrs {
		if addrs[i].IsDefault {
			if seen {
				addrs[i].IsDefault = false
				continue
			}
			seen = true
		}
	}
	if !seen {
		addrs[0].IsDefault = true
	}
	return addrs
}

// DefaultAddress returns the default entry, if any.
func DefaultAddress(addrs []Address) (Address, bool) {
	for _, a := range addrs {
		if a.IsDefault {
			return a, true
		}
	}
	return Address{}, false
}
