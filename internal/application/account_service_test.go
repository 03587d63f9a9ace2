package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopease/auth-service/config"
	"github.com/shopease/auth-service/internal/domain/entity"
	repo "github.com/shopease/auth-service/internal/domain/repository"
	"github.com/shopease/auth-service/pkg/helpers"
)

// fakeRepo is an in-memory UserRepository with the same conflict and
// reset-token semantics as the Postgres implementation.
type fakeRepo struct {
	mu     sync.Mutex
	users  map[string]*entity.User
	nextID int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[string]*entity.User{}}
}

func (f *fakeRepo) clone(u *entity.User) *entity.User {
	cp := *u
	cp.Addresses = append([]entity.Address(nil), u.Addresses...)
	return &cp
}

func (f *fakeRepo) Create(ctx context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.users {
		switch {
		case e.Email == u.Email:
			return &repo.ConflictError{Field: "email"}
		case e.Username == u.Username:
			return &repo.ConflictError{Field: "username"}
		case e.Phone == u.Phone:
			return &repo.ConflictError{Field: "phone"}
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = f.clone(u)
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return f.clone(u), nil
}

func (f *fakeRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return f.clone(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeRepo) FindConflict(ctx context.Context, username, email, phone, excludeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if excludeID != "" && id == excludeID {
			continue
		}
		if email != "" && u.Email == email {
			return "email", nil
		}
		if username != "" && u.Username == username {
			return "username", nil
		}
		if phone != "" && u.Phone == phone {
			return "phone", nil
		}
	}
	return "", nil
}

func (f *fakeRepo) Update(ctx context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return repo.ErrNotFound
	}
	u.UpdatedAt = time.Now()
	f.users[u.ID] = f.clone(u)
	return nil
}

func (f *fakeRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeRepo) RecordLogin(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

func (f *fakeRepo) SetResetToken(ctx context.Context, id, token string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.ResetToken = token
	u.ResetTokenExpiry = &expiry
	return nil
}

func (f *fakeRepo) ConsumeResetToken(ctx context.Context, token, passwordHash string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ResetToken == token && token != "" &&
			u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(time.Now()) {
			u.PasswordHash = passwordHash
			u.ResetToken = ""
			u.ResetTokenExpiry = nil
			return f.clone(u), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeRepo) MutateAddresses(ctx context.Context, id string, fn func([]entity.Address) ([]entity.Address, error)) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	next, err := fn(append([]entity.Address(nil), u.Addresses...))
	if err != nil {
		return nil, err
	}
	u.Addresses = next
	u.UpdatedAt = time.Now()
	return f.clone(u), nil
}

var _ repo.UserRepository = (*fakeRepo)(nil)

func testConfig() *config.Config {
	return &config.Config{
		AppName:        "shopease-auth",
		ResetTokenTTL:  time.Hour,
		DefaultCountry: "Nigeria",
	}
}

func newTestService(f *fakeRepo) *Service {
	return NewService(f, helpers.NewJWTManager("test-secret", time.Hour), testConfig(), nil, nil, nil, nil, nil)
}

func register(t *testing.T, s *Service, email string) *entity.User {
	t.Helper()
	u, err := s.Register(context.Background(), RegisterInput{
		Username:  "user" + email[:1],
		Email:     email,
		Password:  "password123",
		Firstname: "Ada",
		Lastname:  "Obi",
		Phone:     fmt.Sprintf("0800%s000000", email[:1])[:11],
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return u
}

func TestRegisterAssignsDefaults(t *testing.T) {
	s := newTestService(newFakeRepo())
	u := register(t, s, "a@example.com")

	if u.Role != entity.RoleUser {
		t.Fatalf("role = %q, want user", u.Role)
	}
	if u.ProfilePicture != entity.DefaultProfilePicture {
		t.Fatalf("profile picture = %q", u.ProfilePicture)
	}
	if u.PasswordHash == "password123" {
		t.Fatal("password stored in plaintext")
	}
	if u.ID == "" {
		t.Fatal("no id assigned")
	}
}

func TestRegisterConflicts(t *testing.T) {
	s := newTestService(newFakeRepo())
	register(t, s, "a@example.com")

	_, err := s.Register(context.Background(), RegisterInput{
		Username:  "other",
		Email:     "a@example.com",
		Password:  "password123",
		Firstname: "Ada",
		Lastname:  "Obi",
		Phone:     "08011111111",
	})
	var conflict *repo.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	s := newTestService(newFakeRepo())
	register(t, s, "a@example.com")

	u, token, exp, err := s.Login(context.Background(), "a@example.com", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token == "" {
		t.Fatal("no token issued")
	}
	if u.LastLogin == nil {
		t.Fatal("last login not recorded")
	}
	if time.Until(exp) < 59*time.Minute {
		t.Fatalf("token expiry too soon: %v", exp)
	}

	claims, err := s.JWT.Parse(token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.UserID != u.ID {
		t.Fatalf("token uid = %q, want %q", claims.UserID, u.ID)
	}
}

func TestLoginUniformFailure(t *testing.T) {
	s := newTestService(newFakeRepo())
	register(t, s, "a@example.com")

	_, _, _, errUnknown := s.Login(context.Background(), "nobody@example.com", "password123")
	_, _, _, errWrongPw := s.Login(context.Background(), "a@example.com", "wrongpassword")

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatal("failure messages differ between unknown email and wrong password")
	}
}

func TestForgotPasswordUnknownEmailSucceeds(t *testing.T) {
	s := newTestService(newFakeRepo())
	if err := s.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFakeRepo()
	s := newTestService(f)
	u := register(t, s, "a@example.com")

	if err := s.ForgotPassword(context.Background(), "a@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	stored, _ := f.GetByID(context.Background(), u.ID)
	if stored.ResetToken == "" || stored.ResetTokenExpiry == nil {
		t.Fatal("reset token not stored")
	}

	if err := s.ResetPassword(context.Background(), stored.ResetToken, "newpassword456"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Old password no longer works, new one does.
	if _, _, _, err := s.Login(context.Background(), "a@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, _, _, err := s.Login(context.Background(), "a@example.com", "newpassword456"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	// Token is single use.
	if err := s.ResetPassword(context.Background(), stored.ResetToken, "another789"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("consumed token replayed: %v", err)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	f := newFakeRepo()
	s := newTestService(f)
	u := register(t, s, "a@example.com")

	past := time.Now().Add(-time.Minute)
	if err := f.SetResetToken(context.Background(), u.ID, "expiredtoken", past); err != nil {
		t.Fatalf("SetResetToken: %v", err)
	}
	if err := s.ResetPassword(context.Background(), "expiredtoken", "newpassword456"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	s := newTestService(newFakeRepo())
	u := register(t, s, "a@example.com")

	if err := s.ChangePassword(context.Background(), u.ID, "wrongpassword", "newpassword456"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if err := s.ChangePassword(context.Background(), u.ID, "password123", "newpassword456"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, _, _, err := s.Login(context.Background(), "a@example.com", "newpassword456"); err != nil {
		t.Fatalf("new password rejected after change: %v", err)
	}
}

func TestUpdateProfileWhitelist(t *testing.T) {
	s := newTestService(newFakeRepo())
	u := register(t, s, "a@example.com")

	first := "Grace"
	updated, err := s.UpdateProfile(context.Background(), u.ID, UpdateProfileInput{Firstname: &first})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.Firstname != "Grace" {
		t.Fatalf("firstname = %q", updated.Firstname)
	}
	if updated.Lastname != "Obi" || updated.Email != "a@example.com" {
		t.Fatal("untouched fields changed")
	}
}

func TestUpdateProfilePhoneConflict(t *testing.T) {
	s := newTestService(newFakeRepo())
	register(t, s, "a@example.com")
	b := register(t, s, "b@example.com")

	taken := "0800a000000"
	_, err := s.UpdateProfile(context.Background(), b.ID, UpdateProfileInput{Phone: &taken})
	var conflict *repo.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "phone" {
		t.Fatalf("expected phone conflict, got %v", err)
	}

	// Re-submitting your own phone is not a conflict.
	own := b.Phone
	if _, err := s.UpdateProfile(context.Background(), b.ID, UpdateProfileInput{Phone: &own}); err != nil {
		t.Fatalf("own phone rejected: %v", err)
	}
}

func TestAddressLifecycle(t *testing.T) {
	s := newTestService(newFakeRepo())
	u := register(t, s, "a@example.com")
	ctx := context.Background()

	// First address is forced default and inherits the configured country.
	_, first, err := s.AddAddress(ctx, u.ID, AddressInput{
		Street: "1 Main St", City: "Lagos", State: "LA", PostalCode: "100001",
	})
	if err != nil {
		t.Fatalf("AddAddress failed: %v", err)
	}
	if !first.IsDefault {
		t.Fatal("first address should be default")
	}
	if first.Country != "Nigeria" {
		t.Fatalf("country fallback = %q", first.Country)
	}

	// Adding a new default demotes the old one.
	after, second, err := s.AddAddress(ctx, u.ID, AddressInput{
		Street: "2 Side St", City: "Abuja", State: "FC", PostalCode: "900001",
		Country: "Ghana", IsDefault: true,
	})
	if err != nil {
		t.Fatalf("AddAddress failed: %v", err)
	}
	if !second.IsDefault {
		t.Fatal("second address should be default")
	}
	def, ok := entity.DefaultAddress(after.Addresses)
	if !ok || def.ID != second.ID {
		t.Fatalf("default = %+v", def)
	}

	// Update a field without touching the default flag.
	newCity := "Ibadan"
	_, updated, err := s.UpdateAddress(ctx, u.ID, first.ID, UpdateAddressInput{City: &newCity})
	if err != nil {
		t.Fatalf("UpdateAddress failed: %v", err)
	}
	if updated.City != "Ibadan" || updated.IsDefault {
		t.Fatalf("updated = %+v", updated)
	}

	// Deleting the default promotes the survivor.
	final, err := s.DeleteAddress(ctx, u.ID, second.ID)
	if err != nil {
		t.Fatalf("DeleteAddress failed: %v", err)
	}
	if len(final.Addresses) != 1 || !final.Addresses[0].IsDefault {
		t.Fatalf("expected one default survivor, got %+v", final.Addresses)
	}
}

func TestAddressNotFound(t *testing.T) {
	s := newTestService(newFakeRepo())
	u := register(t, s, "a@example.com")
	ctx := context.Background()

	if _, _, err := s.UpdateAddress(ctx, u.ID, "missing", UpdateAddressInput{}); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("update: expected ErrAddressNotFound, got %v", err)
	}
	if _, err := s.DeleteAddress(ctx, u.ID, "missing"); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("delete: expected ErrAddressNotFound, got %v", err)
	}
	if _, err := s.DeleteAddress(ctx, "missing-user", "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: expected ErrUserNotFound, got %v", err)
	}
}

func TestGetProfileSanitized(t *testing.T) {
	s := newTestService(newFakeRepo())
	u := register(t, s, "a@example.com")

	pub, err := s.GetProfile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if pub.Email != "a@example.com" || pub.ID != u.ID {
		t.Fatalf("profile = %+v", pub)
	}
	if _, err := s.GetProfile(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
