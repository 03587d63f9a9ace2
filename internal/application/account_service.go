package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/shopease/auth-service/config"
	"github.com/shopease/auth-service/internal/domain/entity"
	repo "github.com/shopease/auth-service/internal/domain/repository"
	"github.com/shopease/auth-service/pkg/helpers"
	"github.com/shopease/auth-service/pkg/mailer"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// login failures cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrAddressNotFound    = errors.New("address not found")
	// ErrResetTokenInvalid covers both unknown and expired reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	ErrWrongPassword     = errors.New("current password is incorrect")
)

// Service composes the credential store, password hasher, token issuer and
// reset-token handling into the account use cases.
type Service struct {
	Repo   repo.UserRepository
	JWT    *helpers.JWTManager
	Cfg    *config.Config
	Redis  *redis.Client
	Logger *logrus.Logger
	Pub    *helpers.RabbitPublisher
	GCS    *storage.Client
	ES     *elasticsearch.Client
}

func NewService(r repo.UserRepository, jwt *helpers.JWTManager, cfg *config.Config, rdb *redis.Client, logger *logrus.Logger, pub *helpers.RabbitPublisher, gcs *storage.Client, es *elasticsearch.Client) *Service {
	return &Service{Repo: r, JWT: jwt, Cfg: cfg, Redis: rdb, Logger: logger, Pub: pub, GCS: gcs, ES: es}
}

func profileKey(userID string) string {
	return "user:profile:" + userID
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Firstname string
	Lastname  string
	Phone     string
}

// Register creates a new account with a hashed secret. The username, email
// and phone must each be globally unique; the returned error names the
// colliding field.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	field, err := s.Repo.FindConflict(ctx, in.Username, in.Email, in.Phone, "")
	if err != nil {
		return nil, err
	}
	if field != "" {
		return nil, &repo.ConflictError{Field: field}
	}

	hash, err := helpers.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		Username:       in.Username,
		Email:          in.Email,
		Phone:          in.Phone,
		Firstname:      in.Firstname,
		Lastname:       in.Lastname,
		PasswordHash:   hash,
		Role:           entity.RoleUser,
		ProfilePicture: entity.DefaultProfilePicture,
		Addresses:      []entity.Address{},
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		// A concurrent registration can slip past the pre-check; the unique
		// index still names the colliding field.
		var conflict *repo.ConflictError
		if errors.As(err, &conflict) {
			return nil, conflict
		}
		return nil, err
	}
	s.indexUser(ctx, u)
	return u, nil
}

// Login verifies credentials, records the login time and issues a bearer
// token. Unknown email and wrong password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*entity.User, string, time.Time, error) {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, "", time.Time{}, ErrInvalidCredentials
		}
		return nil, "", time.Time{}, err
	}
	if !helpers.CompareHashAndPassword(u.PasswordHash, password) {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.Repo.RecordLogin(ctx, u.ID, now); err != nil {
		return nil, "", time.Time{}, err
	}
	u.LastLogin = &now

	token, exp, err := s.JWT.Generate(u)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Error("generate token failed")
		}
		return nil, "", time.Time{}, err
	}
	s.cacheProfile(ctx, u)
	return u, token, exp, nil
}

// ForgotPassword issues a reset token and queues the reset email when the
// account exists. It intentionally succeeds either way; the HTTP response is
// identical for known and unknown emails.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if s.Logger != nil {
				s.Logger.WithField("email", email).Debug("password reset requested for unknown email")
			}
			return nil
		}
		return err
	}

	token, err := helpers.NewResetToken()
	if err != nil {
		return err
	}
	expiry := time.Now().Add(s.Cfg.ResetTokenTTL)
	if err := s.Repo.SetResetToken(ctx, u.ID, token, expiry); err != nil {
		return err
	}

	// Email delivery is fire-and-forget: a publish failure is logged but
	// never changes the caller-visible outcome.
	if s.Pub != nil && s.Cfg.MailSendEnabled {
		job := mailer.EmailJob{
			To:       u.Email,
			Template: mailer.TemplateResetPassword,
			Data: map[string]any{
				"Name":      u.FullName(),
				"AppName":   s.Cfg.AppName,
				"ResetURL":  s.Cfg.ResetPasswordURL + "/" + token,
				"ExpiresIn": s.Cfg.ResetTokenTTL.String(),
			},
		}
		if err := s.Pub.PublishJSON(ctx, job); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Warn("enqueue reset email failed")
		}
	}
	return nil
}

// ResetPassword consumes a pending reset token and sets the new password in
// the same atomic update. A consumed or expired token fails with
// ErrResetTokenInvalid and cannot be replayed.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	hash, err := helpers.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u, err := s.Repo.ConsumeResetToken(ctx, token, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	s.invalidateProfile(ctx, u.ID)
	return nil
}

// ChangePassword requires the current secret before accepting the new one.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !helpers.CompareHashAndPassword(u.PasswordHash, currentPassword) {
		return ErrWrongPassword
	}
	hash, err := helpers.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.Repo.UpdatePassword(ctx, userID, hash)
}

// GetProfile returns the sanitized view of an account, cached briefly in
// Redis to keep the hot profile read off Postgres.
func (s *Service) GetProfile(ctx context.Context, userID string) (entity.PublicUser, error) {
	if s.Redis != nil {
		var cached entity.PublicUser
		if ok, err := helpers.RedisGetJSON(ctx, s.Redis, profileKey(userID), &cached); err == nil && ok {
			return cached, nil
		}
	}
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return entity.PublicUser{}, ErrUserNotFound
		}
		return entity.PublicUser{}, err
	}
	s.cacheProfile(ctx, u)
	return u.Public(), nil
}

// UpdateProfileInput carries the closed set of updatable profile fields.
// Nil means "leave unchanged".
type UpdateProfileInput struct {
	Firstname      *string
	Lastname       *string
	Phone          *string
	ProfilePicture *string
}

// UpdateProfile mutates only the whitelisted display fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if in.Phone != nil && *in.Phone != u.Phone {
		field, err := s.Repo.FindConflict(ctx, "", "", *in.Phone, userID)
		if err != nil {
			return nil, err
		}
		if field != "" {
			return nil, &repo.ConflictError{Field: "phone"}
		}
		u.Phone = *in.Phone
	}
	if in.Firstname != nil {
		u.Firstname = *in.Firstname
	}
	if in.Lastname != nil {
		u.Lastname = *in.Lastname
	}
	if in.ProfilePicture != nil {
		u.ProfilePicture = *in.ProfilePicture
	}
	if err := s.Repo.Update(ctx, u); err != nil {
		var conflict *repo.ConflictError
		if errors.As(err, &conflict) {
			return nil, conflict
		}
		return nil, err
	}
	s.invalidateProfile(ctx, u.ID)
	s.indexUser(ctx, u)
	return u, nil
}

// UploadProfilePicture stores the image in GCS and points the profile at it.
func (s *Service) UploadProfilePicture(ctx context.Context, userID string, r io.Reader, filename, contentType string) (string, error) {
	if s.GCS == nil || s.Cfg.GCSBucket == "" {
		return "", errors.New("object storage not configured")
	}
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("profile-pictures", userID, uuid.NewString()+ext))
	url, err := helpers.UploadObject(ctx, s.GCS, s.Cfg.GCSBucket, objectPath, contentType, r)
	if err != nil {
		return "", err
	}
	u.ProfilePicture = url
	if err := s.Repo.Update(ctx, u); err != nil {
		return "", err
	}
	s.invalidateProfile(ctx, u.ID)
	s.indexUser(ctx, u)
	return url, nil
}

// AddressInput carries a new address; Country falls back to the configured
// default when empty.
type AddressInput struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  bool
}

// AddAddress appends an address under the row lock. The first address of an
// account always becomes the default.
func (s *Service) AddAddress(ctx context.Context, userID string, in AddressInput) (*entity.User, entity.Address, error) {
	addr := entity.Address{
		ID:         uuid.NewString(),
		Street:     in.Street,
		City:       in.City,
		State:      in.State,
		PostalCode: in.PostalCode,
		Country:    in.Country,
		IsDefault:  in.IsDefault,
	}
	if addr.Country == "" {
		addr.Country = s.Cfg.DefaultCountry
	}
	u, err := s.mutateAddresses(ctx, userID, func(addrs []entity.Address) ([]entity.Address, error) {
		if len(addrs) == 0 {
			addr.IsDefault = true
		}
		if addr.IsDefault {
			for i := range addrs {
				addrs[i].IsDefault = false
			}
		}
		return entity.NormalizeDefault(append(addrs, addr)), nil
	})
	if err != nil {
		return nil, entity.Address{}, err
	}
	created, _ := findAddress(u.Addresses, addr.ID)
	return u, created, nil
}

// UpdateAddressInput mutates an existing address; nil fields stay unchanged.
type UpdateAddressInput struct {
	Street     *string
	City       *string
	State      *string
	PostalCode *string
	Country    *string
	IsDefault  *bool
}

// UpdateAddress edits one address; promoting it to default demotes the rest.
func (s *Service) UpdateAddress(ctx context.Context, userID, addressID string, in UpdateAddressInput) (*entity.User, entity.Address, error) {
	u, err := s.mutateAddresses(ctx, userID, func(addrs []entity.Address) ([]entity.Address, error) {
		idx := -1
		for i := range addrs {
			if addrs[i].ID == addressID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ErrAddressNotFound
		}
		a := &addrs[idx]
		if in.Street != nil {
			a.Street = *in.Street
		}
		if in.City != nil {
			a.City = *in.City
		}
		if in.State != nil {
			a.State = *in.State
		}
		if in.PostalCode != nil {
			a.PostalCode = *in.PostalCode
		}
		if in.Country != nil {
			a.Country = *in.Country
		}
		if in.IsDefault != nil {
			a.IsDefault = *in.IsDefault
			if *in.IsDefault {
				for i := range addrs {
					if i != idx {
						addrs[i].IsDefault = false
					}
				}
			}
		}
		return entity.NormalizeDefault(addrs), nil
	})
	if err != nil {
		return nil, entity.Address{}, err
	}
	updated, ok := findAddress(u.Addresses, addressID)
	if !ok {
		return nil, entity.Address{}, ErrAddressNotFound
	}
	return u, updated, nil
}

// DeleteAddress removes one address; deleting the default promotes the first
// remaining entry.
func (s *Service) DeleteAddress(ctx context.Context, userID, addressID string) (*entity.User, error) {
	return s.mutateAddresses(ctx, userID, func(addrs []entity.Address) ([]entity.Address, error) {
		idx := -1
		for i := range addrs {
			if addrs[i].ID == addressID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ErrAddressNotFound
		}
		addrs = append(addrs[:idx], addrs[idx+1:]...)
		return entity.NormalizeDefault(addrs), nil
	})
}

func (s *Service) mutateAddresses(ctx context.Context, userID string, fn func([]entity.Address) ([]entity.Address, error)) (*entity.User, error) {
	u, err := s.Repo.MutateAddresses(ctx, userID, fn)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.invalidateProfile(ctx, u.ID)
	return u, nil
}

func findAddress(addrs []entity.Address, id string) (entity.Address, bool) {
	for _, a := range addrs {
		if a.ID == id {
			return a, true
		}
	}
	return entity.Address{}, false
}

func (s *Service) cacheProfile(ctx context.Context, u *entity.User) {
	if s.Redis == nil {
		return
	}
	if err := helpers.RedisSetJSON(ctx, s.Redis, profileKey(u.ID), u.Public(), 5*time.Minute); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("cache profile failed")
	}
}

func (s *Service) invalidateProfile(ctx context.Context, userID string) {
	if s.Redis == nil {
		return
	}
	if err := helpers.RedisDel(ctx, s.Redis, profileKey(userID)); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("user_id", userID).Warn("invalidate profile cache failed")
	}
}

// indexUser pushes the sanitized profile into Elasticsearch, best effort.
func (s *Service) indexUser(ctx context.Context, u *entity.User) {
	if s.ES == nil || s.Cfg.ESUsersIndex == "" {
		return
	}
	doc := map[string]any{
		"id":         u.ID,
		"username":   u.Username,
		"email":      u.Email,
		"firstname":  u.Firstname,
		"lastname":   u.Lastname,
		"role":       u.Role,
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": u.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.Cfg.ESUsersIndex, DocumentID: u.ID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
		}
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("user_id", u.ID).Warn("es index response error")
	}
}

// SearchUsers performs a multi_match search on username, email and names.
// Only admin and manager roles can reach this through the router.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.Cfg.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "username^2", "firstname", "lastname"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(
		s.ES.Search.WithContext(c),
		s.ES.Search.WithIndex(s.Cfg.ESUsersIndex),
		s.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
