package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/shopease/auth-service/internal/application"
	"github.com/shopease/auth-service/internal/domain/repository"
	"github.com/shopease/auth-service/internal/interface/middleware"
	"github.com/shopease/auth-service/pkg/response"
	"github.com/shopease/auth-service/pkg/validation"
)

// AccountHandler exposes the account operations over HTTP and translates
// service errors into the stable status/message pairs of the API.
type AccountHandler struct {
	Svc    *application.Service
	Logger *logrus.Logger
}

func NewAccountHandler(svc *application.Service, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{Svc: svc, Logger: logger}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required,username"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,pwd"`
	Firstname string `json:"firstname" binding:"required,min=2,max=50"`
	Lastname  string `json:"lastname" binding:"required,min=2,max=50"`
	Phone     string `json:"phone" binding:"required,phone"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required,pwd"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,pwd"`
}

// updateProfileRequest is the closed set of mutable profile fields. Any
// other key in the payload is rejected.
type updateProfileRequest struct {
	Firstname      *string `json:"firstname"`
	Lastname       *string `json:"lastname"`
	Phone          *string `json:"phone"`
	ProfilePicture *string `json:"profilePicture"`
}

type addressRequest struct {
	Street     string `json:"street" binding:"required"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"isDefault"`
}

// updateAddressRequest mirrors addressRequest with optional fields; unknown
// keys are rejected.
type updateAddressRequest struct {
	Street     *string `json:"street"`
	City       *string `json:"city"`
	State      *string `json:"state"`
	PostalCode *string `json:"postalCode"`
	Country    *string `json:"country"`
	IsDefault  *bool   `json:"isDefault"`
}

func conflictMessage(field string) string {
	switch field {
	case "email":
		return "Email already in use"
	case "username":
		return "Username already taken"
	case "phone":
		return "Phone number already registered"
	}
	return "User already exists"
}

// fail maps service errors to the externally visible taxonomy. Anything
// unrecognized is logged and surfaced as a generic internal failure.
func (h *AccountHandler) fail(c *gin.Context, err error) {
	var conflict *repository.ConflictError
	switch {
	case errors.As(err, &conflict):
		response.Error[any](c, http.StatusConflict, conflictMessage(conflict.Field), nil)
	case errors.Is(err, application.ErrInvalidCredentials):
		response.Error[any](c, http.StatusUnauthorized, "Invalid email or password", nil)
	case errors.Is(err, application.ErrResetTokenInvalid):
		response.Error[any](c, http.StatusBadRequest, "Invalid or expired reset token", nil)
	case errors.Is(err, application.ErrWrongPassword):
		response.Error[any](c, http.StatusUnauthorized, "Current password is incorrect", nil)
	case errors.Is(err, application.ErrUserNotFound):
		response.Error[any](c, http.StatusNotFound, "User not found", nil)
	case errors.Is(err, application.ErrAddressNotFound):
		response.Error[any](c, http.StatusNotFound, "Address not found", nil)
	default:
		if h.Logger != nil {
			h.Logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		}
		response.Error[any](c, http.StatusInternalServerError, "Something went wrong. Please try again later.", nil)
	}
}

// Register POST /register
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	u, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Phone:     req.Phone,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"user": u.Public()},
		"Registration successful! Please login to your account.", nil)
}

// Login POST /login
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	u, token, exp, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": u.Public(), "token": token},
		"Login successful", map[string]any{"expires_at": exp})
}

// ForgotPassword POST /forgot-password
func (h *AccountHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	if err := h.Svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	// Same reply whether or not the email is registered.
	response.Success[any](c, http.StatusOK, nil,
		"If your email is registered, you will receive a password reset link", nil)
}

// ResetPassword POST /reset-password/:token
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	if err := h.Svc.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil,
		"Password reset successful. You can now log in with your new password.", nil)
}

// ChangePassword POST /change-password
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	uid := c.GetString(middleware.CtxUserIDKey)
	if err := h.Svc.ChangePassword(c.Request.Context(), uid, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "Password changed successfully", nil)
}

// GetProfile GET /profile
func (h *AccountHandler) GetProfile(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	u, err := h.Svc.GetProfile(c.Request.Context(), uid)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": u}, "profile", nil)
}

// UpdateProfile PATCH /profile
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest,
			"Invalid updates. Allowed fields: firstname, lastname, phone, profilePicture", nil)
		return
	}
	u, err := h.Svc.UpdateProfile(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), application.UpdateProfileInput{
		Firstname:      req.Firstname,
		Lastname:       req.Lastname,
		Phone:          req.Phone,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": u.Public()}, "Profile updated successfully", nil)
}

// UploadProfilePicture POST /profile/picture (multipart field "picture")
func (h *AccountHandler) UploadProfilePicture(c *gin.Context) {
	file, header, err := c.Request.FormFile("picture")
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "picture file is required", nil)
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		response.Error[any](c, http.StatusBadRequest, "picture must be an image", nil)
		return
	}
	url, err := h.Svc.UploadProfilePicture(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), file, header.Filename, contentType)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"profilePicture": url}, "Profile picture updated", nil)
}

// Logout POST /logout
//
// Bearer tokens are stateless; there is nothing to revoke server side. The
// endpoint exists so clients have an explicit point to discard the token.
func (h *AccountHandler) Logout(c *gin.Context) {
	response.Success[any](c, http.StatusOK, nil, "Logged out successfully", nil)
}

// AddAddress POST /address
func (h *AccountHandler) AddAddress(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	u, addr, err := h.Svc.AddAddress(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), application.AddressInput{
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"address": addr, "addresses": u.Addresses},
		"Address added successfully", nil)
}

// UpdateAddress PATCH /address/:addressId
func (h *AccountHandler) UpdateAddress(c *gin.Context) {
	var req updateAddressRequest
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest,
			"Invalid updates. Allowed fields: street, city, state, postalCode, country, isDefault", nil)
		return
	}
	u, addr, err := h.Svc.UpdateAddress(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), c.Param("addressId"), application.UpdateAddressInput{
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"address": addr, "addresses": u.Addresses},
		"Address updated successfully", nil)
}

// DeleteAddress DELETE /address/:addressId
func (h *AccountHandler) DeleteAddress(c *gin.Context) {
	u, err := h.Svc.DeleteAddress(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), c.Param("addressId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"addresses": u.Addresses}, "Address deleted successfully", nil)
}

// Search GET /users/search?q=&size= (admin/manager only)
func (h *AccountHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.Error[any](c, http.StatusBadRequest, "q is required", nil)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	results, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results}, "search results",
		map[string]any{"count": len(results)})
}
