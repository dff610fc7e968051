package handlers

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/authgate/backend/internal/middleware"
	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/internal/services"
	"github.com/authgate/backend/pkg/logger"
	"github.com/authgate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB       *gorm.DB
	Store    services.IdentityStore
	Verifier *services.CredentialVerifier
	Resolver *services.IdentityResolver
	Sessions *services.SessionService
}

func NewAuthHandler(db *gorm.DB, store services.IdentityStore, verifier *services.CredentialVerifier, resolver *services.IdentityResolver, sessions *services.SessionService) *AuthHandler {
	return &AuthHandler{
		DB:       db,
		Store:    store,
		Verifier: verifier,
		Resolver: resolver,
		Sessions: sessions,
	}
}

type registerRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Image    *string `json:"image"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 6 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 6 characters")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	active := true
	user := models.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: &hash,
		Image:        req.Image,
		Role:         models.UserRoleUser,
		IsActive:     &active,
	}

	if err := h.Store.InsertUser(c.Context(), &user); err != nil {
		if errors.Is(err, services.ErrDuplicateEmail) {
			return utils.Error(c, fiber.StatusBadRequest, "a user with this email already exists")
		}
		logger.Error("register_failed", err, map[string]interface{}{"email": req.Email})
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"email": user.Email,
	})

	return utils.Success(c, fiber.StatusCreated, user.Public())
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	identity, err := h.Verifier.Verify(c.Context(), req.Email, req.Password)
	if err != nil {
		return h.loginError(c, req.Email, err)
	}

	// The credentials path short-circuits resolution; nothing to link.
	resolution := h.Resolver.Resolve(c.Context(), services.CredentialsAssertion{UserID: identity.ID})
	if resolution.Outcome == services.OutcomeRejected {
		return utils.Error(c, fiber.StatusUnauthorized, "sign-in denied")
	}

	claims, err := h.Sessions.Mint(c.Context(), identity)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed minting session")
	}

	token, err := utils.GenerateToken(claims)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(identity.ID.String(), "user_login", map[string]interface{}{
		"email": identity.Email,
		"ip":    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":   token,
		"session": h.Sessions.Project(claims),
	})
}

// loginError maps verifier failures onto responses. Unknown email and wrong
// password share one message so the endpoint cannot be used to enumerate
// accounts; account-state failures keep their specific text.
func (h *AuthHandler) loginError(c *fiber.Ctx, email string, err error) error {
	switch {
	case errors.Is(err, services.ErrCredentialsRequired):
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrInvalidPassword):
		logger.Warn("login_failed", map[string]interface{}{
			"email": email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, services.ErrNoPasswordSet):
		return utils.Error(c, fiber.StatusUnauthorized, "this account doesn't have a password set")
	case errors.Is(err, services.ErrAccountDeactivated):
		return utils.Error(c, fiber.StatusUnauthorized, "this account has been deactivated")
	default:
		logger.Error("login_error", err, map[string]interface{}{"email": email})
		return utils.Error(c, fiber.StatusInternalServerError, "sign-in failed")
	}
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user.Public())
}

// Session returns the public projection of the caller's claims after a
// read-trigger refresh against the live user row. When the update-age
// policy is due, a re-signed token rides along.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	claims := middleware.GetCurrentClaims(c)
	if claims == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	refreshed, resign, err := h.Sessions.Refresh(c.Context(), claims, services.TriggerRead, nil)
	if err != nil {
		if errors.Is(err, services.ErrSessionInvalid) {
			return utils.Error(c, fiber.StatusUnauthorized, "session is no longer valid")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed refreshing session")
	}

	response := fiber.Map{"session": h.Sessions.Project(refreshed)}
	if resign {
		token, err := utils.GenerateToken(refreshed)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
		}
		response["token"] = token
	}

	return utils.Success(c, fiber.StatusOK, response)
}

type refreshSessionRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// RefreshSession is the explicit update trigger: the caller's patch is
// merged into the claims before the live-row re-derivation, and a new
// token is always issued.
func (h *AuthHandler) RefreshSession(c *fiber.Ctx) error {
	claims := middleware.GetCurrentClaims(c)
	if claims == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req refreshSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	patch := &services.SessionPatch{Name: req.Name, Email: req.Email}

	refreshed, _, err := h.Sessions.Refresh(c.Context(), claims, services.TriggerUpdate, patch)
	if err != nil {
		if errors.Is(err, services.ErrSessionInvalid) {
			return utils.Error(c, fiber.StatusUnauthorized, "session is no longer valid")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed refreshing session")
	}

	token, err := utils.GenerateToken(refreshed)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":   token,
		"session": h.Sessions.Project(refreshed),
	})
}

type updateMeRequest struct {
	Name  *string `json:"name"`
	Image *string `json:"image"`
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		value := strings.TrimSpace(*req.Name)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = value
	}
	if req.Image != nil {
		trimmed := strings.TrimSpace(*req.Image)
		if trimmed == "" {
			updates["image"] = nil
		} else {
			updates["image"] = trimmed
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated user")
	}

	return utils.Success(c, fiber.StatusOK, updated.Public())
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 6 {
		return utils.Error(c, fiber.StatusBadRequest, "newPassword must be at least 6 characters")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	if user.PasswordHash == nil {
		return utils.Error(c, fiber.StatusBadRequest, "this account doesn't have a password set")
	}
	if !utils.CheckPassword(req.OldPassword, *user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "oldPassword is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	logger.InfoWithUser(user.ID.String(), "user_password_changed", nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}
