package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/authgate/backend/internal/config"
	"github.com/authgate/backend/internal/middleware"
	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/internal/services"
	"github.com/authgate/backend/pkg/logger"
	"github.com/authgate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type SSOHandler struct {
	DB           *gorm.DB
	Cfg          *config.Config
	Store        services.IdentityStore
	OAuthService *services.OAuthProviderService
	Resolver     *services.IdentityResolver
	Sessions     *services.SessionService
}

func NewSSOHandler(db *gorm.DB, cfg *config.Config, store services.IdentityStore, resolver *services.IdentityResolver, sessions *services.SessionService) *SSOHandler {
	return &SSOHandler{
		DB:           db,
		Cfg:          cfg,
		Store:        store,
		OAuthService: services.NewOAuthProviderService(cfg),
		Resolver:     resolver,
		Sessions:     sessions,
	}
}

func (h *SSOHandler) ListProviders(c *fiber.Ctx) error {
	providers := []fiber.Map{}

	if h.Cfg.OAuth.Google.Enabled {
		providers = append(providers, fiber.Map{
			"name":        "google",
			"displayName": "Google",
			"type":        "oauth",
		})
	}
	if h.Cfg.OAuth.GitHub.Enabled {
		providers = append(providers, fiber.Map{
			"name":        "github",
			"displayName": "GitHub",
			"type":        "oauth",
		})
	}

	return utils.Success(c, fiber.StatusOK, providers)
}

func (h *SSOHandler) GetLoginRedirect(c *fiber.Ctx) error {
	provider := c.Params("provider")

	oauthCfg, providerName, err := h.OAuthService.GetOAuthConfig(provider)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := h.OAuthService.GenerateState(string(providerName))
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating state")
	}

	stateJSON, _ := json.Marshal(state)
	stateEncoded := base64.URLEncoding.EncodeToString(stateJSON)

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url": oauthCfg.AuthCodeURL(stateEncoded),
	})
}

// HandleOAuthCallback exchanges the code, resolves the provider identity
// against local users, and redirects to the frontend with a session token.
// Every rejection redirects with an error instead of half-creating state.
func (h *SSOHandler) HandleOAuthCallback(c *fiber.Ctx) error {
	provider := c.Params("provider")
	code := c.Query("code")

	frontendURL := h.Cfg.Server.FrontendURL

	if code == "" {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape("authorization code is required"))
	}

	assertion, err := h.buildAssertion(c, provider, code)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape(err.Error()))
	}

	user, err := h.signInFromAssertion(c, *assertion)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape(err.Error()))
	}

	claims, err := h.Sessions.Mint(c.Context(), services.IdentityOf(user))
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape("failed minting session"))
	}

	token, err := utils.GenerateToken(claims)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape("failed generating token"))
	}

	logger.InfoWithUser(user.ID.String(), "sso_login_success", map[string]interface{}{
		"email":    user.Email,
		"provider": provider,
	})

	return c.Redirect(frontendURL + "/auth/callback?token=" + token)
}

func (h *SSOHandler) buildAssertion(c *fiber.Ctx, provider, code string) (*services.OAuthAssertion, error) {
	token, err := h.OAuthService.ExchangeCode(c.Context(), provider, code)
	if err != nil {
		return nil, err
	}

	profile, err := h.OAuthService.GetUserInfo(c.Context(), provider, token)
	if err != nil {
		return nil, err
	}

	return assertionFromProfile(profile, token), nil
}

func assertionFromProfile(profile *services.OAuthProfile, token *oauth2.Token) *services.OAuthAssertion {
	assertion := &services.OAuthAssertion{
		Provider:          profile.Provider,
		ProviderAccountID: profile.ProviderAccountID,
		Email:             profile.Email,
		Name:              profile.Name,
		Image:             profile.Image,
		Type:              "oauth",
	}

	if token.AccessToken != "" {
		assertion.AccessToken = &token.AccessToken
	}
	if token.RefreshToken != "" {
		assertion.RefreshToken = &token.RefreshToken
	}
	if token.TokenType != "" {
		assertion.TokenType = &token.TokenType
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		assertion.IDToken = &idToken
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		assertion.Scope = &scope
	}

	return assertion
}

// signInFromAssertion runs the resolver and completes whichever outcome it
// returns, yielding the canonical user for this sign-in.
func (h *SSOHandler) signInFromAssertion(c *fiber.Ctx, assertion services.OAuthAssertion) (*models.User, error) {
	resolution := h.Resolver.Resolve(c.Context(), assertion)

	switch resolution.Outcome {
	case services.OutcomeProceedAsNewUser:
		return h.Resolver.ProvisionUser(c.Context(), assertion)

	case services.OutcomeLinkedToExisting, services.OutcomeAlreadyLinked:
		user, err := h.Store.FindUserByID(c.Context(), resolution.UserID)
		if err != nil || user == nil {
			return nil, errors.New("failed loading user")
		}
		if user.Deactivated() {
			return nil, errors.New("this account has been deactivated")
		}
		return user, nil

	default:
		if resolution.Reason != nil {
			return nil, resolution.Reason
		}
		return nil, errors.New("sign-in denied")
	}
}

func (h *SSOHandler) GetLinkedAccounts(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	accounts, err := h.Store.ListLinkedAccounts(c.Context(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing linked accounts")
	}

	return utils.Success(c, fiber.StatusOK, accounts)
}

type linkAccountRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
}

// LinkAccount binds a provider identity to the signed-in user. Unlike the
// callback path this never matches by email; the session owner is the
// target.
func (h *SSOHandler) LinkAccount(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req linkAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	assertion, err := h.buildAssertion(c, req.Provider, req.Code)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.Resolver.LinkToUser(c.Context(), user.ID, *assertion); err != nil {
		if errors.Is(err, services.ErrDuplicateLink) {
			return utils.Error(c, fiber.StatusConflict, "this provider identity is already linked")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed to link account")
	}

	logger.InfoWithUser(user.ID.String(), "account_linked", map[string]interface{}{
		"provider": req.Provider,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account linked"})
}

func (h *SSOHandler) UnlinkAccount(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	accountID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid account id")
	}

	if err := h.Store.DeleteLinkedAccount(c.Context(), user.ID, accountID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to unlink account")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account unlinked"})
}
