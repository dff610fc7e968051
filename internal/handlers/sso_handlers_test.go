package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/authgate/backend/internal/config"
	"github.com/authgate/backend/internal/models"
	"github.com/google/uuid"
)

func enableGoogle(cfg *config.Config) {
	cfg.OAuth.Google = config.OAuthProviderConfig{
		Enabled:      true,
		ClientID:     "google-client",
		ClientSecret: "google-secret",
		RedirectURL:  "http://localhost:8080/api/auth/sso/google/callback",
		Scopes:       "openid,email,profile",
	}
}

func TestListProviders(t *testing.T) {
	t.Run("no providers configured", func(t *testing.T) {
		env := setupTestEnv(t)

		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/providers", nil, nil)
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].([]any)
		if len(data) != 0 {
			t.Errorf("expected no providers, got %v", data)
		}
	})

	t.Run("enabled providers are listed", func(t *testing.T) {
		env := setupTestEnv(t)
		enableGoogle(env.cfg)

		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/providers", nil, nil)
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 provider, got %d", len(data))
		}
		provider, _ := data[0].(map[string]any)
		if provider["name"] != "google" {
			t.Errorf("expected google provider, got %v", provider)
		}
	})
}

func TestGetLoginRedirect(t *testing.T) {
	env := setupTestEnv(t)
	enableGoogle(env.cfg)

	t.Run("returns the provider authorization url", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/sso/google", nil, nil)
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].(map[string]any)
		redirectURL, _ := data["url"].(string)
		if !strings.Contains(redirectURL, "client_id=google-client") {
			t.Errorf("expected client id in url, got %q", redirectURL)
		}
		if !strings.Contains(redirectURL, "state=") {
			t.Errorf("expected state parameter in url, got %q", redirectURL)
		}
	})

	t.Run("disabled provider is rejected", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/sso/github", nil, nil)
		assertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/sso/gitlab", nil, nil)
		assertStatus(t, resp, http.StatusBadRequest)
	})
}

func TestHandleOAuthCallback_MissingCode(t *testing.T) {
	env := setupTestEnv(t)
	enableGoogle(env.cfg)

	resp := performRequest(t, env.app, http.MethodGet, "/api/auth/sso/google/callback", nil, nil)
	assertStatus(t, resp, http.StatusFound)

	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, env.cfg.Server.FrontendURL+"/login?error=") {
		t.Errorf("expected error redirect to frontend, got %q", location)
	}
}

func TestGetLinkedAccounts(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "alice@example.com", "secret123", models.UserRoleUser)

	account := &models.LinkedAccount{
		UserID:            user.ID,
		Type:              "oauth",
		Provider:          models.ProviderTypeGitHub,
		ProviderAccountID: "gh-1",
	}
	if err := env.db.Create(account).Error; err != nil {
		t.Fatalf("failed creating linked account: %v", err)
	}

	t.Run("lists the caller's links", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/accounts", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 linked account, got %d", len(data))
		}
		row, _ := data[0].(map[string]any)
		if row["provider"] != "github" {
			t.Errorf("unexpected account row: %+v", row)
		}
		for _, secret := range []string{"refreshToken", "accessToken", "idToken"} {
			if _, leaked := row[secret]; leaked {
				t.Errorf("token material %s must not be serialized", secret)
			}
		}
	})

	t.Run("requires authentication", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/accounts", nil, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
	})
}

func TestUnlinkAccount(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "alice@example.com", "secret123", models.UserRoleUser)

	account := &models.LinkedAccount{
		UserID:            user.ID,
		Type:              "oauth",
		Provider:          models.ProviderTypeGoogle,
		ProviderAccountID: "g-1",
	}
	if err := env.db.Create(account).Error; err != nil {
		t.Fatalf("failed creating linked account: %v", err)
	}

	t.Run("invalid id is rejected", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/auth/accounts/not-a-uuid", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("removes the link", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/auth/accounts/"+account.ID.String(), nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		var count int64
		if err := env.db.Model(&models.LinkedAccount{}).Where("id = ?", account.ID).Count(&count).Error; err != nil {
			t.Fatalf("failed counting links: %v", err)
		}
		if count != 0 {
			t.Error("expected link row to be removed")
		}
	})

	t.Run("another user's link is untouched", func(t *testing.T) {
		other := &models.LinkedAccount{
			UserID:            uuid.New(),
			Type:              "oauth",
			Provider:          models.ProviderTypeGoogle,
			ProviderAccountID: "g-2",
		}
		if err := env.db.Create(other).Error; err != nil {
			t.Fatalf("failed creating linked account: %v", err)
		}

		resp := performRequest(t, env.app, http.MethodDelete, "/api/auth/accounts/"+other.ID.String(), nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		var count int64
		if err := env.db.Model(&models.LinkedAccount{}).Where("id = ?", other.ID).Count(&count).Error; err != nil {
			t.Fatalf("failed counting links: %v", err)
		}
		if count != 1 {
			t.Error("delete scoped to the caller must not touch other rows")
		}
	})
}

func TestLinkAccount_Validation(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "alice@example.com", "secret123", models.UserRoleUser)

	t.Run("requires authentication", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/accounts", map[string]any{
			"provider": "google",
			"code":     "abc",
		}, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/accounts", map[string]any{
			"provider": "gitlab",
			"code":     "abc",
		}, authHeaders(token))
		assertStatus(t, resp, http.StatusBadRequest)
	})
}
