package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/authgate/backend/internal/config"
	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/pkg/logger"
	"golang.org/x/oauth2"
	github "golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

type OAuthProviderService struct {
	Cfg *config.Config
}

func NewOAuthProviderService(cfg *config.Config) *OAuthProviderService {
	return &OAuthProviderService{Cfg: cfg}
}

type OAuthState struct {
	Provider    string
	Nonce       string
	ExpiresAt   time.Time
	RedirectURL string
}

// OAuthProfile is the normalized provider identity fed into the resolver.
type OAuthProfile struct {
	Provider          models.ProviderType
	ProviderAccountID string
	Email             string
	Name              string
	Image             *string
	RawProfile        map[string]interface{}
}

func (s *OAuthProviderService) GetOAuthConfig(provider string) (*oauth2.Config, models.ProviderType, error) {
	switch strings.ToLower(provider) {
	case "google":
		if !s.Cfg.OAuth.Google.Enabled {
			return nil, "", errors.New("google oauth is not enabled")
		}
		return s.Cfg.OAuth.Google.ClientConfig(google.Endpoint), models.ProviderTypeGoogle, nil

	case "github":
		if !s.Cfg.OAuth.GitHub.Enabled {
			return nil, "", errors.New("github oauth is not enabled")
		}
		return s.Cfg.OAuth.GitHub.ClientConfig(github.Endpoint), models.ProviderTypeGitHub, nil

	default:
		return nil, "", errors.New("unknown oauth provider: " + provider)
	}
}

func (s *OAuthProviderService) GenerateState(provider string) (*OAuthState, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, err
	}

	return &OAuthState{
		Provider:  provider,
		Nonce:     base64.URLEncoding.EncodeToString(nonceBytes),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}, nil
}

func (s *OAuthProviderService) ExchangeCode(ctx context.Context, provider string, code string) (*oauth2.Token, error) {
	oauthCfg, _, err := s.GetOAuthConfig(provider)
	if err != nil {
		return nil, err
	}

	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		logger.Warn("oauth_exchange_failed", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return nil, errors.New("failed to exchange code for token")
	}

	return token, nil
}

func (s *OAuthProviderService) GetUserInfo(ctx context.Context, provider string, token *oauth2.Token) (*OAuthProfile, error) {
	switch strings.ToLower(provider) {
	case "google":
		return s.getGoogleUserInfo(ctx, token)
	case "github":
		return s.getGitHubUserInfo(ctx, token)
	default:
		return nil, errors.New("unknown provider: " + provider)
	}
}

func (s *OAuthProviderService) getGoogleUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthProfile, error) {
	client := s.Cfg.OAuth.GoogleClientConfig(ctx).Client(ctx, token)

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google api returned status %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		VerifiedEmail bool   `json:"verified_email"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	return &OAuthProfile{
		Provider:          models.ProviderTypeGoogle,
		ProviderAccountID: data.ID,
		Email:             data.Email,
		Name:              data.Name,
		Image:             optionalString(data.Picture),
		RawProfile: map[string]interface{}{
			"id":             data.ID,
			"email":          data.Email,
			"name":           data.Name,
			"picture":        data.Picture,
			"verified_email": data.VerifiedEmail,
		},
	}, nil
}

func (s *OAuthProviderService) getGitHubUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthProfile, error) {
	client := s.Cfg.OAuth.GitHubClientConfig(ctx).Client(ctx, token)

	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github api returned status %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		ID        int    `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	if data.Email == "" {
		data.Email = s.getGitHubPrimaryEmail(client)
	}

	name := data.Name
	if name == "" {
		name = data.Login
	}

	return &OAuthProfile{
		Provider:          models.ProviderTypeGitHub,
		ProviderAccountID: fmt.Sprintf("%d", data.ID),
		Email:             data.Email,
		Name:              name,
		Image:             optionalString(data.AvatarURL),
		RawProfile: map[string]interface{}{
			"id":         data.ID,
			"login":      data.Login,
			"name":       data.Name,
			"email":      data.Email,
			"avatar_url": data.AvatarURL,
		},
	}, nil
}

// GitHub hides the email when the user marks it private; the primary
// verified address from the emails endpoint is the fallback.
func (s *OAuthProviderService) getGitHubPrimaryEmail(client *http.Client) string {
	resp, err := client.Get("https://api.github.com/user/emails")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if json.NewDecoder(resp.Body).Decode(&emails) != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
