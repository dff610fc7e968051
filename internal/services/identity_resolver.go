package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/pkg/logger"
	"github.com/google/uuid"
)

// Token expiry windows for newly linked accounts. The persisted expires_at
// records the refresh-token window, a deliberate simplification: the
// short-lived access token is re-obtained from the provider as needed.
const (
	accessTokenWindow  = 5 * time.Minute
	refreshTokenWindow = 90 * 24 * time.Hour
)

// Assertion is the tagged inbound identity claim: either verified
// credentials or an OAuth callback profile.
type Assertion interface {
	assertion()
}

// CredentialsAssertion marks a sign-in that the credential verifier has
// already authenticated.
type CredentialsAssertion struct {
	UserID uuid.UUID
}

func (CredentialsAssertion) assertion() {}

// OAuthAssertion carries the provider callback identity plus the token
// material to persist on the link row.
type OAuthAssertion struct {
	Provider          models.ProviderType
	ProviderAccountID string
	Email             string
	Name              string
	Image             *string
	Type              string
	AccessToken       *string
	RefreshToken      *string
	IDToken           *string
	TokenType         *string
	Scope             *string
	SessionState      *string
}

func (OAuthAssertion) assertion() {}

type Outcome int

const (
	OutcomeProceedAsNewUser Outcome = iota
	OutcomeLinkedToExisting
	OutcomeAlreadyLinked
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProceedAsNewUser:
		return "proceed_as_new_user"
	case OutcomeLinkedToExisting:
		return "linked_to_existing"
	case OutcomeAlreadyLinked:
		return "already_linked"
	default:
		return "rejected"
	}
}

// Resolution is the explicit result of resolving an assertion. Rejections
// carry the enumerated reason; callers match on Outcome rather than
// catching errors.
type Resolution struct {
	Outcome Outcome
	UserID  uuid.UUID
	Reason  error
}

func rejected(reason error) Resolution {
	return Resolution{Outcome: OutcomeRejected, Reason: reason}
}

// IdentityResolver decides which local user an inbound assertion maps to,
// linking provider identities to existing users where emails match.
type IdentityResolver struct {
	Store IdentityStore
}

func NewIdentityResolver(store IdentityStore) *IdentityResolver {
	return &IdentityResolver{Store: store}
}

// Resolve runs the OAuth matching algorithm. Credentials assertions pass
// straight through: the verifier has already authenticated them and the
// credentials provider never creates link rows.
func (r *IdentityResolver) Resolve(ctx context.Context, a Assertion) Resolution {
	switch assertion := a.(type) {
	case CredentialsAssertion:
		return Resolution{Outcome: OutcomeProceedAsNewUser, UserID: assertion.UserID}
	case OAuthAssertion:
		return r.resolveOAuth(ctx, assertion)
	default:
		return rejected(ErrMissingEmail)
	}
}

func (r *IdentityResolver) resolveOAuth(ctx context.Context, a OAuthAssertion) Resolution {
	if a.Email == "" {
		return rejected(ErrMissingEmail)
	}

	user, err := r.lookupUser(ctx, a.Email)
	if err != nil {
		logger.Error("resolver_lookup_failed", err, map[string]interface{}{
			"provider": string(a.Provider),
		})
		return rejected(ErrLinkFailed)
	}

	if user == nil {
		return Resolution{Outcome: OutcomeProceedAsNewUser}
	}

	existing, err := r.Store.FindLinkedAccount(ctx, user.ID, a.Provider, a.ProviderAccountID)
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "resolver_link_lookup_failed", err, map[string]interface{}{
			"provider": string(a.Provider),
		})
		return rejected(ErrLinkFailed)
	}
	if existing != nil {
		return Resolution{Outcome: OutcomeAlreadyLinked, UserID: user.ID}
	}

	if err := r.Store.InsertLinkedAccount(ctx, r.accountFromAssertion(user.ID, a)); err != nil {
		logger.ErrorWithUser(user.ID.String(), "resolver_link_failed", err, map[string]interface{}{
			"provider": string(a.Provider),
		})
		if errors.Is(err, ErrDuplicateLink) {
			return rejected(ErrDuplicateLink)
		}
		return rejected(ErrLinkFailed)
	}

	r.backfillImage(ctx, user, a)

	logger.InfoWithUser(user.ID.String(), "oauth_account_linked", map[string]interface{}{
		"provider": string(a.Provider),
	})

	return Resolution{Outcome: OutcomeLinkedToExisting, UserID: user.ID}
}

// lookupUser tries the normalized form first, then the raw casing to
// tolerate rows written before emails were normalized at insert time.
func (r *IdentityResolver) lookupUser(ctx context.Context, email string) (*models.User, error) {
	normalized := strings.ToLower(email)

	user, err := r.Store.FindUserByEmail(ctx, normalized)
	if err != nil || user != nil {
		return user, err
	}
	if normalized == email {
		return nil, nil
	}
	return r.Store.FindUserByEmail(ctx, email)
}

// ProvisionUser creates the new user and its first linked account in one
// transaction after Resolve returned ProceedAsNewUser. A concurrent racer
// creating the same email loses here with ErrDuplicateEmail, which must be
// surfaced as a denied sign-in rather than a silent success.
func (r *IdentityResolver) ProvisionUser(ctx context.Context, a OAuthAssertion) (*models.User, error) {
	if a.Email == "" {
		return nil, ErrMissingEmail
	}

	active := true
	user := &models.User{
		Email:    strings.ToLower(a.Email),
		Name:     a.Name,
		Image:    a.Image,
		Role:     models.UserRoleUser,
		IsActive: &active,
	}

	if err := r.Store.CreateUserWithAccount(ctx, user, r.accountFromAssertion(uuid.Nil, a)); err != nil {
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateLink) {
			return nil, err
		}
		logger.Error("resolver_provision_failed", err, map[string]interface{}{
			"provider": string(a.Provider),
		})
		return nil, ErrLinkFailed
	}

	logger.InfoWithUser(user.ID.String(), "oauth_user_created", map[string]interface{}{
		"provider": string(a.Provider),
	})

	return user, nil
}

// LinkToUser binds a provider identity to an already-authenticated user,
// regardless of email match. Used by the explicit account-linking endpoint.
func (r *IdentityResolver) LinkToUser(ctx context.Context, userID uuid.UUID, a OAuthAssertion) error {
	existing, err := r.Store.FindLinkedAccount(ctx, userID, a.Provider, a.ProviderAccountID)
	if err != nil {
		return ErrLinkFailed
	}
	if existing != nil {
		return ErrDuplicateLink
	}
	if err := r.Store.InsertLinkedAccount(ctx, r.accountFromAssertion(userID, a)); err != nil {
		if errors.Is(err, ErrDuplicateLink) {
			return ErrDuplicateLink
		}
		return ErrLinkFailed
	}
	return nil
}

func (r *IdentityResolver) accountFromAssertion(userID uuid.UUID, a OAuthAssertion) *models.LinkedAccount {
	accountType := a.Type
	if accountType == "" {
		accountType = "oauth"
	}

	expiresAt := time.Now().Add(refreshTokenWindow).Unix()

	return &models.LinkedAccount{
		UserID:            userID,
		Type:              accountType,
		Provider:          a.Provider,
		ProviderAccountID: a.ProviderAccountID,
		RefreshToken:      a.RefreshToken,
		AccessToken:       a.AccessToken,
		ExpiresAt:         &expiresAt,
		TokenType:         a.TokenType,
		Scope:             a.Scope,
		IDToken:           a.IDToken,
		SessionState:      a.SessionState,
	}
}

// backfillImage copies the provider's profile picture onto users that have
// none. Failures are logged and ignored; the sign-in already succeeded.
func (r *IdentityResolver) backfillImage(ctx context.Context, user *models.User, a OAuthAssertion) {
	if !a.Provider.ImageBearing() || user.Image != nil || a.Image == nil || *a.Image == "" {
		return
	}
	if err := r.Store.UpdateUserImage(ctx, user.ID, *a.Image); err != nil {
		logger.WarnWithUser(user.ID.String(), "resolver_image_backfill_failed", map[string]interface{}{
			"provider": string(a.Provider),
		})
	}
}
