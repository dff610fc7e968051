package services

import (
	"context"
	"time"

	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/pkg/logger"
	"github.com/authgate/backend/pkg/utils"
	"github.com/google/uuid"
)

type RefreshTrigger string

const (
	// TriggerRead is the natural refresh performed on every validation.
	TriggerRead RefreshTrigger = "read"
	// TriggerUpdate is a client-initiated refresh carrying an optional
	// patch to merge before re-deriving from the live row.
	TriggerUpdate RefreshTrigger = "update"
)

// SessionPatch is the caller-supplied partial update merged into claims on
// an explicit update trigger.
type SessionPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// PublicSessionView is what presentation layers see: claims stripped of
// token internals, with role defaulting to least privilege.
type PublicSessionView struct {
	UserID string          `json:"userId"`
	Name   string          `json:"name,omitempty"`
	Email  string          `json:"email,omitempty"`
	Role   models.UserRole `json:"role"`
}

// SessionService mints and refreshes session claims. Claims are read-mostly
// projections of the user row, never the source of truth: every refresh
// re-reads the row so role changes propagate without re-authentication.
type SessionService struct {
	Store     IdentityStore
	UpdateAge time.Duration
}

func NewSessionService(store IdentityStore, updateAge time.Duration) *SessionService {
	if updateAge <= 0 {
		updateAge = 24 * time.Hour
	}
	return &SessionService{Store: store, UpdateAge: updateAge}
}

// Mint produces claims for a freshly resolved identity. Name and email come
// from the resolution; role is re-derived from the live row rather than
// trusted from the assertion.
func (s *SessionService) Mint(ctx context.Context, identity *Identity) (*utils.SessionClaims, error) {
	claims := &utils.SessionClaims{
		Name:  identity.Name,
		Email: identity.Email,
	}
	claims.Subject = identity.ID.String()

	refreshed, _, err := s.Refresh(ctx, claims, TriggerRead, nil)
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

// Refresh merges an optional patch (update trigger only), then overwrites
// name/email/role from the current user row. A missing backing user makes
// the session invalid. The boolean reports whether a full re-sign is due
// under the update-age policy.
func (s *SessionService) Refresh(ctx context.Context, claims *utils.SessionClaims, trigger RefreshTrigger, patch *SessionPatch) (*utils.SessionClaims, bool, error) {
	if claims == nil || claims.Subject == "" {
		return nil, false, ErrSessionInvalid
	}

	if trigger == TriggerUpdate && patch != nil {
		if patch.Name != nil {
			claims.Name = *patch.Name
		}
		if patch.Email != nil {
			claims.Email = *patch.Email
		}
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, false, ErrSessionInvalid
	}

	user, err := s.Store.FindUserByID(ctx, userID)
	if err != nil {
		logger.ErrorWithUser(claims.Subject, "session_refresh_lookup_failed", err, nil)
		return nil, false, err
	}
	if user == nil {
		// The backing user is gone; stale claims must not outlive the row.
		return nil, false, ErrSessionInvalid
	}

	claims.Name = user.Name
	claims.Email = user.Email
	claims.Role = user.Role

	return claims, s.resignDue(claims, trigger), nil
}

func (s *SessionService) resignDue(claims *utils.SessionClaims, trigger RefreshTrigger) bool {
	if trigger == TriggerUpdate {
		return true
	}
	if claims.IssuedAt == nil {
		return true
	}
	return time.Since(claims.IssuedAt.Time) >= s.UpdateAge
}

// Project strips token internals before claims reach presentation layers.
func (s *SessionService) Project(claims *utils.SessionClaims) PublicSessionView {
	view := PublicSessionView{
		Role: models.UserRoleUser,
	}
	if claims == nil {
		return view
	}
	view.UserID = claims.Subject
	view.Name = claims.Name
	view.Email = claims.Email
	if claims.Role != "" {
		view.Role = claims.Role
	}
	return view
}
