package services

import (
	"context"

	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/pkg/utils"
	"github.com/google/uuid"
)

// Identity is the minimal projection handed to the session layer after a
// successful verification or resolution. It never carries the password hash.
type Identity struct {
	ID    uuid.UUID
	Email string
	Name  string
	Image *string
	Role  models.UserRole
}

// IdentityOf projects a user row into the identity handed to the session
// layer.
func IdentityOf(user *models.User) *Identity {
	return &Identity{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Image: user.Image,
		Role:  user.Role,
	}
}

// CredentialVerifier validates email/password pairs against stored hashes.
// It is read-only: no lockout counters, no write side effects.
type CredentialVerifier struct {
	Store IdentityStore
}

func NewCredentialVerifier(store IdentityStore) *CredentialVerifier {
	return &CredentialVerifier{Store: store}
}

// Verify looks the user up by the exact stored email. Registration already
// normalizes emails at write time, so credential users are found under
// their lower-cased form.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*Identity, error) {
	if email == "" || password == "" {
		return nil, ErrCredentialsRequired
	}

	user, err := v.Store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.PasswordHash == nil {
		return nil, ErrNoPasswordSet
	}
	if user.Deactivated() {
		return nil, ErrAccountDeactivated
	}
	if !utils.CheckPassword(password, *user.PasswordHash) {
		return nil, ErrInvalidPassword
	}

	return IdentityOf(user), nil
}
