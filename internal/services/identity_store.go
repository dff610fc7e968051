package services

import (
	"context"
	"errors"
	"strings"

	"github.com/authgate/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdentityStore is the bridge between the authentication core and the
// persistent user/account tables. Lookups return (nil, nil) when no row
// matches; writes surface uniqueness violations as ErrDuplicateEmail or
// ErrDuplicateLink instead of raw driver errors.
type IdentityStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	InsertUser(ctx context.Context, user *models.User) error
	CreateUserWithAccount(ctx context.Context, user *models.User, account *models.LinkedAccount) error
	InsertLinkedAccount(ctx context.Context, account *models.LinkedAccount) error
	FindLinkedAccount(ctx context.Context, userID uuid.UUID, provider models.ProviderType, providerAccountID string) (*models.LinkedAccount, error)
	ListLinkedAccounts(ctx context.Context, userID uuid.UUID) ([]models.LinkedAccount, error)
	DeleteLinkedAccount(ctx context.Context, userID uuid.UUID, accountID uuid.UUID) error
	UpdateUserImage(ctx context.Context, userID uuid.UUID, url string) error
}

type GormIdentityStore struct {
	DB *gorm.DB
}

func NewIdentityStore(db *gorm.DB) *GormIdentityStore {
	return &GormIdentityStore{DB: db}
}

func (s *GormIdentityStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormIdentityStore) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormIdentityStore) InsertUser(ctx context.Context, user *models.User) error {
	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// CreateUserWithAccount creates a new user and its first linked account in
// one transaction so a failure at either insert leaves no partial state.
// The unique-email index is the final arbiter when two callbacks race to
// create the same user; the loser gets ErrDuplicateEmail.
func (s *GormIdentityStore) CreateUserWithAccount(ctx context.Context, user *models.User, account *models.LinkedAccount) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateEmail
			}
			return err
		}
		account.UserID = user.ID
		if err := tx.Create(account).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateLink
			}
			return err
		}
		return nil
	})
	return err
}

func (s *GormIdentityStore) InsertLinkedAccount(ctx context.Context, account *models.LinkedAccount) error {
	if err := s.DB.WithContext(ctx).Create(account).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateLink
		}
		return err
	}
	return nil
}

func (s *GormIdentityStore) FindLinkedAccount(ctx context.Context, userID uuid.UUID, provider models.ProviderType, providerAccountID string) (*models.LinkedAccount, error) {
	var account models.LinkedAccount
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND provider_account_id = ?", userID, provider, providerAccountID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *GormIdentityStore) ListLinkedAccounts(ctx context.Context, userID uuid.UUID) ([]models.LinkedAccount, error) {
	var accounts []models.LinkedAccount
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&accounts).Error
	return accounts, err
}

func (s *GormIdentityStore) DeleteLinkedAccount(ctx context.Context, userID uuid.UUID, accountID uuid.UUID) error {
	return s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", accountID, userID).
		Delete(&models.LinkedAccount{}).Error
}

func (s *GormIdentityStore) UpdateUserImage(ctx context.Context, userID uuid.UUID, url string) error {
	return s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("image", url).Error
}

// isDuplicateKey recognizes unique-constraint violations from both the
// postgres and sqlite drivers.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
