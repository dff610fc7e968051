package models

import "github.com/google/uuid"

type ProviderType string

const (
	ProviderTypeGoogle      ProviderType = "google"
	ProviderTypeGitHub      ProviderType = "github"
	ProviderTypeCredentials ProviderType = "credentials"
)

// ImageBearing reports whether sign-ins from this provider carry a profile
// picture worth backfilling onto the user record.
func (p ProviderType) ImageBearing() bool {
	return p == ProviderTypeGoogle || p == ProviderTypeGitHub
}

// LinkedAccount binds an external provider identity to a local user.
// The (provider, provider_account_id) pair is globally unique: one external
// identity can never be linked to two local users. Rows are removed with
// the owning user.
type LinkedAccount struct {
	BaseModel
	UserID            uuid.UUID    `json:"userId" gorm:"type:uuid;not null;index:idx_linked_accounts_user_link,priority:1"`
	Type              string       `json:"type" gorm:"type:varchar(20);not null;default:'oauth'"`
	Provider          ProviderType `json:"provider" gorm:"type:varchar(50);not null;uniqueIndex:idx_linked_accounts_provider_identity,priority:1;index:idx_linked_accounts_user_link,priority:2"`
	ProviderAccountID string       `json:"providerAccountId" gorm:"type:varchar(255);not null;uniqueIndex:idx_linked_accounts_provider_identity,priority:2;index:idx_linked_accounts_user_link,priority:3"`
	RefreshToken      *string      `json:"-" gorm:"type:text"`
	AccessToken       *string      `json:"-" gorm:"type:text"`
	ExpiresAt         *int64       `json:"expiresAt,omitempty"`
	TokenType         *string      `json:"tokenType,omitempty" gorm:"type:varchar(50)"`
	Scope             *string      `json:"scope,omitempty" gorm:"type:varchar(500)"`
	IDToken           *string      `json:"-" gorm:"type:text"`
	SessionState      *string      `json:"-" gorm:"type:varchar(255)"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (LinkedAccount) TableName() string {
	return "linked_accounts"
}
