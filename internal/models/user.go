package models

type UserRole string

const (
	UserRoleAdmin       UserRole = "admin"
	UserRoleUser        UserRole = "user"
	UserRolePremiumUser UserRole = "premium_user"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleUser, UserRolePremiumUser:
		return true
	default:
		return false
	}
}

// User is the canonical identity record. Emails are stored lower-cased so
// the unique index doubles as the case-insensitive uniqueness guarantee.
// PasswordHash is nil for accounts created through an OAuth provider only.
type User struct {
	BaseModel
	Email          string          `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name           string          `json:"name" gorm:"type:varchar(100);not null"`
	PasswordHash   *string         `json:"-" gorm:"type:text"`
	Image          *string         `json:"image,omitempty" gorm:"type:text"`
	Role           UserRole        `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	IsActive       *bool           `json:"isActive,omitempty"`
	LinkedAccounts []LinkedAccount `json:"linkedAccounts,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Deactivated reports whether the account was explicitly disabled.
// A nil flag is treated as active.
func (u *User) Deactivated() bool {
	return u.IsActive != nil && !*u.IsActive
}

// PublicUser is the projection returned by registration and profile
// endpoints. It never carries the password hash.
type PublicUser struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Image     *string  `json:"image,omitempty"`
	Role      UserRole `json:"role"`
	CreatedAt string   `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Image:     u.Image,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
