package models

import (
	"time"

	"github.com/google/uuid"
)

// Session and VerificationToken exist for adapter compatibility with
// database-session deployments. The JWT session flow never reads or
// writes them.
type Session struct {
	BaseModel
	SessionToken string    `json:"-" gorm:"type:varchar(255);uniqueIndex;not null"`
	UserID       uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`
	Expires      time.Time `json:"expires" gorm:"not null"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

type VerificationToken struct {
	Identifier string    `json:"identifier" gorm:"type:varchar(255);primaryKey"`
	Token      string    `json:"-" gorm:"type:varchar(255);primaryKey"`
	Expires    time.Time `json:"expires" gorm:"not null"`
}

func (VerificationToken) TableName() string {
	return "verification_tokens"
}
