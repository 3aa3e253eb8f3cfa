package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Username       string         `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email          string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash   string         `gorm:"size:255" json:"-"`
	DisplayName    string         `gorm:"size:100" json:"display_name"`
	AvatarURL      string         `gorm:"size:512" json:"avatar_url"`
	ConvoysCreated int            `gorm:"not null;default:0" json:"convoys_created"`
	ConvoysJoined  int            `gorm:"not null;default:0" json:"convoys_joined"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	Location *UserLocation `gorm:"foreignKey:UserID" json:"location,omitempty"`
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
