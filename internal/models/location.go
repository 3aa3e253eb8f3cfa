package models

import (
	"time"

	"gorm.io/gorm"
)

// UserLocation is a user's last known position, mirrored from convoy
// location updates. One row per user.
type UserLocation struct {
	ID            uint           `gorm:"primaryKey" json:"-"`
	UserID        uint           `gorm:"uniqueIndex;not null" json:"user_id"`
	Latitude      float64        `gorm:"type:decimal(10,8);not null" json:"latitude"`
	Longitude     float64        `gorm:"type:decimal(11,8);not null" json:"longitude"`
	Heading       *float64       `json:"heading,omitempty"`
	Speed         *float64       `json:"speed,omitempty"`
	LastUpdatedAt time.Time      `gorm:"not null;index" json:"last_updated_at"`
	CreatedAt     time.Time      `json:"-"`
	UpdatedAt     time.Time      `json:"-"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (UserLocation) TableName() string {
	return "user_locations"
}
