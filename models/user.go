// models/user.go
package models

import (
	"time"
)

// User is the local snapshot of a profile-service user plus the economy state
// owned by this service. Identity fields are refreshed by the user sync worker;
// balances, streaks and points are never touched by the sync.
type User struct {
	ID        string  `gorm:"primaryKey;type:varchar(64)" json:"id"` // profile service external id
	Username  string  `gorm:"index;not null" json:"username"`
	AvatarURL *string `json:"avatar_url,omitempty"`

	// Economy. RewardsBalance == SeedBalance + sum(transactions.amount)
	RewardsBalance int64 `gorm:"not null;default:0" json:"rewards_balance"`
	SeedBalance    int64 `gorm:"not null;default:0" json:"seed_balance"`

	// Streaks & points
	CurrentStreak int   `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak int   `gorm:"not null;default:0" json:"longest_streak"`
	TotalPoints   int64 `gorm:"not null;default:0" json:"total_points"`

	// ProfileUpdatedAt is the profile service's updated_at for this user. Only
	// the sync worker writes it; it is the sync cursor.
	ProfileUpdatedAt *time.Time `gorm:"index" json:"-"`

	Timestamps
}

// RemoteUser matches the JSON user payload of the profile sync service.
type RemoteUser struct {
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	AccountStatus     string    `json:"account_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
