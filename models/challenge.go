// models/challenge.go
package models

import "time"

const (
	ChallengeStatusActive    = "active"
	ChallengeStatusCompleted = "completed"
)

// Challenge is a shared, time-boxed habit competition. Its participant points
// are the scoreboard that wars are settled against.
type Challenge struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name         string     `gorm:"not null" json:"name"`
	CreatorID    string     `gorm:"index;not null" json:"creator_id"`
	Status       string     `gorm:"type:varchar(16);not null;default:'active';index" json:"status"` // active | completed
	RewardAmount int64      `gorm:"not null;default:0" json:"reward_amount"`
	StartsAt     time.Time  `gorm:"not null" json:"starts_at"`
	EndsAt       time.Time  `gorm:"not null;index" json:"ends_at"`
	WinnerID     *string    `json:"winner_id,omitempty"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`

	Participants []ChallengeParticipant `gorm:"foreignKey:ChallengeID" json:"participants,omitempty"`

	Timestamps
}

// ChallengeParticipant holds one user's score in a challenge.
type ChallengeParticipant struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChallengeID string    `gorm:"uniqueIndex:idx_challenge_user;not null" json:"challenge_id"`
	UserID      string    `gorm:"uniqueIndex:idx_challenge_user;not null" json:"user_id"`
	Points      int64     `gorm:"not null;default:0" json:"points"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`
}
