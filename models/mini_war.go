// models/mini_war.go
package models

import "time"

type MiniWarStatus string

const (
	MiniWarStatusWaiting   MiniWarStatus = "waiting"
	MiniWarStatusActive    MiniWarStatus = "active"
	MiniWarStatusCompleted MiniWarStatus = "completed"
	MiniWarStatusCancelled MiniWarStatus = "cancelled"
)

// MiniWar is a short, time-boxed, winner-take-all competition for up to 8 players.
type MiniWar struct {
	ID                   string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatorID            string        `gorm:"index;not null" json:"creator_id"`
	Name                 string        `gorm:"not null" json:"name"`
	Slug                 string        `gorm:"index" json:"slug"`
	MaxParticipants      int           `gorm:"not null" json:"max_participants"`
	Stakes               int64         `gorm:"not null;default:0" json:"stakes"`
	IsPublic             bool          `gorm:"not null;default:false" json:"is_public"`
	Status               MiniWarStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	InviteCode           string        `gorm:"type:varchar(6);uniqueIndex;not null" json:"invite_code"`
	WarStartedAt         *time.Time    `json:"war_started_at,omitempty"`
	WarEndedAt           *time.Time    `json:"war_ended_at,omitempty"`
	WinnerID             *string       `json:"winner_id,omitempty"`
	TotalHabitsCompleted int           `gorm:"not null;default:0" json:"total_habits_completed"`

	Participants []MiniWarParticipant `gorm:"foreignKey:MiniWarID" json:"participants,omitempty"`

	Timestamps
}

// MiniWarParticipant holds per-user counters inside a mini war.
type MiniWarParticipant struct {
	ID               string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MiniWarID        string     `gorm:"uniqueIndex:idx_mini_war_user;not null" json:"mini_war_id"`
	UserID           string     `gorm:"uniqueIndex:idx_mini_war_user;not null" json:"user_id"`
	HabitsCompleted  int        `gorm:"not null;default:0" json:"habits_completed"`
	PointsEarned     int64      `gorm:"not null;default:0" json:"points_earned"`
	JoinedAt         time.Time  `gorm:"not null" json:"joined_at"`
	LastCompletionAt *time.Time `json:"last_completion_at,omitempty"`
}
