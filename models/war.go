// models/war.go
package models

import (
	"time"
)

type WarStatus string

const (
	WarStatusPending   WarStatus = "pending"
	WarStatusAccepted  WarStatus = "accepted"
	WarStatusDeclined  WarStatus = "declined"
	WarStatusExpired   WarStatus = "expired"
	WarStatusCompleted WarStatus = "completed"
)

// WarResult is only set once a war is completed
type WarResult string

const (
	WarResultNone      WarResult = ""
	WarResultCompleted WarResult = "completed" // decided, winner/loser set
	WarResultTie       WarResult = "tie"
)

// SabotageState is embedded on War (columns prefixed sabotage_).
// Values are kept after the sabotage ends for the final report.
type SabotageState struct {
	Active           bool       `gorm:"not null;default:false" json:"active"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	Intensity        int        `gorm:"not null;default:0" json:"intensity"` // 1..5 while active
	HabitsCompleted  int        `gorm:"not null;default:0" json:"habits_completed"`
	PenaltiesApplied int        `gorm:"not null;default:0" json:"penalties_applied"`
}

// War is a 1v1 wager tied to a challenge scoreboard.
type War struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChallengerID string    `gorm:"index:idx_war_triple;not null" json:"challenger_id"`
	DefenderID   string    `gorm:"index:idx_war_triple;not null" json:"defender_id"`
	ChallengeID  string    `gorm:"index:idx_war_triple;not null" json:"challenge_id"`
	Stakes       int64     `gorm:"not null" json:"stakes"`
	Status       WarStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Result       WarResult `gorm:"type:varchar(16)" json:"result,omitempty"`
	Taunt        string    `gorm:"type:text" json:"taunt,omitempty"`

	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	WarStartedAt *time.Time `json:"war_started_at,omitempty"`
	WarEndedAt   *time.Time `json:"war_ended_at,omitempty"`

	WinnerID         *string `json:"winner_id,omitempty"`
	LoserID          *string `json:"loser_id,omitempty"`
	ChallengerPoints int64   `gorm:"not null;default:0" json:"challenger_points"`
	DefenderPoints   int64   `gorm:"not null;default:0" json:"defender_points"`

	Sabotage SabotageState `gorm:"embedded;embeddedPrefix:sabotage_" json:"sabotage"`

	Timestamps
}

// Involves reports whether userID is one of the two sides.
func (w *War) Involves(userID string) bool {
	return w.ChallengerID == userID || w.DefenderID == userID
}

// WarHistory is the immutable settlement snapshot, one per settled war.
type WarHistory struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	WarID        string    `gorm:"uniqueIndex;not null" json:"war_id"`
	ChallengeID  string    `gorm:"index;not null" json:"challenge_id"`
	ChallengerID string    `gorm:"index;not null" json:"challenger_id"`
	DefenderID   string    `gorm:"index;not null" json:"defender_id"`
	WinnerID     *string   `json:"winner_id,omitempty"`
	LoserID      *string   `json:"loser_id,omitempty"`
	WinnerPoints int64     `json:"winner_points"`
	LoserPoints  int64     `json:"loser_points"`
	Stakes       int64     `json:"stakes"`
	WarDuration  int       `json:"war_duration"` // whole days, rounded up
	IsTie        bool      `json:"is_tie"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// WarMemory is an informational per-participant record consumed by the
// profiling collaborator. Append-only.
type WarMemory struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	WarID      string    `gorm:"index;not null" json:"war_id"`
	UserID     string    `gorm:"index;not null" json:"user_id"`
	OpponentID string    `gorm:"not null" json:"opponent_id"`
	Outcome    string    `gorm:"type:varchar(8);not null" json:"outcome"` // won | lost | tied
	Summary    string    `gorm:"type:text" json:"summary"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
