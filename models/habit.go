// models/habit.go
package models

import "time"

// Habit is a user's recurring activity. Completing it feeds streaks, challenge
// scoring, sabotage counters and mini-war counters.
type Habit struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string     `gorm:"index;not null" json:"user_id"`
	Name            string     `gorm:"not null" json:"name"`
	ChallengeID     *string    `gorm:"index" json:"challenge_id,omitempty"`
	Active          bool       `gorm:"not null;default:true;index" json:"active"`
	CurrentStreak   int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak   int        `gorm:"not null;default:0" json:"longest_streak"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`

	Timestamps
}

// HabitCompletion is one check-off of a habit.
type HabitCompletion struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	HabitID     string    `gorm:"index;not null" json:"habit_id"`
	UserID      string    `gorm:"index;not null" json:"user_id"`
	CompletedAt time.Time `gorm:"not null;index" json:"completed_at"`
}
