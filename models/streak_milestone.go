package models

import (
	"time"
)

// MilestoneLengths are the fixed streak checkpoints that pay a one-time bonus.
var MilestoneLengths = []int{7, 14, 30, 60, 100, 365}

// StreakMilestone records an awarded checkpoint. One row per (habit, length):
// its existence is what prevents re-awarding.
type StreakMilestone struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string    `gorm:"index;not null" json:"user_id"`
	HabitID       string    `gorm:"uniqueIndex:idx_habit_milestone;not null" json:"habit_id"`
	StreakLength  int       `gorm:"uniqueIndex:idx_habit_milestone;not null" json:"streak_length"`
	AchievedAt    time.Time `gorm:"not null" json:"achieved_at"`
	PointsAwarded int64     `gorm:"not null" json:"points_awarded"`
}
