package models

import "time"

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// All lists every model owned by this service, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Transaction{},
		&Habit{},
		&HabitCompletion{},
		&Challenge{},
		&ChallengeParticipant{},
		&War{},
		&WarHistory{},
		&WarMemory{},
		&MiniWar{},
		&MiniWarParticipant{},
		&StreakMilestone{},
		&Notification{},
	}
}
