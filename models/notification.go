// models/notification.go
package models

import "time"

const (
	NotificationWarDeclared     = "war_declared"
	NotificationWarAccepted     = "war_accepted"
	NotificationWarDeclined     = "war_declined"
	NotificationWarCompleted    = "war_completed"
	NotificationWarExpired      = "war_expired"
	NotificationSabotageStarted = "sabotage_started"
	NotificationSabotagePenalty = "sabotage_penalty"
	NotificationSabotageEnded   = "sabotage_ended"
	NotificationMilestone       = "streak_milestone"
	NotificationStreakBroken    = "streak_broken"
	NotificationMiniWarEnded    = "mini_war_ended"
	NotificationChallengeResult = "challenge_settled"
)

// Notification is an outbox row. It is written in the same transaction as the
// state change that caused it and relayed to the sink by the outbox worker.
type Notification struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string     `gorm:"index;not null" json:"user"`
	Type        string     `gorm:"type:varchar(32);not null" json:"type"`
	Title       string     `gorm:"not null" json:"title"`
	Message     string     `gorm:"type:text" json:"message"`
	Data        string     `gorm:"type:text" json:"data,omitempty"` // JSON object
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at,omitempty"`
}
