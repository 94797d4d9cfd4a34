package services

import (
	"context"
	"fmt"

	"habit-wars/models"

	"gorm.io/gorm"
)

// Scoreboard reports challenge points per participant. Users without a score
// are reported as zero.
type Scoreboard interface {
	Points(ctx context.Context, challengeID string, userIDs ...string) (map[string]int64, error)
}

// ChallengeScoreboard reads points from challenge_participants.
type ChallengeScoreboard struct {
	DB *gorm.DB
}

func NewChallengeScoreboard(db *gorm.DB) *ChallengeScoreboard {
	return &ChallengeScoreboard{DB: db}
}

func (s *ChallengeScoreboard) Points(ctx context.Context, challengeID string, userIDs ...string) (map[string]int64, error) {
	var rows []models.ChallengeParticipant
	if err := s.DB.WithContext(ctx).
		Where("challenge_id = ? AND user_id IN ?", challengeID, userIDs).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scoreboard query: %w", err)
	}

	points := make(map[string]int64, len(userIDs))
	for _, id := range userIDs {
		points[id] = 0
	}
	for _, r := range rows {
		points[r.UserID] = r.Points
	}
	return points, nil
}
