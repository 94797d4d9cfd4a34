package services

import (
	"context"
	"fmt"
	"strings"

	"habit-wars/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CompletionResult is returned after a habit check-off.
type CompletionResult struct {
	Completion  models.HabitCompletion  `json:"completion"`
	HabitStreak int                     `json:"habit_streak"`
	UserStreak  int                     `json:"user_streak"`
	Milestone   *models.StreakMilestone `json:"milestone,omitempty"`
}

// StreakSummary is a user's streak overview.
type StreakSummary struct {
	CurrentStreak int            `json:"current_streak"`
	LongestStreak int            `json:"longest_streak"`
	TotalPoints   int64          `json:"total_points"`
	Habits        []models.Habit `json:"habits"`
}

type HabitService struct {
	DB               *gorm.DB
	Streaks          *StreakService
	CompletionPoints int64
	Now              Clock
}

func NewHabitService(db *gorm.DB, streaks *StreakService, completionPoints int64) *HabitService {
	return &HabitService{DB: db, Streaks: streaks, CompletionPoints: completionPoints}
}

// CreateHabit adds an active habit. A user cannot have two active habits with
// the same name in the same challenge.
func (s *HabitService) CreateHabit(ctx context.Context, userID, name string, challengeID *string) (*models.Habit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: habit name is required", ErrInvalidInput)
	}
	if challengeID != nil && *challengeID == "" {
		challengeID = nil
	}

	now := s.Now.now()
	habit := &models.Habit{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		ChallengeID: challengeID,
		Active:      true,
		Timestamps:  models.Timestamps{CreatedAt: now, UpdatedAt: now},
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUser(tx, userID); err != nil {
			return err
		}

		dup := tx.Model(&models.Habit{}).Where("user_id = ? AND name = ? AND active = ?", userID, name, true)
		if challengeID != nil {
			var challenge models.Challenge
			if err := tx.First(&challenge, "id = ?", *challengeID).Error; err != nil {
				return notFound(err, "challenge")
			}
			dup = dup.Where("challenge_id = ?", *challengeID)
		} else {
			dup = dup.Where("challenge_id IS NULL")
		}

		var count int64
		if err := dup.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: habit %q already exists", ErrConflict, name)
		}

		return tx.Create(habit).Error
	})
	if err != nil {
		return nil, err
	}
	return habit, nil
}

// CompleteHabit records a check-off, scores it in the habit's challenge,
// refreshes habit and user streaks and awards any milestone reached.
func (s *HabitService) CompleteHabit(ctx context.Context, habitID, userID string) (*CompletionResult, error) {
	result := &CompletionResult{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		habit, err := lockHabit(tx, habitID)
		if err != nil {
			return err
		}
		if habit.UserID != userID {
			return fmt.Errorf("%w: habit belongs to another user", ErrForbidden)
		}
		if !habit.Active {
			return fmt.Errorf("%w: habit is archived", ErrInvalidState)
		}

		now := s.Now.now()
		completion := models.HabitCompletion{
			ID:          uuid.NewString(),
			HabitID:     habit.ID,
			UserID:      userID,
			CompletedAt: now,
		}
		if err := tx.Create(&completion).Error; err != nil {
			return fmt.Errorf("record completion: %w", err)
		}
		if err := tx.Model(&models.Habit{}).Where("id = ?", habit.ID).
			Update("last_completed_at", now).Error; err != nil {
			return err
		}

		if habit.ChallengeID != nil {
			if err := tx.Model(&models.ChallengeParticipant{}).
				Where("challenge_id = ? AND user_id = ?", *habit.ChallengeID, userID).
				Update("points", gorm.Expr("points + ?", s.CompletionPoints)).Error; err != nil {
				return fmt.Errorf("score completion: %w", err)
			}
		}

		streak, err := s.Streaks.RefreshHabitStreak(tx, habit)
		if err != nil {
			return err
		}
		milestone, err := s.Streaks.AwardMilestone(tx, habit, streak)
		if err != nil {
			return err
		}
		userStreak, err := s.Streaks.RefreshUserStreak(tx, userID)
		if err != nil {
			return err
		}

		*result = CompletionResult{
			Completion:  completion,
			HabitStreak: streak,
			UserStreak:  userStreak,
			Milestone:   milestone,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *HabitService) StreakSummary(ctx context.Context, userID string) (*StreakSummary, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user")
	}

	var habits []models.Habit
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at ASC").
		Find(&habits).Error; err != nil {
		return nil, err
	}

	return &StreakSummary{
		CurrentStreak: user.CurrentStreak,
		LongestStreak: user.LongestStreak,
		TotalPoints:   user.TotalPoints,
		Habits:        habits,
	}, nil
}
