package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"habit-wars/models"
	"habit-wars/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StreakService owns every write to habit and user streak fields and to
// streak milestone records. The interactive path and the scheduled jobs use
// the same calculator.
type StreakService struct {
	DB         *gorm.DB
	Location   *time.Location
	Multiplier int64
	Now        Clock
}

func NewStreakService(db *gorm.DB, loc *time.Location, multiplier int64) *StreakService {
	if loc == nil {
		loc = time.UTC
	}
	if multiplier <= 0 {
		multiplier = 2
	}
	return &StreakService{DB: db, Location: loc, Multiplier: multiplier}
}

// CheckHabitMilestone recomputes one habit's streak and awards the matching
// checkpoint if it has not been awarded before. It returns nil when nothing
// was awarded.
func (s *StreakService) CheckHabitMilestone(ctx context.Context, habitID string) (*models.StreakMilestone, error) {
	var awarded *models.StreakMilestone
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		habit, err := lockHabit(tx, habitID)
		if err != nil {
			return err
		}
		streak, err := s.RefreshHabitStreak(tx, habit)
		if err != nil {
			return err
		}
		awarded, err = s.AwardMilestone(tx, habit, streak)
		return err
	})
	if err != nil {
		return nil, err
	}
	return awarded, nil
}

// CheckStreakMilestones sweeps every active habit. Already-awarded
// checkpoints are skipped, so repeated sweeps are harmless.
func (s *StreakService) CheckStreakMilestones(ctx context.Context) (int, error) {
	var habitIDs []string
	if err := s.DB.WithContext(ctx).Model(&models.Habit{}).
		Where("active = ?", true).
		Pluck("id", &habitIDs).Error; err != nil {
		return 0, err
	}

	awarded := 0
	for _, id := range habitIDs {
		m, err := s.CheckHabitMilestone(ctx, id)
		if err != nil {
			utils.Logger.Error("milestone_check_failed", zap.String("habit_id", id), zap.Error(err))
			continue
		}
		if m != nil {
			awarded++
		}
	}
	return awarded, nil
}

// AwardMilestone awards streak's checkpoint for habit inside tx, once per
// (habit, checkpoint). The habit row must already be locked by the caller.
func (s *StreakService) AwardMilestone(tx *gorm.DB, habit *models.Habit, streak int) (*models.StreakMilestone, error) {
	length, ok := MilestoneFor(streak)
	if !ok {
		return nil, nil
	}

	var existing int64
	if err := tx.Model(&models.StreakMilestone{}).
		Where("habit_id = ? AND streak_length = ?", habit.ID, length).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, nil
	}

	points := int64(length) * s.Multiplier
	if err := tx.Model(&models.User{}).Where("id = ?", habit.UserID).
		Update("total_points", gorm.Expr("total_points + ?", points)).Error; err != nil {
		return nil, fmt.Errorf("award milestone points: %w", err)
	}

	milestone := &models.StreakMilestone{
		ID:            uuid.NewString(),
		UserID:        habit.UserID,
		HabitID:       habit.ID,
		StreakLength:  length,
		AchievedAt:    s.Now.now(),
		PointsAwarded: points,
	}
	if err := tx.Create(milestone).Error; err != nil {
		return nil, fmt.Errorf("record milestone: %w", err)
	}

	if err := notify(tx, habit.UserID, models.NotificationMilestone,
		fmt.Sprintf("🔥 %d-day streak!", length),
		fmt.Sprintf("%q hit %d days in a row. +%d points.", habit.Name, length, points),
		map[string]interface{}{"habit_id": habit.ID, "streak_length": length, "points": points},
	); err != nil {
		return nil, err
	}

	utils.MilestonesAwarded.WithLabelValues(strconv.Itoa(length)).Inc()
	utils.Logger.Info("milestone_awarded",
		zap.String("user_id", habit.UserID),
		zap.String("habit_id", habit.ID),
		zap.Int("streak_length", length),
	)
	return milestone, nil
}

// CheckDailyStreaks runs once per day. Every active habit's streak is
// recomputed, and any user with an active habit missing yesterday has their
// current streak reset. It returns how many users were reset.
func (s *StreakService) CheckDailyStreaks(ctx context.Context) (int, error) {
	var habits []models.Habit
	if err := s.DB.WithContext(ctx).Where("active = ?", true).Find(&habits).Error; err != nil {
		return 0, err
	}

	now := s.Now.now()
	today := startOfDay(now, s.Location)
	yesterday := today.AddDate(0, 0, -1)

	broken := make(map[string]bool)
	for i := range habits {
		habit := &habits[i]
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			completions, err := habitCompletions(tx, habit.ID)
			if err != nil {
				return err
			}
			if _, err := s.refreshHabit(tx, habit, completions, now); err != nil {
				return err
			}
			// Habits created today had no chance to be completed yesterday.
			if !habit.CreatedAt.Before(today) {
				return nil
			}
			if !CompletedOn(completions, yesterday, s.Location) {
				broken[habit.UserID] = true
			}
			return nil
		})
		if err != nil {
			utils.Logger.Error("daily_streak_habit_failed", zap.String("habit_id", habit.ID), zap.Error(err))
		}
	}

	reset := 0
	for userID := range broken {
		var wasReset bool
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			user, err := lockUser(tx, userID)
			if err != nil {
				return err
			}
			if user.CurrentStreak == 0 {
				return nil
			}
			previous := user.CurrentStreak
			if err := tx.Model(&models.User{}).Where("id = ?", userID).
				Update("current_streak", 0).Error; err != nil {
				return err
			}
			wasReset = true
			return notify(tx, userID, models.NotificationStreakBroken,
				"💔 Streak broken",
				fmt.Sprintf("You missed a habit yesterday. Your %d-day streak is over.", previous),
				map[string]interface{}{"previous_streak": previous},
			)
		})
		if err != nil {
			utils.Logger.Error("daily_streak_reset_failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if wasReset {
			reset++
		}
	}

	if reset > 0 {
		utils.StreaksBroken.Add(float64(reset))
	}
	return reset, nil
}

// RefreshHabitStreak recomputes habit's streak from its completions and
// stores it. It returns the fresh streak.
func (s *StreakService) RefreshHabitStreak(tx *gorm.DB, habit *models.Habit) (int, error) {
	completions, err := habitCompletions(tx, habit.ID)
	if err != nil {
		return 0, err
	}
	return s.refreshHabit(tx, habit, completions, s.Now.now())
}

func (s *StreakService) refreshHabit(tx *gorm.DB, habit *models.Habit, completions []time.Time, now time.Time) (int, error) {
	streak := CurrentStreak(completions, now, s.Location)
	longest := habit.LongestStreak
	if streak > longest {
		longest = streak
	}
	if streak == habit.CurrentStreak && longest == habit.LongestStreak {
		return streak, nil
	}

	if err := tx.Model(&models.Habit{}).Where("id = ?", habit.ID).Updates(map[string]interface{}{
		"current_streak": streak,
		"longest_streak": longest,
	}).Error; err != nil {
		return 0, fmt.Errorf("update habit streak: %w", err)
	}
	habit.CurrentStreak = streak
	habit.LongestStreak = longest
	return streak, nil
}

// RefreshUserStreak sets the user's current streak to the weakest streak
// across their active habits, so one neglected habit holds the whole streak
// back. LongestStreak only ever grows.
func (s *StreakService) RefreshUserStreak(tx *gorm.DB, userID string) (int, error) {
	user, err := lockUser(tx, userID)
	if err != nil {
		return 0, err
	}

	var habits []models.Habit
	if err := tx.Where("user_id = ? AND active = ?", userID, true).Find(&habits).Error; err != nil {
		return 0, err
	}

	now := s.Now.now()
	current := 0
	for i := range habits {
		completions, err := habitCompletions(tx, habits[i].ID)
		if err != nil {
			return 0, err
		}
		streak := CurrentStreak(completions, now, s.Location)
		if i == 0 || streak < current {
			current = streak
		}
	}

	longest := user.LongestStreak
	if current > longest {
		longest = current
	}
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"current_streak": current,
		"longest_streak": longest,
	}).Error; err != nil {
		return 0, fmt.Errorf("update user streak: %w", err)
	}
	return current, nil
}

func habitCompletions(tx *gorm.DB, habitID string) ([]time.Time, error) {
	var rows []models.HabitCompletion
	if err := tx.Select("completed_at").
		Where("habit_id = ?", habitID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load completions: %w", err)
	}
	completions := make([]time.Time, len(rows))
	for i, r := range rows {
		completions[i] = r.CompletedAt
	}
	return completions, nil
}

func lockHabit(tx *gorm.DB, habitID string) (*models.Habit, error) {
	var habit models.Habit
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&habit, "id = ?", habitID).Error; err != nil {
		return nil, notFound(err, "habit")
	}
	return &habit, nil
}
