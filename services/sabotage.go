package services

import (
	"context"
	"fmt"
	"time"

	"habit-wars/models"
	"habit-wars/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MinSabotageIntensity = 1
	MaxSabotageIntensity = 5
)

// SabotageProgress is reported after every recorded habit.
type SabotageProgress struct {
	SabotageCount    int  `json:"sabotage_count"`
	PenaltiesApplied int  `json:"penalties_applied"`
	NextPenaltyAt    int  `json:"next_penalty_at"`
	PenaltyTriggered bool `json:"penalty_triggered"`
}

// SabotageReport summarises a finished sabotage run.
type SabotageReport struct {
	Duration       time.Duration `json:"-"`
	TotalHabits    int           `json:"total_habits"`
	TotalPenalties int           `json:"total_penalties"`
}

// SabotageService lets the challenger of an accepted war convert extra habit
// completions into penalty events against the defender.
type SabotageService struct {
	DB  *gorm.DB
	Now Clock
}

func NewSabotageService(db *gorm.DB) *SabotageService {
	return &SabotageService{DB: db}
}

// PenaltyThreshold is the number of completions per penalty at an intensity.
func PenaltyThreshold(intensity int) int {
	return 6 - intensity
}

func (s *SabotageService) Start(ctx context.Context, warID, callerID string, intensity int) (*models.War, error) {
	if intensity < MinSabotageIntensity || intensity > MaxSabotageIntensity {
		return nil, fmt.Errorf("%w: intensity must be between %d and %d, got %d",
			ErrOutOfRange, MinSabotageIntensity, MaxSabotageIntensity, intensity)
	}

	var war *models.War
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		war, err = lockWar(tx, warID)
		if err != nil {
			return err
		}
		if war.Status != models.WarStatusAccepted {
			return fmt.Errorf("%w: sabotage needs an accepted war, war is %s", ErrInvalidState, war.Status)
		}
		if war.ChallengerID != callerID {
			return fmt.Errorf("%w: only the challenger can sabotage", ErrForbidden)
		}
		if war.Sabotage.Active {
			return fmt.Errorf("%w: sabotage already active", ErrInvalidState)
		}

		now := s.Now.now()
		war.Sabotage = models.SabotageState{
			Active:    true,
			StartedAt: &now,
			Intensity: intensity,
		}
		if err := tx.Save(war).Error; err != nil {
			return fmt.Errorf("start sabotage: %w", err)
		}

		return notify(tx, war.DefenderID, models.NotificationSabotageStarted,
			"😈 You are being sabotaged",
			fmt.Sprintf("Your opponent started sabotage at intensity %d. Every %d of their habits costs you a penalty.",
				intensity, PenaltyThreshold(intensity)),
			map[string]interface{}{"war_id": war.ID, "intensity": intensity},
		)
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("sabotage_started", zap.String("war_id", warID), zap.Int("intensity", intensity))
	return war, nil
}

// RecordHabit counts one challenger completion. The counter is read,
// incremented and compared under the war row lock so each threshold fires
// exactly one penalty.
func (s *SabotageService) RecordHabit(ctx context.Context, warID, callerID, habitID string) (*SabotageProgress, error) {
	if habitID == "" {
		return nil, fmt.Errorf("%w: habit_id is required", ErrInvalidInput)
	}

	progress := &SabotageProgress{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		war, err := lockWar(tx, warID)
		if err != nil {
			return err
		}
		if !war.Sabotage.Active {
			return fmt.Errorf("%w: sabotage is not active", ErrInvalidState)
		}
		if war.ChallengerID != callerID {
			return fmt.Errorf("%w: only the challenger feeds sabotage", ErrForbidden)
		}

		var habit models.Habit
		if err := tx.First(&habit, "id = ?", habitID).Error; err != nil {
			return notFound(err, "habit")
		}
		if habit.UserID != callerID {
			return fmt.Errorf("%w: habit belongs to another user", ErrForbidden)
		}

		st := &war.Sabotage
		st.HabitsCompleted++
		threshold := PenaltyThreshold(st.Intensity)
		penaltiesToApply := st.HabitsCompleted / threshold
		triggered := penaltiesToApply > st.PenaltiesApplied
		if triggered {
			st.PenaltiesApplied = penaltiesToApply
		}

		if err := tx.Save(war).Error; err != nil {
			return fmt.Errorf("record sabotage habit: %w", err)
		}

		*progress = SabotageProgress{
			SabotageCount:    st.HabitsCompleted,
			PenaltiesApplied: st.PenaltiesApplied,
			NextPenaltyAt:    (st.PenaltiesApplied + 1) * threshold,
			PenaltyTriggered: triggered,
		}

		if !triggered {
			return nil
		}
		return notify(tx, war.DefenderID, models.NotificationSabotagePenalty,
			"💣 Sabotage penalty!",
			fmt.Sprintf("Your opponent crossed %d completions. Penalty #%d is yours.", st.HabitsCompleted, st.PenaltiesApplied),
			map[string]interface{}{"war_id": war.ID, "penalty_number": st.PenaltiesApplied, "habits_completed": st.HabitsCompleted},
		)
	})
	if err != nil {
		return nil, err
	}

	if progress.PenaltyTriggered {
		utils.SabotagePenalties.Inc()
		utils.Logger.Info("sabotage_penalty",
			zap.String("war_id", warID),
			zap.Int("penalties_applied", progress.PenaltiesApplied),
		)
	}
	return progress, nil
}

// End stops an active sabotage and keeps its counters for the report.
// callerID must be the challenger; an empty callerID means the system.
func (s *SabotageService) End(ctx context.Context, warID, callerID string) (*SabotageReport, error) {
	report := &SabotageReport{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		war, err := lockWar(tx, warID)
		if err != nil {
			return err
		}
		if !war.Sabotage.Active {
			return fmt.Errorf("%w: sabotage is not active", ErrInvalidState)
		}
		if callerID != "" && war.ChallengerID != callerID {
			return fmt.Errorf("%w: only the challenger can end sabotage", ErrForbidden)
		}

		now := s.Now.now()
		st := &war.Sabotage
		st.Active = false
		st.EndedAt = &now
		if err := tx.Save(war).Error; err != nil {
			return fmt.Errorf("end sabotage: %w", err)
		}

		if st.StartedAt != nil {
			report.Duration = now.Sub(*st.StartedAt)
		}
		report.TotalHabits = st.HabitsCompleted
		report.TotalPenalties = st.PenaltiesApplied

		return notify(tx, war.DefenderID, models.NotificationSabotageEnded,
			"😮‍💨 Sabotage over",
			fmt.Sprintf("The sabotage ended after %d penalties.", st.PenaltiesApplied),
			map[string]interface{}{"war_id": war.ID, "total_penalties": st.PenaltiesApplied},
		)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
