package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"habit-wars/models"
	"habit-wars/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	JobDailyStreaks      = "daily_streaks"
	JobWeeklyMilestones  = "weekly_milestones"
	JobMonthlyChallenges = "monthly_challenges"
	JobExpireWars        = "expire_wars"
)

// ReportArchiver stores a settlement report and returns where it went.
type ReportArchiver interface {
	Archive(ctx context.Context, key string, body []byte) (string, error)
}

// JobFunc is one batch run over everything relevant as of now.
type JobFunc func(ctx context.Context) error

// SettlementReport is archived for every settled challenge.
type SettlementReport struct {
	ChallengeID  string                        `json:"challenge_id"`
	Name         string                        `json:"name"`
	SettledAt    time.Time                     `json:"settled_at"`
	WinnerID     *string                       `json:"winner_id,omitempty"`
	RewardAmount int64                         `json:"reward_amount"`
	Standings    []models.ChallengeParticipant `json:"standings"`
}

// SettlementService holds the scheduled batch jobs. Each job is a plain
// function so the scheduler, the CLI and the admin API all run the same code.
type SettlementService struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Streaks  *StreakService
	Wars     *WarService
	Archiver ReportArchiver
	Now      Clock
}

func NewSettlementService(db *gorm.DB, ledger *LedgerService, streaks *StreakService, wars *WarService) *SettlementService {
	return &SettlementService{DB: db, Ledger: ledger, Streaks: streaks, Wars: wars}
}

// Jobs lists every job by name.
func (s *SettlementService) Jobs() map[string]JobFunc {
	return map[string]JobFunc{
		JobDailyStreaks: func(ctx context.Context) error {
			n, err := s.Streaks.CheckDailyStreaks(ctx)
			utils.Logger.Info("daily_streaks_checked", zap.Int("users_reset", n))
			return err
		},
		JobWeeklyMilestones: func(ctx context.Context) error {
			n, err := s.Streaks.CheckStreakMilestones(ctx)
			utils.Logger.Info("milestones_swept", zap.Int("awarded", n))
			return err
		},
		JobMonthlyChallenges: func(ctx context.Context) error {
			n, err := s.SettleMonthlyChallenges(ctx)
			utils.Logger.Info("challenges_settled", zap.Int("settled", n))
			return err
		},
		JobExpireWars: func(ctx context.Context) error {
			n, err := s.Wars.ExpirePendingWars(ctx)
			utils.Logger.Info("wars_expired", zap.Int("expired", n))
			return err
		},
	}
}

// RunJob runs one named job to completion.
func (s *SettlementService) RunJob(ctx context.Context, name string) error {
	job, ok := s.Jobs()[name]
	if !ok {
		return fmt.Errorf("%w: job %q", ErrNotFound, name)
	}

	start := time.Now()
	err := job(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		utils.Logger.Error("job_failed", zap.String("job", name), zap.Error(err))
	}
	utils.JobRuns.WithLabelValues(name, status).Inc()
	utils.Logger.Info("job_finished",
		zap.String("job", name),
		zap.String("status", status),
		zap.Duration("took", time.Since(start)),
	)
	return err
}

// JobNames returns the job names in a stable order.
func (s *SettlementService) JobNames() []string {
	names := make([]string, 0, 4)
	for name := range s.Jobs() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SettleMonthlyChallenges closes every active challenge whose end has
// passed. The top scorer wins the reward when they scored at all; everyone
// else gets the participation share.
func (s *SettlementService) SettleMonthlyChallenges(ctx context.Context) (int, error) {
	var active []models.Challenge
	if err := s.DB.WithContext(ctx).
		Where("status = ?", models.ChallengeStatusActive).
		Find(&active).Error; err != nil {
		return 0, err
	}

	now := s.Now.now()
	settled := 0
	for _, candidate := range active {
		if candidate.EndsAt.After(now) {
			continue
		}

		report, err := s.settleChallenge(ctx, candidate.ID, now)
		if err != nil {
			utils.Logger.Error("challenge_settlement_failed", zap.String("challenge_id", candidate.ID), zap.Error(err))
			continue
		}
		if report == nil {
			continue
		}
		settled++
		s.archive(ctx, report)
	}
	return settled, nil
}

func (s *SettlementService) settleChallenge(ctx context.Context, challengeID string, now time.Time) (*SettlementReport, error) {
	var report *SettlementReport
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var challenge models.Challenge
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&challenge, "id = ?", challengeID).Error; err != nil {
			return notFound(err, "challenge")
		}
		if challenge.Status != models.ChallengeStatusActive {
			return nil
		}

		var participants []models.ChallengeParticipant
		if err := tx.Where("challenge_id = ?", challenge.ID).Find(&participants).Error; err != nil {
			return err
		}
		rankParticipants(participants)

		if len(participants) > 0 && participants[0].Points > 0 {
			winner := participants[0].UserID
			challenge.WinnerID = &winner
			if challenge.RewardAmount > 0 {
				if err := s.Ledger.AwardChallengeWinner(tx, challenge.ID, winner, challenge.RewardAmount); err != nil {
					return err
				}
			}
		}

		challenge.Status = models.ChallengeStatusCompleted
		challenge.SettledAt = &now
		if err := tx.Omit(clause.Associations).Save(&challenge).Error; err != nil {
			return fmt.Errorf("close challenge: %w", err)
		}

		for i, p := range participants {
			title := "🏁 Challenge finished"
			msg := fmt.Sprintf("%q is over. You placed #%d with %d points.", challenge.Name, i+1, p.Points)
			if challenge.WinnerID != nil && *challenge.WinnerID == p.UserID {
				title = "🏆 Challenge won!"
				if challenge.RewardAmount > 0 {
					msg = fmt.Sprintf("You won %q and earned %s.", challenge.Name, coins(challenge.RewardAmount))
				}
			}
			if err := notify(tx, p.UserID, models.NotificationChallengeResult, title, msg,
				map[string]interface{}{"challenge_id": challenge.ID, "rank": i + 1, "points": p.Points},
			); err != nil {
				return err
			}
		}

		report = &SettlementReport{
			ChallengeID:  challenge.ID,
			Name:         challenge.Name,
			SettledAt:    now,
			WinnerID:     challenge.WinnerID,
			RewardAmount: challenge.RewardAmount,
			Standings:    participants,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *SettlementService) archive(ctx context.Context, report *SettlementReport) {
	if s.Archiver == nil {
		return
	}
	body, err := json.Marshal(report)
	if err != nil {
		utils.Logger.Error("report_marshal_failed", zap.String("challenge_id", report.ChallengeID), zap.Error(err))
		return
	}
	key := fmt.Sprintf("settlements/%s/%s.json", report.SettledAt.Format("2006-01"), report.ChallengeID)
	if _, err := s.Archiver.Archive(ctx, key, body); err != nil {
		utils.Logger.Warn("report_archive_failed", zap.String("challenge_id", report.ChallengeID), zap.Error(err))
	}
}
