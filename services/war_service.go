package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habit-wars/models"
	"habit-wars/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WarOutcome is what CompleteWar reports back. Points are equal on a tie.
type WarOutcome struct {
	Result       models.WarResult `json:"result"`
	WinnerID     *string          `json:"winner_id,omitempty"`
	LoserID      *string          `json:"loser_id,omitempty"`
	WinnerPoints int64            `json:"winner_points"`
	LoserPoints  int64            `json:"loser_points"`
}

type WarService struct {
	DB         *gorm.DB
	Ledger     *LedgerService
	Funding    FundingPolicy
	Scoreboard Scoreboard
	Taunts     TauntGenerator
	Expiry     time.Duration
	Now        Clock
}

func NewWarService(db *gorm.DB, ledger *LedgerService, funding FundingPolicy, scoreboard Scoreboard, expiry time.Duration) *WarService {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &WarService{
		DB:         db,
		Ledger:     ledger,
		Funding:    funding,
		Scoreboard: scoreboard,
		Expiry:     expiry,
	}
}

// DeclareWar opens a pending war from challenger against defender on a
// challenge. The challenger is funded per the FundingPolicy.
func (s *WarService) DeclareWar(ctx context.Context, challengerID, defenderID, challengeID string, stakes int64, taunt string) (*models.War, error) {
	if stakes <= 0 {
		return nil, fmt.Errorf("%w: stakes must be positive", ErrInvalidInput)
	}
	if challengerID == "" || defenderID == "" || challengeID == "" {
		return nil, fmt.Errorf("%w: challenger, defender and challenge are required", ErrInvalidInput)
	}
	if challengerID == defenderID {
		return nil, fmt.Errorf("%w: cannot declare war on yourself", ErrInvalidInput)
	}

	if taunt == "" && s.Taunts != nil {
		generated, err := s.Taunts.Taunt(ctx, challengerID, defenderID, stakes)
		if err != nil {
			utils.Logger.Warn("taunt_generation_failed", zap.String("challenger_id", challengerID), zap.Error(err))
		} else {
			taunt = generated
		}
	}

	now := s.Now.now()
	war := &models.War{
		ID:           uuid.NewString(),
		ChallengerID: challengerID,
		DefenderID:   defenderID,
		ChallengeID:  challengeID,
		Stakes:       stakes,
		Status:       models.WarStatusPending,
		Taunt:        taunt,
		ExpiresAt:    now.Add(s.Expiry),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		challenger, err := lockUser(tx, challengerID)
		if err != nil {
			return err
		}
		var defender models.User
		if err := tx.First(&defender, "id = ?", defenderID).Error; err != nil {
			return notFound(err, "defender")
		}
		var challenge models.Challenge
		if err := tx.First(&challenge, "id = ?", challengeID).Error; err != nil {
			return notFound(err, "challenge")
		}

		var pending int64
		if err := tx.Model(&models.War{}).
			Where("challenger_id = ? AND defender_id = ? AND challenge_id = ? AND status = ?",
				challengerID, defenderID, challengeID, models.WarStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrAlreadyPending
		}

		if err := s.Funding.Fund(tx, s.Ledger, challengerID, stakes, war.ID); err != nil {
			return err
		}
		if err := tx.Create(war).Error; err != nil {
			return fmt.Errorf("create war: %w", err)
		}

		return notify(tx, defenderID, models.NotificationWarDeclared,
			"⚔️ War declared!",
			fmt.Sprintf("%s challenged you to a war in %s for %s", challenger.Username, challenge.Name, coins(stakes)),
			map[string]interface{}{"war_id": war.ID, "challenger_id": challengerID, "stakes": stakes, "taunt": taunt},
		)
	})
	if err != nil {
		return nil, err
	}

	utils.WarsDeclared.Inc()
	utils.Logger.Info("war_declared",
		zap.String("war_id", war.ID),
		zap.String("challenger_id", challengerID),
		zap.String("defender_id", defenderID),
		zap.Int64("stakes", stakes),
	)
	return war, nil
}

// AcceptWar moves a pending war to accepted. Only the defender may accept,
// and only before ExpiresAt.
func (s *WarService) AcceptWar(ctx context.Context, warID, callerID string) (*models.War, error) {
	var war *models.War
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		war, err = lockWar(tx, warID)
		if err != nil {
			return err
		}
		if war.DefenderID != callerID {
			return fmt.Errorf("%w: only the defender can accept", ErrForbidden)
		}
		if war.Status != models.WarStatusPending {
			return fmt.Errorf("%w: war is %s", ErrInvalidState, war.Status)
		}
		now := s.Now.now()
		if now.After(war.ExpiresAt) {
			return fmt.Errorf("%w: war expired at %s", ErrExpired, war.ExpiresAt.Format(time.RFC3339))
		}

		if err := s.Funding.Fund(tx, s.Ledger, war.DefenderID, war.Stakes, war.ID); err != nil {
			return err
		}

		war.Status = models.WarStatusAccepted
		war.WarStartedAt = &now
		if err := tx.Save(war).Error; err != nil {
			return fmt.Errorf("accept war: %w", err)
		}

		return notify(tx, war.ChallengerID, models.NotificationWarAccepted,
			"🔥 War accepted",
			fmt.Sprintf("Your war for %s is on. May the best streak win.", coins(war.Stakes)),
			map[string]interface{}{"war_id": war.ID},
		)
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("war_accepted", zap.String("war_id", warID))
	return war, nil
}

// DeclineWar refuses a pending war. The challenger receives the stakes as a
// coward bonus; the defender pays nothing.
func (s *WarService) DeclineWar(ctx context.Context, warID, callerID string) (*models.War, error) {
	var war *models.War
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		war, err = lockWar(tx, warID)
		if err != nil {
			return err
		}
		if war.DefenderID != callerID {
			return fmt.Errorf("%w: only the defender can decline", ErrForbidden)
		}
		if war.Status != models.WarStatusPending {
			return fmt.Errorf("%w: war is %s", ErrInvalidState, war.Status)
		}
		now := s.Now.now()
		if now.After(war.ExpiresAt) {
			return fmt.Errorf("%w: war expired at %s", ErrExpired, war.ExpiresAt.Format(time.RFC3339))
		}

		war.Status = models.WarStatusDeclined
		war.WarEndedAt = &now
		if err := tx.Save(war).Error; err != nil {
			return fmt.Errorf("decline war: %w", err)
		}

		if _, err := s.Ledger.CreditTx(tx, Entry{
			UserID:      war.ChallengerID,
			Amount:      war.Stakes,
			Kind:        models.TransactionKindCowardBonus,
			Description: "Opponent declined your war",
			ChallengeID: &war.ChallengeID,
			ReferenceID: war.ID,
		}); err != nil {
			return err
		}

		return notify(tx, war.ChallengerID, models.NotificationWarDeclined,
			"🐔 War declined",
			fmt.Sprintf("Your opponent backed down. You earned a coward bonus of %s.", coins(war.Stakes)),
			map[string]interface{}{"war_id": war.ID, "bonus": war.Stakes},
		)
	})
	if err != nil {
		return nil, err
	}

	utils.WarsSettled.WithLabelValues(string(models.WarStatusDeclined)).Inc()
	return war, nil
}

// CompleteWar settles an accepted war against the challenge scoreboard.
// callerID must be a participant; an empty callerID means the system.
func (s *WarService) CompleteWar(ctx context.Context, warID, callerID string) (*WarOutcome, error) {
	var snapshot models.War
	if err := s.DB.WithContext(ctx).First(&snapshot, "id = ?", warID).Error; err != nil {
		return nil, notFound(err, "war")
	}
	if callerID != "" && !snapshot.Involves(callerID) {
		return nil, fmt.Errorf("%w: not a participant of this war", ErrForbidden)
	}
	if snapshot.Status != models.WarStatusAccepted {
		return nil, fmt.Errorf("%w: war is %s", ErrInvalidState, snapshot.Status)
	}

	points, err := s.Scoreboard.Points(ctx, snapshot.ChallengeID, snapshot.ChallengerID, snapshot.DefenderID)
	if err != nil {
		return nil, err
	}
	challengerPoints := points[snapshot.ChallengerID]
	defenderPoints := points[snapshot.DefenderID]

	outcome := &WarOutcome{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		war, err := lockWar(tx, warID)
		if err != nil {
			return err
		}
		if war.Status != models.WarStatusAccepted {
			return fmt.Errorf("%w: war is %s", ErrInvalidState, war.Status)
		}

		now := s.Now.now()
		war.ChallengerPoints = challengerPoints
		war.DefenderPoints = defenderPoints
		war.Status = models.WarStatusCompleted
		war.WarEndedAt = &now
		if war.Sabotage.Active {
			war.Sabotage.Active = false
			war.Sabotage.EndedAt = &now
		}

		history := models.WarHistory{
			ID:           uuid.NewString(),
			WarID:        war.ID,
			ChallengeID:  war.ChallengeID,
			ChallengerID: war.ChallengerID,
			DefenderID:   war.DefenderID,
			Stakes:       war.Stakes,
			WarDuration:  warDurationDays(war, now),
		}

		if challengerPoints == defenderPoints {
			war.Result = models.WarResultTie
			history.IsTie = true
			history.WinnerPoints = challengerPoints
			history.LoserPoints = defenderPoints
			*outcome = WarOutcome{Result: models.WarResultTie, WinnerPoints: challengerPoints, LoserPoints: defenderPoints}

			for _, side := range []string{war.ChallengerID, war.DefenderID} {
				if _, err := s.Ledger.CreditTx(tx, Entry{
					UserID:      side,
					Amount:      war.Stakes,
					Kind:        models.TransactionKindWarRefund,
					Description: "War ended in a tie",
					ChallengeID: &war.ChallengeID,
					ReferenceID: war.ID,
				}); err != nil {
					return err
				}
			}
		} else {
			winner, loser := war.ChallengerID, war.DefenderID
			winnerPoints, loserPoints := challengerPoints, defenderPoints
			if defenderPoints > challengerPoints {
				winner, loser = loser, winner
				winnerPoints, loserPoints = loserPoints, winnerPoints
			}
			war.Result = models.WarResultCompleted
			war.WinnerID = &winner
			war.LoserID = &loser
			history.WinnerID = &winner
			history.LoserID = &loser
			history.WinnerPoints = winnerPoints
			history.LoserPoints = loserPoints
			*outcome = WarOutcome{
				Result:       models.WarResultCompleted,
				WinnerID:     &winner,
				LoserID:      &loser,
				WinnerPoints: winnerPoints,
				LoserPoints:  loserPoints,
			}

			if _, err := s.Ledger.CreditTx(tx, Entry{
				UserID:      winner,
				Amount:      war.Stakes * 2,
				Kind:        models.TransactionKindWarWin,
				Description: "War victory",
				ChallengeID: &war.ChallengeID,
				ReferenceID: war.ID,
			}); err != nil {
				return err
			}
		}

		if err := tx.Save(war).Error; err != nil {
			return fmt.Errorf("complete war: %w", err)
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("write war history: %w", err)
		}
		if err := writeWarMemories(tx, war); err != nil {
			return err
		}
		return notifyWarResult(tx, war)
	})
	if err != nil {
		return nil, err
	}

	utils.WarsSettled.WithLabelValues(string(outcome.Result)).Inc()
	utils.Logger.Info("war_completed",
		zap.String("war_id", warID),
		zap.String("result", string(outcome.Result)),
		zap.Int64("challenger_points", challengerPoints),
		zap.Int64("defender_points", defenderPoints),
	)
	return outcome, nil
}

// ExpirePendingWars marks pending wars past ExpiresAt as expired and returns
// how many it moved.
func (s *WarService) ExpirePendingWars(ctx context.Context) (int, error) {
	var pending []models.War
	if err := s.DB.WithContext(ctx).
		Where("status = ?", models.WarStatusPending).
		Find(&pending).Error; err != nil {
		return 0, err
	}

	now := s.Now.now()
	expired := 0
	for _, candidate := range pending {
		if !now.After(candidate.ExpiresAt) {
			continue
		}
		moved := false
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			war, err := lockWar(tx, candidate.ID)
			if err != nil {
				return err
			}
			if war.Status != models.WarStatusPending {
				return nil
			}
			war.Status = models.WarStatusExpired
			war.WarEndedAt = &now
			if err := tx.Save(war).Error; err != nil {
				return err
			}
			moved = true
			return notify(tx, war.ChallengerID, models.NotificationWarExpired,
				"⌛ War expired",
				"Your opponent never answered. The war has expired.",
				map[string]interface{}{"war_id": war.ID},
			)
		})
		if err != nil {
			utils.Logger.Error("war_expire_failed", zap.String("war_id", candidate.ID), zap.Error(err))
			continue
		}
		if moved {
			expired++
		}
	}

	if expired > 0 {
		utils.WarsSettled.WithLabelValues(string(models.WarStatusExpired)).Add(float64(expired))
	}
	return expired, nil
}

func (s *WarService) GetWar(ctx context.Context, warID string) (*models.War, error) {
	var war models.War
	if err := s.DB.WithContext(ctx).First(&war, "id = ?", warID).Error; err != nil {
		return nil, notFound(err, "war")
	}
	return &war, nil
}

// ListUserWars returns the user's wars on either side, newest first.
// An empty status returns every war.
func (s *WarService) ListUserWars(ctx context.Context, userID, status string) ([]models.War, error) {
	q := s.DB.WithContext(ctx).Where("challenger_id = ? OR defender_id = ?", userID, userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var wars []models.War
	if err := q.Order("created_at DESC").Find(&wars).Error; err != nil {
		return nil, err
	}
	return wars, nil
}

func (s *WarService) ListWarHistory(ctx context.Context, userID string) ([]models.WarHistory, error) {
	var history []models.WarHistory
	if err := s.DB.WithContext(ctx).
		Where("challenger_id = ? OR defender_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

func lockWar(tx *gorm.DB, warID string) (*models.War, error) {
	var war models.War
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&war, "id = ?", warID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: war %s", ErrNotFound, warID)
		}
		return nil, err
	}
	return &war, nil
}

// warDurationDays rounds the elapsed time up to whole days, anchored at the
// accept time when known.
func warDurationDays(war *models.War, end time.Time) int {
	start := war.CreatedAt
	if war.WarStartedAt != nil {
		start = *war.WarStartedAt
	}
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	day := 24 * time.Hour
	return int((elapsed + day - 1) / day)
}

func writeWarMemories(tx *gorm.DB, war *models.War) error {
	sides := []struct{ user, opponent string }{
		{war.ChallengerID, war.DefenderID},
		{war.DefenderID, war.ChallengerID},
	}
	for _, side := range sides {
		outcome := "tied"
		if war.WinnerID != nil {
			if *war.WinnerID == side.user {
				outcome = "won"
			} else {
				outcome = "lost"
			}
		}
		mem := models.WarMemory{
			ID:         uuid.NewString(),
			WarID:      war.ID,
			UserID:     side.user,
			OpponentID: side.opponent,
			Outcome:    outcome,
			Summary: fmt.Sprintf("%s a war for %s (%d to %d)",
				outcome, coins(war.Stakes), pointsFor(war, side.user), pointsFor(war, side.opponent)),
		}
		if err := tx.Create(&mem).Error; err != nil {
			return fmt.Errorf("write war memory: %w", err)
		}
	}
	return nil
}

func pointsFor(war *models.War, userID string) int64 {
	if userID == war.ChallengerID {
		return war.ChallengerPoints
	}
	return war.DefenderPoints
}

func notifyWarResult(tx *gorm.DB, war *models.War) error {
	data := map[string]interface{}{
		"war_id":            war.ID,
		"result":            war.Result,
		"challenger_points": war.ChallengerPoints,
		"defender_points":   war.DefenderPoints,
	}

	if war.Result == models.WarResultTie {
		for _, side := range []string{war.ChallengerID, war.DefenderID} {
			if err := notify(tx, side, models.NotificationWarCompleted, "🤝 It's a tie",
				fmt.Sprintf("Dead even. Your %s stake was refunded.", coins(war.Stakes)), data); err != nil {
				return err
			}
		}
		return nil
	}

	if err := notify(tx, *war.WinnerID, models.NotificationWarCompleted, "🏆 Victory!",
		fmt.Sprintf("You won the war and earned %s.", coins(war.Stakes*2)), data); err != nil {
		return err
	}
	return notify(tx, *war.LoserID, models.NotificationWarCompleted, "💀 Defeat",
		"You lost this war. Time to plan the rematch.", data)
}
