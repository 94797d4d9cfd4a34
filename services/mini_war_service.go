package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"habit-wars/models"
	"habit-wars/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MinMiniWarParticipants = 2
	MaxMiniWarParticipants = 8
)

// MiniWarService runs short winner-take-all lobbies joined by invite code.
type MiniWarService struct {
	DB                     *gorm.DB
	Ledger                 *LedgerService
	Duration               time.Duration
	DefaultMaxParticipants int
	CompletionPoints       int64
	NewCode                CodeGenerator
	Now                    Clock
}

func NewMiniWarService(db *gorm.DB, ledger *LedgerService, duration time.Duration, defaultMax int, completionPoints int64) *MiniWarService {
	if duration <= 0 {
		duration = 2 * time.Hour
	}
	if defaultMax < MinMiniWarParticipants || defaultMax > MaxMiniWarParticipants {
		defaultMax = MaxMiniWarParticipants
	}
	if completionPoints <= 0 {
		completionPoints = 10
	}
	return &MiniWarService{
		DB:                     db,
		Ledger:                 ledger,
		Duration:               duration,
		DefaultMaxParticipants: defaultMax,
		CompletionPoints:       completionPoints,
		NewCode:                RandomInviteCode,
	}
}

// Create opens a waiting lobby with a fresh invite code and enrolls the
// creator. maxParticipants of 0 means the default.
func (s *MiniWarService) Create(ctx context.Context, creatorID, name string, maxParticipants int, stakes int64, public bool) (*models.MiniWar, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if maxParticipants == 0 {
		maxParticipants = s.DefaultMaxParticipants
	}
	if maxParticipants < MinMiniWarParticipants || maxParticipants > MaxMiniWarParticipants {
		return nil, fmt.Errorf("%w: max participants must be between %d and %d",
			ErrInvalidInput, MinMiniWarParticipants, MaxMiniWarParticipants)
	}
	if stakes < 0 {
		return nil, fmt.Errorf("%w: stakes cannot be negative", ErrInvalidInput)
	}

	now := s.Now.now()
	war := &models.MiniWar{
		ID:              uuid.NewString(),
		CreatorID:       creatorID,
		Name:            name,
		Slug:            slug.Make(name),
		MaxParticipants: maxParticipants,
		Stakes:          stakes,
		IsPublic:        public,
		Status:          models.MiniWarStatusWaiting,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUser(tx, creatorID); err != nil {
			return err
		}

		code, err := s.uniqueInviteCode(tx)
		if err != nil {
			return err
		}
		war.InviteCode = code

		if err := tx.Create(war).Error; err != nil {
			return fmt.Errorf("create mini war: %w", err)
		}
		creator := models.MiniWarParticipant{
			ID:        uuid.NewString(),
			MiniWarID: war.ID,
			UserID:    creatorID,
			JoinedAt:  now,
		}
		if err := tx.Create(&creator).Error; err != nil {
			return fmt.Errorf("enroll creator: %w", err)
		}
		war.Participants = []models.MiniWarParticipant{creator}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("mini_war_created",
		zap.String("mini_war_id", war.ID),
		zap.String("invite_code", war.InviteCode),
		zap.Int("max_participants", maxParticipants),
	)
	return war, nil
}

// uniqueInviteCode re-checks each candidate against existing mini wars.
func (s *MiniWarService) uniqueInviteCode(tx *gorm.DB) (string, error) {
	gen := s.NewCode
	if gen == nil {
		gen = RandomInviteCode
	}
	for attempt := 0; attempt < maxInviteAttempts; attempt++ {
		code, err := gen()
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		var taken int64
		if err := tx.Model(&models.MiniWar{}).Where("invite_code = ?", code).Count(&taken).Error; err != nil {
			return "", err
		}
		if taken == 0 {
			return code, nil
		}
	}
	return "", ErrInviteCodeExhausted
}

func (s *MiniWarService) Join(ctx context.Context, miniWarID, userID string) (*models.MiniWarParticipant, error) {
	var participant *models.MiniWarParticipant
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		war, err := lockMiniWar(tx, "id = ?", miniWarID)
		if err != nil {
			return err
		}
		participant, err = s.join(tx, war, userID)
		return err
	})
	return participant, err
}

func (s *MiniWarService) JoinByCode(ctx context.Context, code, userID string) (*models.MiniWar, error) {
	code = NormalizeInviteCode(code)
	if len(code) != inviteCodeLength {
		return nil, fmt.Errorf("%w: invite code must be %d characters", ErrInvalidInput, inviteCodeLength)
	}

	var war *models.MiniWar
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		war, err = lockMiniWar(tx, "invite_code = ?", code)
		if err != nil {
			return err
		}
		_, err = s.join(tx, war, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return war, nil
}

func (s *MiniWarService) join(tx *gorm.DB, war *models.MiniWar, userID string) (*models.MiniWarParticipant, error) {
	if war.Status != models.MiniWarStatusWaiting {
		return nil, fmt.Errorf("%w: mini war is %s", ErrInvalidState, war.Status)
	}
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user")
	}

	var participants []models.MiniWarParticipant
	if err := tx.Where("mini_war_id = ?", war.ID).Find(&participants).Error; err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.UserID == userID {
			return nil, fmt.Errorf("%w: already in this mini war", ErrConflict)
		}
	}
	if len(participants) >= war.MaxParticipants {
		return nil, ErrCapacity
	}

	p := &models.MiniWarParticipant{
		ID:        uuid.NewString(),
		MiniWarID: war.ID,
		UserID:    userID,
		JoinedAt:  s.Now.now(),
	}
	if err := tx.Create(p).Error; err != nil {
		return nil, fmt.Errorf("join mini war: %w", err)
	}
	return p, nil
}

// Start begins the timed window. Only the creator can start, and only with at
// least two participants.
func (s *MiniWarService) Start(ctx context.Context, miniWarID, callerID string) (*models.MiniWar, error) {
	var war *models.MiniWar
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		war, err = lockMiniWar(tx, "id = ?", miniWarID)
		if err != nil {
			return err
		}
		if war.CreatorID != callerID {
			return fmt.Errorf("%w: only the creator can start", ErrForbidden)
		}
		if war.Status != models.MiniWarStatusWaiting {
			return fmt.Errorf("%w: mini war is %s", ErrInvalidState, war.Status)
		}

		var count int64
		if err := tx.Model(&models.MiniWarParticipant{}).Where("mini_war_id = ?", war.ID).Count(&count).Error; err != nil {
			return err
		}
		if count < MinMiniWarParticipants {
			return fmt.Errorf("%w: need at least %d participants", ErrInvalidState, MinMiniWarParticipants)
		}

		now := s.Now.now()
		war.Status = models.MiniWarStatusActive
		war.WarStartedAt = &now
		return tx.Save(war).Error
	})
	if err != nil {
		return nil, err
	}
	return war, nil
}

// RecordCompletion scores one habit for a participant. Once the window has
// passed, the first attempt ends the mini war and still fails with ErrExpired.
func (s *MiniWarService) RecordCompletion(ctx context.Context, miniWarID, userID string) (*models.MiniWarParticipant, error) {
	var participant models.MiniWarParticipant
	expired := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		war, err := lockMiniWar(tx, "id = ?", miniWarID)
		if err != nil {
			return err
		}
		if war.Status != models.MiniWarStatusActive {
			return fmt.Errorf("%w: mini war is %s", ErrInvalidState, war.Status)
		}
		if err := tx.Where("mini_war_id = ? AND user_id = ?", war.ID, userID).First(&participant).Error; err != nil {
			return notFound(err, "participant")
		}

		now := s.Now.now()
		if war.WarStartedAt != nil && now.After(war.WarStartedAt.Add(s.Duration)) {
			expired = true
			return s.end(tx, war, now)
		}

		participant.HabitsCompleted++
		participant.PointsEarned += s.CompletionPoints
		participant.LastCompletionAt = &now
		return tx.Save(&participant).Error
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, fmt.Errorf("%w: mini war window closed", ErrExpired)
	}
	return &participant, nil
}

// End settles an active mini war. callerID must be the creator; an empty
// callerID means the system.
func (s *MiniWarService) End(ctx context.Context, miniWarID, callerID string) (*models.MiniWar, error) {
	var war *models.MiniWar
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		war, err = lockMiniWar(tx, "id = ?", miniWarID)
		if err != nil {
			return err
		}
		if callerID != "" && war.CreatorID != callerID {
			return fmt.Errorf("%w: only the creator can end", ErrForbidden)
		}
		if war.Status != models.MiniWarStatusActive {
			return fmt.Errorf("%w: mini war is %s", ErrInvalidState, war.Status)
		}
		return s.end(tx, war, s.Now.now())
	})
	if err != nil {
		return nil, err
	}
	return war, nil
}

// end picks the winner, pays the pot and closes the mini war.
func (s *MiniWarService) end(tx *gorm.DB, war *models.MiniWar, now time.Time) error {
	var participants []models.MiniWarParticipant
	if err := tx.Where("mini_war_id = ?", war.ID).Find(&participants).Error; err != nil {
		return err
	}
	rankMiniWarParticipants(participants)

	total := 0
	for _, p := range participants {
		total += p.HabitsCompleted
	}

	war.Status = models.MiniWarStatusCompleted
	war.WarEndedAt = &now
	war.TotalHabitsCompleted = total
	war.Participants = participants

	pot := war.Stakes * int64(len(participants))
	if len(participants) > 0 {
		winner := participants[0].UserID
		war.WinnerID = &winner

		if pot > 0 {
			if _, err := s.Ledger.CreditTx(tx, Entry{
				UserID:      winner,
				Amount:      pot,
				Kind:        models.TransactionKindMiniWarWin,
				Description: fmt.Sprintf("Won mini war %q", war.Name),
				ReferenceID: war.ID,
			}); err != nil {
				return err
			}
		}
	}

	if err := tx.Omit(clause.Associations).Save(war).Error; err != nil {
		return fmt.Errorf("end mini war: %w", err)
	}

	for _, p := range participants {
		title, msg := "🏁 Mini war over", fmt.Sprintf("%q has ended.", war.Name)
		if war.WinnerID != nil && *war.WinnerID == p.UserID {
			title = "👑 You won the mini war!"
			if pot > 0 {
				msg = fmt.Sprintf("You took the whole pot of %s in %q.", coins(pot), war.Name)
			}
		}
		if err := notify(tx, p.UserID, models.NotificationMiniWarEnded, title, msg,
			map[string]interface{}{"mini_war_id": war.ID, "winner_id": war.WinnerID, "pot": pot},
		); err != nil {
			return err
		}
	}

	utils.MiniWarsEnded.Inc()
	utils.Logger.Info("mini_war_ended",
		zap.String("mini_war_id", war.ID),
		zap.Int("participants", len(participants)),
		zap.Int64("pot", pot),
	)
	return nil
}

// Leave removes a non-creator participant from a waiting lobby.
func (s *MiniWarService) Leave(ctx context.Context, miniWarID, userID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		war, err := lockMiniWar(tx, "id = ?", miniWarID)
		if err != nil {
			return err
		}
		if war.Status != models.MiniWarStatusWaiting {
			return fmt.Errorf("%w: can only leave a waiting mini war", ErrInvalidState)
		}
		if war.CreatorID == userID {
			return fmt.Errorf("%w: the creator must cancel instead of leaving", ErrForbidden)
		}

		res := tx.Where("mini_war_id = ? AND user_id = ?", war.ID, userID).Delete(&models.MiniWarParticipant{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: not a participant", ErrNotFound)
		}
		return nil
	})
}

// Cancel deletes every participant row and marks a waiting lobby cancelled.
func (s *MiniWarService) Cancel(ctx context.Context, miniWarID, callerID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		war, err := lockMiniWar(tx, "id = ?", miniWarID)
		if err != nil {
			return err
		}
		if war.CreatorID != callerID {
			return fmt.Errorf("%w: only the creator can cancel", ErrForbidden)
		}
		if war.Status != models.MiniWarStatusWaiting {
			return fmt.Errorf("%w: can only cancel a waiting mini war", ErrInvalidState)
		}

		if err := tx.Where("mini_war_id = ?", war.ID).Delete(&models.MiniWarParticipant{}).Error; err != nil {
			return err
		}
		now := s.Now.now()
		war.Status = models.MiniWarStatusCancelled
		war.WarEndedAt = &now
		return tx.Save(war).Error
	})
}

// Get loads a mini war with its participants in leaderboard order.
func (s *MiniWarService) Get(ctx context.Context, miniWarID string) (*models.MiniWar, error) {
	var war models.MiniWar
	if err := s.DB.WithContext(ctx).Preload("Participants").First(&war, "id = ?", miniWarID).Error; err != nil {
		return nil, notFound(err, "mini war")
	}
	rankMiniWarParticipants(war.Participants)
	return &war, nil
}

// ListPublicLobbies returns waiting public mini wars, newest first.
func (s *MiniWarService) ListPublicLobbies(ctx context.Context, limit int) ([]models.MiniWar, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var wars []models.MiniWar
	if err := s.DB.WithContext(ctx).
		Preload("Participants").
		Where("status = ? AND is_public = ?", models.MiniWarStatusWaiting, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&wars).Error; err != nil {
		return nil, err
	}
	return wars, nil
}

// rankMiniWarParticipants orders by habits, then points, then who joined first.
func rankMiniWarParticipants(participants []models.MiniWarParticipant) {
	sort.SliceStable(participants, func(i, j int) bool {
		a, b := participants[i], participants[j]
		if a.HabitsCompleted != b.HabitsCompleted {
			return a.HabitsCompleted > b.HabitsCompleted
		}
		if a.PointsEarned != b.PointsEarned {
			return a.PointsEarned > b.PointsEarned
		}
		return a.JoinedAt.Before(b.JoinedAt)
	})
}

func lockMiniWar(tx *gorm.DB, query string, arg interface{}) (*models.MiniWar, error) {
	var war models.MiniWar
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(query, arg).First(&war).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: mini war", ErrNotFound)
		}
		return nil, err
	}
	return &war, nil
}
