package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"habit-wars/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChallengeService struct {
	DB  *gorm.DB
	Now Clock
}

func NewChallengeService(db *gorm.DB) *ChallengeService {
	return &ChallengeService{DB: db}
}

// Create opens a challenge and enrolls its creator.
func (s *ChallengeService) Create(ctx context.Context, creatorID, name string, reward int64, startsAt, endsAt time.Time) (*models.Challenge, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: challenge name is required", ErrInvalidInput)
	}
	if reward < 0 {
		return nil, fmt.Errorf("%w: reward cannot be negative", ErrInvalidInput)
	}
	if startsAt.IsZero() {
		startsAt = s.Now.now()
	}
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("%w: ends_at must be after starts_at", ErrInvalidInput)
	}

	challenge := &models.Challenge{
		ID:           uuid.NewString(),
		Name:         name,
		CreatorID:    creatorID,
		Status:       models.ChallengeStatusActive,
		RewardAmount: reward,
		StartsAt:     startsAt.UTC(),
		EndsAt:       endsAt.UTC(),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUser(tx, creatorID); err != nil {
			return err
		}
		if err := tx.Create(challenge).Error; err != nil {
			return fmt.Errorf("create challenge: %w", err)
		}
		return tx.Create(&models.ChallengeParticipant{
			ID:          uuid.NewString(),
			ChallengeID: challenge.ID,
			UserID:      creatorID,
			JoinedAt:    s.Now.now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return challenge, nil
}

func (s *ChallengeService) Join(ctx context.Context, challengeID, userID string) (*models.ChallengeParticipant, error) {
	participant := &models.ChallengeParticipant{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		UserID:      userID,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var challenge models.Challenge
		if err := tx.First(&challenge, "id = ?", challengeID).Error; err != nil {
			return notFound(err, "challenge")
		}
		if challenge.Status != models.ChallengeStatusActive {
			return fmt.Errorf("%w: challenge is %s", ErrInvalidState, challenge.Status)
		}
		if _, err := lockUser(tx, userID); err != nil {
			return err
		}

		var existing models.ChallengeParticipant
		err := tx.Where("challenge_id = ? AND user_id = ?", challengeID, userID).First(&existing).Error
		if err == nil {
			return fmt.Errorf("%w: already joined", ErrConflict)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		participant.JoinedAt = s.Now.now()
		return tx.Create(participant).Error
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

// Leaderboard ranks participants by points, earliest joiner first on ties.
func (s *ChallengeService) Leaderboard(ctx context.Context, challengeID string) ([]models.ChallengeParticipant, error) {
	var challenge models.Challenge
	if err := s.DB.WithContext(ctx).First(&challenge, "id = ?", challengeID).Error; err != nil {
		return nil, notFound(err, "challenge")
	}

	var participants []models.ChallengeParticipant
	if err := s.DB.WithContext(ctx).Where("challenge_id = ?", challengeID).Find(&participants).Error; err != nil {
		return nil, err
	}
	rankParticipants(participants)
	return participants, nil
}

func rankParticipants(participants []models.ChallengeParticipant) {
	sort.SliceStable(participants, func(i, j int) bool {
		if participants[i].Points != participants[j].Points {
			return participants[i].Points > participants[j].Points
		}
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
}
