// Package testutil provides an in-memory database for package tests.
package testutil

import (
	"testing"
	"time"

	"habit-wars/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with every model migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serializes transactions the way row locks do in Postgres.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// CreateUser inserts a user with the given starting balance as seed.
func CreateUser(t *testing.T, db *gorm.DB, id string, balance int64) *models.User {
	t.Helper()

	u := &models.User{
		ID:             id,
		Username:       id,
		RewardsBalance: balance,
		SeedBalance:    balance,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateChallenge inserts an active challenge with the given participants and
// their points.
func CreateChallenge(t *testing.T, db *gorm.DB, reward int64, endsAt time.Time, points map[string]int64, order ...string) *models.Challenge {
	t.Helper()

	c := &models.Challenge{
		ID:           uuid.NewString(),
		Name:         "Challenge",
		CreatorID:    "creator",
		Status:       models.ChallengeStatusActive,
		RewardAmount: reward,
		StartsAt:     endsAt.Add(-30 * 24 * time.Hour),
		EndsAt:       endsAt,
	}
	require.NoError(t, db.Create(c).Error)

	joined := endsAt.Add(-29 * 24 * time.Hour)
	if len(order) == 0 {
		for userID := range points {
			order = append(order, userID)
		}
	}
	for i, userID := range order {
		p := models.ChallengeParticipant{
			ID:          uuid.NewString(),
			ChallengeID: c.ID,
			UserID:      userID,
			Points:      points[userID],
			JoinedAt:    joined.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&p).Error)
	}
	return c
}

// Balance reads a user's stored balance.
func Balance(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()

	var u models.User
	require.NoError(t, db.First(&u, "id = ?", userID).Error)
	return u.RewardsBalance
}
