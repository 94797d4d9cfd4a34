package services

import (
	"context"
	"testing"
	"time"

	"habit-wars/models"
	"habit-wars/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateHabitRejectsDuplicateInChallenge(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, "alice", 0)
	challenge := testutil.CreateChallenge(t, db, 0, time.Now().UTC().Add(time.Hour), map[string]int64{"alice": 0})
	habits := NewHabitService(db, NewStreakService(db, time.UTC, 2), 10)
	ctx := context.Background()

	_, err := habits.CreateHabit(ctx, "alice", "Read", &challenge.ID)
	require.NoError(t, err)

	_, err = habits.CreateHabit(ctx, "alice", " Read ", &challenge.ID)
	assert.ErrorIs(t, err, ErrConflict)

	// Same name outside the challenge is fine.
	_, err = habits.CreateHabit(ctx, "alice", "Read", nil)
	assert.NoError(t, err)

	_, err = habits.CreateHabit(ctx, "alice", "", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	missing := "missing"
	_, err = habits.CreateHabit(ctx, "alice", "Walk", &missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteHabitScoresAndStreaks(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, "alice", 0)
	testutil.CreateUser(t, db, "bob", 0)
	now := time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)
	challenge := testutil.CreateChallenge(t, db, 0, now.Add(24*time.Hour), map[string]int64{"alice": 0})

	streaks := newStreakService(db, now)
	habits := NewHabitService(db, streaks, 10)
	habits.Now = func() time.Time { return now }
	ctx := context.Background()

	habit, err := habits.CreateHabit(ctx, "alice", "Meditate", &challenge.ID)
	require.NoError(t, err)

	// Six earlier days, so today's completion makes seven.
	for _, c := range consecutiveDays(now.AddDate(0, 0, -1), 6) {
		require.NoError(t, db.Create(&models.HabitCompletion{ID: uuid.NewString(), HabitID: habit.ID, UserID: "alice", CompletedAt: c}).Error)
	}

	_, err = habits.CompleteHabit(ctx, habit.ID, "bob")
	assert.ErrorIs(t, err, ErrForbidden)

	result, err := habits.CompleteHabit(ctx, habit.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 7, result.HabitStreak)
	assert.Equal(t, 7, result.UserStreak)
	require.NotNil(t, result.Milestone)
	assert.Equal(t, 7, result.Milestone.StreakLength)

	points, err := NewChallengeScoreboard(db).Points(ctx, challenge.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), points["alice"])

	summary, err := habits.StreakSummary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 7, summary.CurrentStreak)
	assert.Equal(t, int64(14), summary.TotalPoints)
	require.Len(t, summary.Habits, 1)
	assert.Equal(t, 7, summary.Habits[0].LongestStreak)
}

func TestChallengeJoinAndLeaderboard(t *testing.T) {
	db := testutil.NewDB(t)
	for _, id := range []string{"alice", "bob", "carol"} {
		testutil.CreateUser(t, db, id, 0)
	}
	challenges := NewChallengeService(db)
	ctx := context.Background()
	now := time.Now().UTC()

	c, err := challenges.Create(ctx, "alice", "June", 100, now, now.Add(time.Hour))
	require.NoError(t, err)

	_, err = challenges.Join(ctx, c.ID, "bob")
	require.NoError(t, err)
	_, err = challenges.Join(ctx, c.ID, "bob")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = challenges.Join(ctx, c.ID, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Model(&models.ChallengeParticipant{}).
		Where("challenge_id = ? AND user_id = ?", c.ID, "bob").Update("points", 30).Error)

	board, err := challenges.Leaderboard(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].UserID)

	_, err = challenges.Create(ctx, "alice", "Backwards", 0, now, now.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewHabitSharesTheDailyCheckClock(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, "alice", 0)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", "alice").Update("current_streak", 3).Error)

	clock := &fixedClock{t: time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)}
	streaks := NewStreakService(db, time.UTC, 2)
	streaks.Now = clock.Now
	habits := NewHabitService(db, streaks, 10)
	habits.Now = clock.Now
	ctx := context.Background()

	habit, err := habits.CreateHabit(ctx, "alice", "Journal", nil)
	require.NoError(t, err)
	assert.True(t, habit.CreatedAt.Equal(clock.t))

	// same day: the habit had no yesterday to miss
	clock.t = time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	reset, err := streaks.CheckDailyStreaks(ctx)
	require.NoError(t, err)
	assert.Zero(t, reset)

	// next day without a completion on the 10th: the streak breaks
	clock.t = time.Date(2024, 3, 11, 0, 5, 0, 0, time.UTC)
	reset, err = streaks.CheckDailyStreaks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	var u models.User
	require.NoError(t, db.First(&u, "id = ?", "alice").Error)
	assert.Zero(t, u.CurrentStreak)
}
