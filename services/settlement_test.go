package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"habit-wars/models"
	"habit-wars/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryArchiver struct {
	objects map[string][]byte
	err     error
}

func (a *memoryArchiver) Archive(_ context.Context, key string, body []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[key] = body
	return "mem://" + key, nil
}

func newSettlementFixture(t *testing.T, now time.Time, users ...string) (*gorm.DB, *SettlementService) {
	t.Helper()
	db := testutil.NewDB(t)
	for _, id := range users {
		testutil.CreateUser(t, db, id, 0)
	}
	clock := func() time.Time { return now }

	ledger := NewLedgerService(db, 10)
	streaks := NewStreakService(db, time.UTC, 2)
	streaks.Now = clock
	wars := NewWarService(db, ledger, BootstrapFunding{Bonus: 50}, NewChallengeScoreboard(db), 24*time.Hour)
	wars.Now = clock

	svc := NewSettlementService(db, ledger, streaks, wars)
	svc.Now = clock
	return db, svc
}

func TestSettleMonthlyChallengesPaysWinnerAndParticipants(t *testing.T) {
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	db, svc := newSettlementFixture(t, now, "ann", "ben", "cat")
	archiver := &memoryArchiver{}
	svc.Archiver = archiver

	challenge := testutil.CreateChallenge(t, db, 500, now.Add(-time.Hour),
		map[string]int64{"ann": 40, "ben": 90, "cat": 0}, "ann", "ben", "cat")

	n, err := svc.SettleMonthlyChallenges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, int64(500), testutil.Balance(t, db, "ben"))
	assert.Equal(t, int64(50), testutil.Balance(t, db, "ann"))
	assert.Equal(t, int64(50), testutil.Balance(t, db, "cat"))

	var stored models.Challenge
	require.NoError(t, db.First(&stored, "id = ?", challenge.ID).Error)
	assert.Equal(t, models.ChallengeStatusCompleted, stored.Status)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, "ben", *stored.WinnerID)
	require.NotNil(t, stored.SettledAt)

	var notes int64
	db.Model(&models.Notification{}).Where("type = ?", models.NotificationChallengeResult).Count(&notes)
	assert.Equal(t, int64(3), notes)

	body, ok := archiver.objects["settlements/2024-06/"+challenge.ID+".json"]
	require.True(t, ok)
	var report SettlementReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, "ben", *report.WinnerID)
	require.Len(t, report.Standings, 3)
	assert.Equal(t, "ann", report.Standings[1].UserID)

	n, err = svc.SettleMonthlyChallenges(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(500), testutil.Balance(t, db, "ben"))
}

func TestSettleMonthlyChallengesTieGoesToEarliestJoiner(t *testing.T) {
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	db, svc := newSettlementFixture(t, now, "ann", "ben")

	testutil.CreateChallenge(t, db, 100, now.Add(-time.Minute),
		map[string]int64{"ann": 30, "ben": 30}, "ben", "ann")

	_, err := svc.SettleMonthlyChallenges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), testutil.Balance(t, db, "ben"))
	assert.Equal(t, int64(10), testutil.Balance(t, db, "ann"))
}

func TestSettleMonthlyChallengesWithoutScoresPaysNobody(t *testing.T) {
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	db, svc := newSettlementFixture(t, now, "ann", "ben")

	challenge := testutil.CreateChallenge(t, db, 500, now.Add(-time.Hour),
		map[string]int64{"ann": 0, "ben": 0}, "ann", "ben")

	n, err := svc.SettleMonthlyChallenges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var stored models.Challenge
	require.NoError(t, db.First(&stored, "id = ?", challenge.ID).Error)
	assert.Equal(t, models.ChallengeStatusCompleted, stored.Status)
	assert.Nil(t, stored.WinnerID)

	var txCount int64
	db.Model(&models.Transaction{}).Count(&txCount)
	assert.Zero(t, txCount)
}

func TestSettleMonthlyChallengesSkipsRunningChallenges(t *testing.T) {
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	db, svc := newSettlementFixture(t, now, "ann")

	challenge := testutil.CreateChallenge(t, db, 500, now.Add(24*time.Hour),
		map[string]int64{"ann": 10}, "ann")

	n, err := svc.SettleMonthlyChallenges(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	var stored models.Challenge
	require.NoError(t, db.First(&stored, "id = ?", challenge.ID).Error)
	assert.Equal(t, models.ChallengeStatusActive, stored.Status)
	assert.Zero(t, testutil.Balance(t, db, "ann"))
}

func TestSettlementSurvivesArchiveFailure(t *testing.T) {
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	db, svc := newSettlementFixture(t, now, "ann")
	svc.Archiver = &memoryArchiver{err: errors.New("bucket unavailable")}

	testutil.CreateChallenge(t, db, 200, now.Add(-time.Hour), map[string]int64{"ann": 5}, "ann")

	n, err := svc.SettleMonthlyChallenges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(200), testutil.Balance(t, db, "ann"))
}

func TestRunJob(t *testing.T) {
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	db, svc := newSettlementFixture(t, now, "ann")
	testutil.CreateChallenge(t, db, 200, now.Add(-time.Hour), map[string]int64{"ann": 5}, "ann")

	require.NoError(t, svc.RunJob(context.Background(), JobMonthlyChallenges))
	assert.Equal(t, int64(200), testutil.Balance(t, db, "ann"))

	for _, name := range []string{JobDailyStreaks, JobWeeklyMilestones, JobExpireWars} {
		assert.NoError(t, svc.RunJob(context.Background(), name), name)
	}

	err := svc.RunJob(context.Background(), "reindex")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobNamesAreSorted(t *testing.T) {
	svc := &SettlementService{}
	names := svc.JobNames()
	assert.Len(t, names, 4)
	assert.True(t, sort.StringsAreSorted(names))
}

func TestSchedulerRegistersEveryJob(t *testing.T) {
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	_, svc := newSettlementFixture(t, now)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	sched, err := NewScheduler(svc, loc)
	require.NoError(t, err)

	var names []string
	for _, job := range sched.sched.Jobs() {
		names = append(names, job.Name())
	}
	assert.ElementsMatch(t, svc.JobNames(), names)
	require.NoError(t, sched.Shutdown())
}

func TestTauntServiceClient(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  Your streak is a rumor.  "}}]}`))
	}))
	defer srv.Close()

	client := NewTauntServiceClient(srv.URL+"/", "secret")
	taunt, err := client.Taunt(context.Background(), "ann", "ben", 75)
	require.NoError(t, err)
	assert.Equal(t, "Your streak is a rumor.", taunt)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "ann", gotBody["challenger"])
	assert.EqualValues(t, 75, gotBody["stakes"])
}

func TestTauntServiceClientFlatAndErrors(t *testing.T) {
	status := http.StatusOK
	payload := `{"taunt":"See you at the bottom of the leaderboard."}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	client := NewTauntServiceClient(srv.URL, "")
	taunt, err := client.Taunt(context.Background(), "ann", "ben", 10)
	require.NoError(t, err)
	assert.Equal(t, "See you at the bottom of the leaderboard.", taunt)

	payload = `{}`
	_, err = client.Taunt(context.Background(), "ann", "ben", 10)
	assert.Error(t, err)

	status = http.StatusBadGateway
	_, err = client.Taunt(context.Background(), "ann", "ben", 10)
	assert.Error(t, err)
}
