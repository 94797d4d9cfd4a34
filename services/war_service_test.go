package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"habit-wars/models"
	"habit-wars/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time          { return c.t }
func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type stubTaunts struct {
	text string
	err  error
}

func (s stubTaunts) Taunt(context.Context, string, string, int64) (string, error) {
	return s.text, s.err
}

type warFixture struct {
	db        *gorm.DB
	clock     *fixedClock
	ledger    *LedgerService
	wars      *WarService
	challenge *models.Challenge
}

func newWarFixture(t *testing.T, challengerBalance, defenderBalance int64, points map[string]int64) *warFixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, "challenger", challengerBalance)
	testutil.CreateUser(t, db, "defender", defenderBalance)

	clock := &fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	if points == nil {
		points = map[string]int64{"challenger": 0, "defender": 0}
	}
	challenge := testutil.CreateChallenge(t, db, 0, clock.t.Add(30*24*time.Hour), points, "challenger", "defender")

	ledger := NewLedgerService(db, 10)
	wars := NewWarService(db, ledger, BootstrapFunding{Bonus: 50}, NewChallengeScoreboard(db), 24*time.Hour)
	wars.Now = clock.Now

	return &warFixture{db: db, clock: clock, ledger: ledger, wars: wars, challenge: challenge}
}

func (f *warFixture) acceptedWar(t *testing.T, stakes int64) *models.War {
	t.Helper()
	ctx := context.Background()
	war, err := f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, stakes, "")
	require.NoError(t, err)
	_, err = f.wars.AcceptWar(ctx, war.ID, "defender")
	require.NoError(t, err)
	return war
}

func (f *warFixture) setPoints(t *testing.T, userID string, points int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.ChallengeParticipant{}).
		Where("challenge_id = ? AND user_id = ?", f.challenge.ID, userID).
		Update("points", points).Error)
}

func (f *warFixture) countKind(kind models.TransactionKind) int64 {
	var n int64
	f.db.Model(&models.Transaction{}).Where("kind = ?", kind).Count(&n)
	return n
}

func TestDeclareWarBootstrapsChallenger(t *testing.T) {
	f := newWarFixture(t, 10, 500, nil)

	war, err := f.wars.DeclareWar(context.Background(), "challenger", "defender", f.challenge.ID, 50, "bring it")
	require.NoError(t, err)

	assert.Equal(t, models.WarStatusPending, war.Status)
	assert.Equal(t, f.clock.t.Add(24*time.Hour), war.ExpiresAt)
	assert.Equal(t, int64(100), testutil.Balance(t, f.db, "challenger"))
	assert.Equal(t, int64(1), f.countKind(models.TransactionKindBonus))

	var notes []models.Notification
	require.NoError(t, f.db.Where("user_id = ? AND type = ?", "defender", models.NotificationWarDeclared).Find(&notes).Error)
	assert.Len(t, notes, 1)
}

func TestDeclareWarWithStrictFundingFails(t *testing.T) {
	f := newWarFixture(t, 10, 500, nil)
	f.wars.Funding = StrictFunding{}

	_, err := f.wars.DeclareWar(context.Background(), "challenger", "defender", f.challenge.ID, 50, "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	var wars int64
	f.db.Model(&models.War{}).Count(&wars)
	assert.Zero(t, wars)
}

func TestDeclareWarValidation(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	ctx := context.Background()

	_, err := f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 0, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.wars.DeclareWar(ctx, "challenger", "challenger", f.challenge.ID, 10, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.wars.DeclareWar(ctx, "challenger", "ghost", f.challenge.ID, 10, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.wars.DeclareWar(ctx, "challenger", "defender", "no-such-challenge", 10, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeclareWarRejectsDuplicatePending(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	ctx := context.Background()

	_, err := f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 10, "")
	require.NoError(t, err)

	_, err = f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 20, "")
	assert.ErrorIs(t, err, ErrAlreadyPending)
	assert.ErrorIs(t, err, ErrConflict)

	// The reverse direction is a different triple.
	_, err = f.wars.DeclareWar(ctx, "defender", "challenger", f.challenge.ID, 20, "")
	assert.NoError(t, err)
}

func TestDeclareWarUsesTauntGenerator(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	f.wars.Taunts = stubTaunts{text: "Your streak is a rumour."}

	war, err := f.wars.DeclareWar(context.Background(), "challenger", "defender", f.challenge.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, "Your streak is a rumour.", war.Taunt)
}

func TestDeclareWarIgnoresTauntFailure(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	f.wars.Taunts = stubTaunts{err: errors.New("model offline")}

	war, err := f.wars.DeclareWar(context.Background(), "challenger", "defender", f.challenge.ID, 10, "")
	require.NoError(t, err)
	assert.Empty(t, war.Taunt)
}

func TestAcceptWar(t *testing.T) {
	f := newWarFixture(t, 100, 0, nil)
	ctx := context.Background()

	war, err := f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 50, "")
	require.NoError(t, err)

	_, err = f.wars.AcceptWar(ctx, war.ID, "challenger")
	assert.ErrorIs(t, err, ErrForbidden)

	accepted, err := f.wars.AcceptWar(ctx, war.ID, "defender")
	require.NoError(t, err)
	assert.Equal(t, models.WarStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.WarStartedAt)
	// Defender was bootstrapped to stakes + 50.
	assert.Equal(t, int64(100), testutil.Balance(t, f.db, "defender"))

	_, err = f.wars.AcceptWar(ctx, war.ID, "defender")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAcceptWarAfterExpiry(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	ctx := context.Background()

	war, err := f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 50, "")
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour + time.Second)
	_, err = f.wars.AcceptWar(ctx, war.ID, "defender")
	assert.ErrorIs(t, err, ErrExpired)

	stored, err := f.wars.GetWar(ctx, war.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WarStatusPending, stored.Status)
}

func TestAcceptWarExactlyAtExpiry(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	ctx := context.Background()

	war, err := f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 50, "")
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.wars.AcceptWar(ctx, war.ID, "defender")
	assert.NoError(t, err)
}

func TestDeclineWarPaysCowardBonus(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	ctx := context.Background()

	war, err := f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 40, "")
	require.NoError(t, err)

	declined, err := f.wars.DeclineWar(ctx, war.ID, "defender")
	require.NoError(t, err)
	assert.Equal(t, models.WarStatusDeclined, declined.Status)
	assert.Equal(t, int64(140), testutil.Balance(t, f.db, "challenger"))
	assert.Equal(t, int64(100), testutil.Balance(t, f.db, "defender"))
	assert.Equal(t, int64(1), f.countKind(models.TransactionKindCowardBonus))

	_, err = f.wars.AcceptWar(ctx, war.ID, "defender")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.wars.DeclineWar(ctx, war.ID, "defender")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteWarWinner(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	ctx := context.Background()
	war := f.acceptedWar(t, 50)
	f.setPoints(t, "challenger", 30)
	f.setPoints(t, "defender", 45)

	before := testutil.Balance(t, f.db, "defender")
	challengerBefore := testutil.Balance(t, f.db, "challenger")

	f.clock.Advance(36 * time.Hour)
	outcome, err := f.wars.CompleteWar(ctx, war.ID, "challenger")
	require.NoError(t, err)

	assert.Equal(t, models.WarResultCompleted, outcome.Result)
	require.NotNil(t, outcome.WinnerID)
	assert.Equal(t, "defender", *outcome.WinnerID)
	assert.Equal(t, "challenger", *outcome.LoserID)
	assert.Equal(t, int64(45), outcome.WinnerPoints)
	assert.Equal(t, int64(30), outcome.LoserPoints)
	assert.Equal(t, before+100, testutil.Balance(t, f.db, "defender"))
	assert.Equal(t, challengerBefore, testutil.Balance(t, f.db, "challenger"))

	var history []models.WarHistory
	require.NoError(t, f.db.Where("war_id = ?", war.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, int64(45), history[0].WinnerPoints)
	assert.Equal(t, int64(30), history[0].LoserPoints)
	assert.Equal(t, 2, history[0].WarDuration)
	assert.False(t, history[0].IsTie)

	var memories []models.WarMemory
	require.NoError(t, f.db.Where("war_id = ?", war.ID).Find(&memories).Error)
	assert.Len(t, memories, 2)

	stored, err := f.wars.GetWar(ctx, war.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WarStatusCompleted, stored.Status)
	assert.NotNil(t, stored.WarEndedAt)

	_, err = f.wars.AcceptWar(ctx, war.ID, "defender")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteWarTie(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	ctx := context.Background()
	war := f.acceptedWar(t, 50)
	f.setPoints(t, "challenger", 20)
	f.setPoints(t, "defender", 20)

	outcome, err := f.wars.CompleteWar(ctx, war.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.WarResultTie, outcome.Result)
	assert.Nil(t, outcome.WinnerID)

	assert.Equal(t, int64(150), testutil.Balance(t, f.db, "challenger"))
	assert.Equal(t, int64(150), testutil.Balance(t, f.db, "defender"))
	assert.Equal(t, int64(2), f.countKind(models.TransactionKindWarRefund))

	stored, err := f.wars.GetWar(ctx, war.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WarStatusCompleted, stored.Status)
	assert.Nil(t, stored.WinnerID)
	assert.Nil(t, stored.LoserID)
}

func TestCompleteWarRequiresAccepted(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	ctx := context.Background()

	war, err := f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 50, "")
	require.NoError(t, err)

	_, err = f.wars.CompleteWar(ctx, war.ID, "challenger")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.wars.CompleteWar(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteWarRejectsOutsiders(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	testutil.CreateUser(t, f.db, "mallory", 0)
	war := f.acceptedWar(t, 10)

	_, err := f.wars.CompleteWar(context.Background(), war.ID, "mallory")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCompleteWarEndsSabotage(t *testing.T) {
	f := newWarFixture(t, 100, 100, map[string]int64{"challenger": 5, "defender": 1})
	ctx := context.Background()
	war := f.acceptedWar(t, 10)

	sabotage := NewSabotageService(f.db)
	sabotage.Now = f.clock.Now
	_, err := sabotage.Start(ctx, war.ID, "challenger", 2)
	require.NoError(t, err)

	_, err = f.wars.CompleteWar(ctx, war.ID, "")
	require.NoError(t, err)

	stored, err := f.wars.GetWar(ctx, war.ID)
	require.NoError(t, err)
	assert.False(t, stored.Sabotage.Active)
	assert.Equal(t, 2, stored.Sabotage.Intensity)
	assert.NotNil(t, stored.Sabotage.EndedAt)
}

func TestExpirePendingWars(t *testing.T) {
	f := newWarFixture(t, 100, 100, nil)
	ctx := context.Background()

	stale, err := f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 10, "")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Hour)
	fresh, err := f.wars.DeclareWar(ctx, "defender", "challenger", f.challenge.ID, 10, "")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Hour)
	n, err := f.wars.ExpirePendingWars(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.wars.GetWar(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WarStatusExpired, got.Status)

	got, err = f.wars.GetWar(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WarStatusPending, got.Status)

	// An expired war can be declared again.
	_, err = f.wars.DeclareWar(ctx, "challenger", "defender", f.challenge.ID, 10, "")
	assert.NoError(t, err)
}

func TestBalancesStayConsistentAcrossWarPaths(t *testing.T) {
	f := newWarFixture(t, 0, 0, map[string]int64{"challenger": 3, "defender": 1})
	ctx := context.Background()
	war := f.acceptedWar(t, 25)
	_, err := f.wars.CompleteWar(ctx, war.ID, "")
	require.NoError(t, err)

	for _, id := range []string{"challenger", "defender"} {
		report, err := f.ledger.VerifyBalance(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, report.Drift, id)
	}
}

func TestWarDurationDays(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	started := created.Add(2 * time.Hour)

	war := &models.War{Timestamps: models.Timestamps{CreatedAt: created}}
	assert.Equal(t, 1, warDurationDays(war, created.Add(time.Minute)))
	assert.Equal(t, 1, warDurationDays(war, created.Add(24*time.Hour)))
	assert.Equal(t, 2, warDurationDays(war, created.Add(24*time.Hour+time.Millisecond)))

	war.WarStartedAt = &started
	assert.Equal(t, 1, warDurationDays(war, created.Add(25*time.Hour)))
	assert.Equal(t, 0, warDurationDays(war, started))
}
