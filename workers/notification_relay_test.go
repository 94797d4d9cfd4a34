package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"habit-wars/models"
	"habit-wars/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent   []models.Notification
	failID string
}

func (r *recordingNotifier) Send(_ context.Context, n models.Notification) error {
	if n.ID == r.failID {
		return errors.New("sink down")
	}
	r.sent = append(r.sent, n)
	return nil
}

func TestRelayBatchDeliversAndStamps(t *testing.T) {
	db := testutil.NewDB(t)
	for _, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, db.Create(&models.Notification{ID: id, UserID: "alice", Type: "war_declared", Title: id}).Error)
	}
	sink := &recordingNotifier{failID: "n2"}
	relay := NewNotificationRelay(db, sink, time.Second)

	sent, err := relay.RelayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, sink.sent, 2)

	var undelivered []models.Notification
	require.NoError(t, db.Where("delivered_at IS NULL").Find(&undelivered).Error)
	require.Len(t, undelivered, 1)
	assert.Equal(t, "n2", undelivered[0].ID)

	// Delivered rows are not sent again.
	sink.failID = ""
	sent, err = relay.RelayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}
