package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"habit-wars/models"
	"habit-wars/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollTransactionsEmitsOnlyNewRows(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, "ann", 0)
	ledger := NewLedgerService(db, 10)
	ctx := context.Background()

	_, err := ledger.Credit(ctx, Entry{UserID: "ann", Amount: 5, Kind: models.TransactionKindReward, Description: "old"})
	require.NoError(t, err)
	cursor := ledger.latestTransactionTime(ctx, "ann")
	require.False(t, cursor.IsZero())

	_, err = ledger.Credit(ctx, Entry{UserID: "ann", Amount: 7, Kind: models.TransactionKindReward, Description: "fresh"})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	next, err := ledger.pollTransactions(ctx, w, "ann", cursor)
	require.NoError(t, err)
	assert.True(t, next.After(cursor))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "event: transaction\n"))
	assert.Contains(t, out, `"description":"fresh"`)
	assert.NotContains(t, out, `"description":"old"`)

	buf.Reset()
	again, err := ledger.pollTransactions(ctx, w, "ann", next)
	require.NoError(t, err)
	assert.Equal(t, next, again)
	assert.Equal(t, ":\n\n", buf.String())
}

func TestLatestTransactionTimeWithoutRows(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, "ann", 0)
	ledger := NewLedgerService(db, 10)
	assert.True(t, ledger.latestTransactionTime(context.Background(), "ann").IsZero())
}

func TestStreamTransactionsStopsWhenContextEnds(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewLedgerService(db, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	done := make(chan struct{})
	go func() {
		ledger.streamTransactions(ctx, w, "ann", time.Time{}, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
	assert.Equal(t, ":\n\n", buf.String())
}

func TestStreamTransactionsDeliversCredits(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, "ann", 0)
	ledger := NewLedgerService(db, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		ledger.streamTransactions(ctx, bufio.NewWriter(pw), "ann", time.Time{}, 10*time.Millisecond)
		close(done)
	}()
	guard := time.AfterFunc(5*time.Second, func() { _ = pr.Close() })
	defer guard.Stop()

	reader := bufio.NewReader(pr)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ":\n", line)

	_, err = ledger.Credit(context.Background(), Entry{UserID: "ann", Amount: 30, Kind: models.TransactionKindBonus, Description: "welcome"})
	require.NoError(t, err)

	var data string
	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if line == "event: transaction\n" {
			data, err = reader.ReadString('\n')
			require.NoError(t, err)
			break
		}
	}

	require.True(t, strings.HasPrefix(data, "data: "))
	var got models.Transaction
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(data), "data: ")), &got))
	assert.Equal(t, int64(30), got.Amount)
	assert.Equal(t, models.TransactionKindBonus, got.Kind)
	assert.Equal(t, int64(30), got.BalanceAfter)

	cancel()
	_ = pr.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}
}
