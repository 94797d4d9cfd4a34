package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"habit-wars/models"
	"habit-wars/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StreamInterval is how often the ledger stream polls for new rows.
var StreamInterval = 2 * time.Second

const streamBatch = 100

// StreamTransactionsSSE pushes the caller's new ledger transactions as
// server-sent events, starting after the latest one that already exists.
func (s *LedgerService) StreamTransactionsSSE(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	ctx := c.Context()

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	cursor := s.latestTransactionTime(ctx, userID)
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		s.streamTransactions(ctx, w, userID, cursor, StreamInterval)
	})
	return nil
}

// streamTransactions writes frames until ctx is done or the client goes away.
func (s *LedgerService) streamTransactions(ctx context.Context, w *bufio.Writer, userID string, cursor time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// initial keepalive comment
	_, _ = w.WriteString(":\n\n")
	if err := w.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next, err := s.pollTransactions(ctx, w, userID, cursor)
			if err != nil {
				// a failed flush means the client went away
				return
			}
			cursor = next
		}
	}
}

// pollTransactions writes one event per transaction newer than cursor, or a
// keepalive when there is none, and returns the advanced cursor. The error
// is non-nil only when the writer can no longer be flushed.
func (s *LedgerService) pollTransactions(ctx context.Context, w *bufio.Writer, userID string, cursor time.Time) (time.Time, error) {
	var recent []models.Transaction
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(streamBatch).
		Find(&recent).Error; err != nil {
		utils.Logger.Warn("sse_query_failed", zap.String("user_id", userID), zap.Error(err))
		return cursor, nil
	}

	var fresh []models.Transaction
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].CreatedAt.After(cursor) {
			fresh = append(fresh, recent[i])
		}
	}

	if len(fresh) == 0 {
		_, _ = w.WriteString(":\n\n")
	} else {
		cursor = fresh[len(fresh)-1].CreatedAt
		for _, t := range fresh {
			payload, _ := json.Marshal(t)
			fmt.Fprintf(w, "event: transaction\ndata: %s\n\n", payload)
		}
	}
	return cursor, w.Flush()
}

func (s *LedgerService) latestTransactionTime(ctx context.Context, userID string) time.Time {
	var latest models.Transaction
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&latest).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Logger.Error("sse_init_failed", zap.String("user_id", userID), zap.Error(err))
		}
		return time.Time{}
	}
	return latest.CreatedAt
}
