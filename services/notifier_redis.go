package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"habit-wars/models"
	"habit-wars/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NotificationChannel is the pub/sub channel delivery services subscribe to.
const NotificationChannel = "habit-wars:notifications"

// Notifier is the fire-and-forget delivery sink for outbox rows.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// NotificationPayload is the wire shape handed to the sink.
type NotificationPayload struct {
	ID      string          `json:"id"`
	User    string          `json:"user"`
	Type    string          `json:"type"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

func payloadFor(n models.Notification) NotificationPayload {
	p := NotificationPayload{
		ID:      n.ID,
		User:    n.UserID,
		Type:    n.Type,
		Title:   n.Title,
		Message: n.Message,
		SentAt:  time.Now().UTC(),
	}
	if n.Data != "" {
		p.Data = json.RawMessage(n.Data)
	}
	return p
}

// RedisNotifier publishes notifications on a Redis channel.
type RedisNotifier struct {
	Client  *redis.Client
	Channel string
}

// NewRedisNotifier connects to addr and pings it once.
func NewRedisNotifier(ctx context.Context, addr string) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		utils.Logger.Error("redis_connection_failed", zap.Error(err), zap.String("addr", addr))
		return nil, err
	}
	utils.Logger.Info("redis_connected", zap.String("addr", addr))
	return &RedisNotifier{Client: client, Channel: NotificationChannel}, nil
}

func (r *RedisNotifier) Send(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(payloadFor(n))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := r.Client.Publish(ctx, r.Channel, body).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (r *RedisNotifier) Close() error {
	return r.Client.Close()
}

// LogNotifier writes notifications to the log. Used when Redis is not
// configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, n models.Notification) error {
	utils.Logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("user", n.UserID),
		zap.String("type", n.Type),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	)
	return nil
}
