// workers/notification_relay.go
package workers

import (
	"context"
	"time"

	"habit-wars/models"
	"habit-wars/services"
	"habit-wars/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationRelay drains the notification outbox into the Notifier sink.
type NotificationRelay struct {
	DB        *gorm.DB
	Notifier  services.Notifier
	Interval  time.Duration
	BatchSize int
}

func NewNotificationRelay(db *gorm.DB, notifier services.Notifier, interval time.Duration) *NotificationRelay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &NotificationRelay{
		DB:        db,
		Notifier:  notifier,
		Interval:  interval,
		BatchSize: 100,
	}
}

func (r *NotificationRelay) Start(ctx context.Context) {
	utils.Logger.Info("notification_relay_started", zap.Duration("interval", r.Interval))
	go r.run(ctx)
}

func (r *NotificationRelay) run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.Logger.Info("notification_relay_stopped")
			return
		case <-ticker.C:
			if _, err := r.RelayBatch(ctx); err != nil {
				utils.Logger.Error("notification_relay_failed", zap.Error(err))
			}
		}
	}
}

// RelayBatch sends up to BatchSize undelivered notifications, oldest first,
// and stamps each one delivered after the sink accepts it. A failed send is
// left for the next tick.
func (r *NotificationRelay) RelayBatch(ctx context.Context) (int, error) {
	var pending []models.Notification
	if err := r.DB.WithContext(ctx).
		Where("delivered_at IS NULL").
		Order("created_at ASC").
		Limit(r.BatchSize).
		Find(&pending).Error; err != nil {
		return 0, err
	}

	sent := 0
	for _, n := range pending {
		if err := r.Notifier.Send(ctx, n); err != nil {
			utils.NotificationsRelayed.WithLabelValues("error").Inc()
			utils.Logger.Warn("notification_send_failed", zap.String("id", n.ID), zap.Error(err))
			continue
		}
		now := time.Now().UTC()
		if err := r.DB.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ?", n.ID).
			Update("delivered_at", now).Error; err != nil {
			return sent, err
		}
		utils.NotificationsRelayed.WithLabelValues("sent").Inc()
		sent++
	}
	return sent, nil
}
