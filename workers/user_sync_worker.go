// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"habit-wars/models"
	"habit-wars/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetUserChangesResponse is the top-level structure of the sync service response.
type GetUserChangesResponse struct {
	Users []models.RemoteUser `json:"users"`
}

// UserSyncWorker mirrors profile-service users into the local users table.
// Only identity columns are refreshed; balances and streaks belong to this
// service and are never overwritten.
type UserSyncWorker struct {
	db              *gorm.DB
	interval        time.Duration
	baseURL         string
	endpointPath    string
	serviceToken    string
	startingBalance int64
	httpClient      *http.Client
}

func NewUserSyncWorker(db *gorm.DB, syncServiceBaseURL, serviceToken string, interval time.Duration, startingBalance int64) *UserSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &UserSyncWorker{
		db:              db,
		interval:        interval,
		baseURL:         syncServiceBaseURL,
		endpointPath:    "/api/v1/public/profiles",
		serviceToken:    serviceToken,
		startingBalance: startingBalance,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *UserSyncWorker) Start(ctx context.Context) {
	utils.Logger.Info("user_sync_started", zap.String("base_url", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	if err := w.SyncSince(ctx, time.Time{}); err != nil {
		utils.Logger.Warn("user_sync_initial_failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncSince(ctx, w.lastSyncTime()); err != nil {
				utils.Logger.Error("user_sync_failed", zap.Error(err))
			}
		case <-ctx.Done():
			utils.Logger.Info("user_sync_stopped")
			return
		}
	}
}

// lastSyncTime is the newest remote updated_at seen so far. Local writes to
// users (ledger, streaks) never move it.
func (w *UserSyncWorker) lastSyncTime() time.Time {
	var last models.User
	if err := w.db.Where("profile_updated_at IS NOT NULL").
		Order("profile_updated_at DESC").
		First(&last).Error; err != nil || last.ProfileUpdatedAt == nil {
		return time.Unix(0, 0).UTC()
	}
	return last.ProfileUpdatedAt.UTC()
}

// SyncSince fetches users changed since the given time and upserts them.
func (w *UserSyncWorker) SyncSince(ctx context.Context, since time.Time) error {
	users, err := w.fetch(ctx, since)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}
	upserted, failed := w.Upsert(users)
	utils.Logger.Info("user_sync_batch",
		zap.Int("received", len(users)),
		zap.Int("upserted", upserted),
		zap.Int("failed", failed),
	)
	return nil
}

func (w *UserSyncWorker) fetch(ctx context.Context, since time.Time) ([]models.RemoteUser, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create sync request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, string(body))
	}

	var out GetUserChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}
	return out.Users, nil
}

// Upsert inserts new users with the starting balance as their seed and
// refreshes identity fields of known users.
func (w *UserSyncWorker) Upsert(remote []models.RemoteUser) (upserted, failed int) {
	for _, ru := range remote {
		if ru.ExternalID == "" {
			failed++
			continue
		}
		local := models.User{
			ID:             ru.ExternalID,
			Username:       ru.Username,
			AvatarURL:      ru.ProfilePictureURL,
			RewardsBalance: w.startingBalance,
			SeedBalance:    w.startingBalance,
		}
		updates := []string{"username", "avatar_url", "updated_at"}
		if !ru.UpdatedAt.IsZero() {
			remoteUpdated := ru.UpdatedAt.UTC()
			local.ProfileUpdatedAt = &remoteUpdated
			updates = append(updates, "profile_updated_at")
		}
		if err := w.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).Create(&local).Error; err != nil {
			failed++
			utils.Logger.Warn("user_upsert_failed", zap.String("external_id", ru.ExternalID), zap.Error(err))
			continue
		}
		upserted++
	}
	return upserted, failed
}
