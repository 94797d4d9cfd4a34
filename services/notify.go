package services

import (
	"encoding/json"
	"fmt"

	"habit-wars/models"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"
)

var coinPrinter = message.NewPrinter(language.English)

// coins renders an amount with thousands separators, e.g. "1,250 coins".
func coins(amount int64) string {
	return coinPrinter.Sprintf("%d coins", amount)
}

// notify writes an outbox row inside tx; the relay worker delivers it later.
func notify(tx *gorm.DB, userID, kind, title, msg string, data map[string]interface{}) error {
	payload := ""
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal notification data: %w", err)
		}
		payload = string(raw)
	}

	n := models.Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: msg,
		Data:    payload,
	}
	if err := tx.Create(&n).Error; err != nil {
		return fmt.Errorf("queue %s notification: %w", kind, err)
	}
	return nil
}
