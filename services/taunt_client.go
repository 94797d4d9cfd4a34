package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"habit-wars/utils"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// TauntGenerator produces an opening taunt for a declared war. It is optional
// and never required for a war to be declared.
type TauntGenerator interface {
	Taunt(ctx context.Context, challenger, defender string, stakes int64) (string, error)
}

// TauntServiceClient calls the AI text service over HTTP.
type TauntServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewTauntServiceClient(baseURL, token string) *TauntServiceClient {
	return &TauntServiceClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Taunt posts a prompt to /v1/taunts. The service may answer in a chat
// completion shape or with a flat {"taunt": "..."} body.
func (c *TauntServiceClient) Taunt(ctx context.Context, challenger, defender string, stakes int64) (string, error) {
	url := fmt.Sprintf("%s/v1/taunts", c.BaseURL)

	reqBody := map[string]interface{}{
		"challenger": challenger,
		"defender":   defender,
		"stakes":     stakes,
		"max_tokens": 60,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		utils.Logger.Warn("taunt_service_error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return "", fmt.Errorf("taunt service returned %d", resp.StatusCode)
	}

	taunt := gjson.GetBytes(body, "choices.0.message.content").String()
	if taunt == "" {
		taunt = gjson.GetBytes(body, "taunt").String()
	}
	taunt = strings.TrimSpace(taunt)
	if taunt == "" {
		return "", fmt.Errorf("taunt service returned no text")
	}
	return taunt, nil
}
