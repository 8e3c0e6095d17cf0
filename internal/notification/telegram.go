package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// TelegramService delivers notifications through the Telegram Bot API. It is
// the external collaborator behind the dispatcher's PushProvider interface:
// delivery is best effort, failures are logged upstream and never roll back
// the reward that triggered them.
type TelegramService struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegramService reads TELEGRAM_BOT_TOKEN. An empty token is an error so
// main can decide to run without push rather than fail silently per message.
func NewTelegramService() (*TelegramService, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	return &TelegramService{
		token:   token,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type sendMessagePayload struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendPush sends the message to every chat id bound to the user. chatIDs come
// from the notification service's device registry.
func (s *TelegramService) SendPush(ctx context.Context, chatIDs []string, title, body string, data map[string]any) error {
	if len(chatIDs) == 0 {
		return nil
	}

	text := title
	if body != "" {
		text = fmt.Sprintf("%s\n%s", title, body)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)

	sent := 0
	failed := 0
	for _, chatID := range chatIDs {
		payload, err := json.Marshal(sendMessagePayload{ChatID: chatID, Text: text})
		if err != nil {
			failed++
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			failed++
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			failed++
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			failed++
			continue
		}
		sent++
	}

	if sent == 0 && failed > 0 {
		return fmt.Errorf("all telegram deliveries failed (%d)", failed)
	}
	return nil
}
