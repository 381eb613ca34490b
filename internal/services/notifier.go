package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NotifierService talks to the messenger bridge that fronts the studio bot.
// The bridge owns the conversation surface; this client only pushes outbound
// texts (reminders, inactivity nudges) keyed by the user's platform chat id.
type NotifierService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewNotifierService(baseURL, apiKey string) *NotifierService {
	return &NotifierService{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *NotifierService) makeRequest(method, endpoint string, payload interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, fmt.Sprintf("%s%s", s.baseURL, endpoint), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// SendText pushes one message to the user's chat.
func (s *NotifierService) SendText(chatID, text string) error {
	return s.makeRequest("POST", "/api/sendText", map[string]string{
		"chatId": chatID,
		"text":   text,
	})
}
