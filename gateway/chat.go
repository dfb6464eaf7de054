package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bk-voice/models"
	"bk-voice/session"
)

// ChatGateway talks to the conversational backend. That service wants the
// session identity as a user_id field inside every request body and never
// returns one, so the token is minted client-side on first use.
type ChatGateway struct {
	logger          *slog.Logger
	client          *http.Client
	sessions        *session.Store
	strat           SessionStrategy
	url             string
	serviceCategory string
}

func NewChatGateway(logger *slog.Logger, sessions *session.Store, url, serviceCategory string, timeout time.Duration) *ChatGateway {
	return &ChatGateway{
		logger:          logger,
		client:          newHTTPClient(timeout),
		sessions:        sessions,
		strat:           FieldStrategy{Field: "user_id"},
		url:             url,
		serviceCategory: serviceCategory,
	}
}

// Chat sends the conversation so far and returns the reply text.
func (g *ChatGateway) Chat(ctx context.Context, msgs []models.RoleMsg) (string, error) {
	const op = "chat"
	body := map[string]any{
		"messages":         msgs,
		"service_category": g.serviceCategory,
	}
	g.strat.Apply(nil, body, g.sessions.Ensure())
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &CallError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", &CallError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return "", &CallError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &CallError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}
	chatResp := models.ChatResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &CallError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	absorb(g.strat, g.sessions, resp)
	g.logger.Debug("chat done", "len", len(chatResp.Text()))
	return chatResp.Text(), nil
}
