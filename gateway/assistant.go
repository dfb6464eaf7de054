package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"bk-voice/models"
	"bk-voice/record"
	"bk-voice/session"
)

// AssistantGateway talks to the transcription/speech backend. Session
// identity rides the X-Session-ID headers; a token offered on any response
// is written back to the store.
type AssistantGateway struct {
	logger   *slog.Logger
	client   *http.Client
	sessions *session.Store
	strat    SessionStrategy
	baseURL  string
}

func NewAssistantGateway(logger *slog.Logger, sessions *session.Store, baseURL string, timeout time.Duration) *AssistantGateway {
	return &AssistantGateway{
		logger:   logger,
		client:   newHTTPClient(timeout),
		sessions: sessions,
		strat:    HeaderStrategy{},
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Transcribe uploads a sealed recording and returns the backend's
// transcription, along with any reply text and transactions it attached.
func (g *AssistantGateway) Transcribe(ctx context.Context, art *record.Artifact) (*models.TranscribeResult, error) {
	const op = "transcribe"
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="recording.wav"`)
	hdr.Set("Content-Type", art.MIME)
	part, err := writer.CreatePart(hdr)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	if _, err := part.Write(art.Data); err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transcribe", body)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token, ok := g.sessions.Get(); ok {
		g.strat.Apply(req, nil, token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &CallError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}
	result := &models.TranscribeResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, &CallError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	absorb(g.strat, g.sessions, resp)
	g.logger.Debug("transcribe done", "len", len(result.Transcription), "transactions", len(result.Transactions))
	return result, nil
}

// Synthesize fetches spoken audio for the given text. The backend streams
// back raw mp3 bytes.
func (g *AssistantGateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	const op = "speak"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/speak/"+url.PathEscape(text), nil)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	if token, ok := g.sessions.Get(); ok {
		g.strat.Apply(req, nil, token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &CallError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	absorb(g.strat, g.sessions, resp)
	g.logger.Debug("speech fetched", "bytes", len(audio))
	return audio, nil
}
