// Package gateway wraps the two remote backends behind typed calls and
// keeps the session identity flowing: the assistant backend carries it in
// the X-Session-ID header pair, the chat backend wants it as a body field
// and never echoes one back. Which rule applies is fixed per gateway at
// construction, not guessed from the URL.
package gateway

import (
	"fmt"
	"net/http"
	"time"

	"bk-voice/session"
)

const SessionHeader = "X-Session-ID"

// CallError reports a failed remote call: the operation that failed, the
// HTTP status when one was received, and the underlying cause.
type CallError struct {
	Op     string
	Status int
	Err    error
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s call failed: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s call failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// SessionStrategy is the backend-specific rule for where the token travels.
type SessionStrategy interface {
	// Apply attaches the token to an outgoing request. The body map is
	// non-nil only for JSON calls; header-based strategies ignore it.
	Apply(req *http.Request, body map[string]any, token string)
	// FromResponse extracts a server-issued token, or "" when the backend
	// does not hand them out.
	FromResponse(resp *http.Response) string
}

// HeaderStrategy carries the token in a request header and adopts any
// token the server returns in the matching response header.
type HeaderStrategy struct{}

func (HeaderStrategy) Apply(req *http.Request, _ map[string]any, token string) {
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}
}

func (HeaderStrategy) FromResponse(resp *http.Response) string {
	return resp.Header.Get(SessionHeader)
}

// FieldStrategy injects the token as a named field of the JSON payload.
// Its backend never issues tokens of its own.
type FieldStrategy struct {
	Field string
}

func (s FieldStrategy) Apply(_ *http.Request, body map[string]any, token string) {
	if body != nil && token != "" {
		body[s.Field] = token
	}
}

func (FieldStrategy) FromResponse(_ *http.Response) string {
	return ""
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// absorb writes a server-issued token back to the store when it differs
// from what we currently hold.
func absorb(strat SessionStrategy, sessions *session.Store, resp *http.Response) {
	token := strat.FromResponse(resp)
	if token == "" {
		return
	}
	if current, _ := sessions.Get(); current == token {
		return
	}
	sessions.Set(token)
}
