package models

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

type RoleMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TransactionRecord is one statement line the assistant backend may attach
// to a transcription response. Negative amounts are debits.
type TransactionRecord struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Balance     float64 `json:"balance"`
	Reference   string  `json:"reference,omitempty"`
}

func (t TransactionRecord) IsDebit() bool {
	return t.Amount < 0
}

func (t TransactionRecord) FormattedAmount() string {
	return fmt.Sprintf("RWF %s", humanize.Commaf(math.Abs(t.Amount)))
}

func (t TransactionRecord) FormattedBalance() string {
	return fmt.Sprintf("RWF %s", humanize.Commaf(t.Balance))
}

// TranscribeResult is the assistant backend's answer to an audio upload.
// Response and Transactions are opportunistic: present when the backend
// already ran the utterance through its own NLP.
type TranscribeResult struct {
	Transcription string              `json:"transcription"`
	Response      string              `json:"response,omitempty"`
	Transactions  []TransactionRecord `json:"transactions,omitempty"`
	SessionID     string              `json:"session_id,omitempty"`
}

type ChatRequest struct {
	Messages        []RoleMsg `json:"messages"`
	ServiceCategory string    `json:"service_category"`
}

// ChatResponse tolerates both reply keys seen across deployments.
type ChatResponse struct {
	Response string `json:"response"`
	Message  string `json:"message"`
}

func (r ChatResponse) Text() string {
	if r.Response != "" {
		return r.Response
	}
	return r.Message
}

// ConversationReply is what one orchestrated interaction ends up showing:
// the reply text plus whatever transactions the transcribe stage attached.
type ConversationReply struct {
	Text         string
	Transactions []TransactionRecord
}

// Interaction is one persisted transcript/reply pair.
type Interaction struct {
	ID         int64     `db:"id"`
	SessionID  string    `db:"session_id"`
	Transcript string    `db:"transcript"`
	Reply      string    `db:"reply"`
	CreatedAt  time.Time `db:"created_at"`
}
