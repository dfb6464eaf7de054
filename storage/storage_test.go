package storage

import (
	"bk-voice/models"
	"log/slog"
	"os"
	"testing"
)

func newTestRepo(t *testing.T) FullRepo {
	t.Helper()
	repo, err := NewProviderSQL(":memory:", slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("Failed to open SQLite in-memory database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSessionToken(t *testing.T) {
	repo := newTestRepo(t)
	// No token yet
	token, err := repo.GetToken()
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}
	if token != "" {
		t.Errorf("Expected empty token, got %q", token)
	}
	// Set and read back
	if err := repo.SetToken("abc-123"); err != nil {
		t.Fatalf("Failed to set token: %v", err)
	}
	token, err = repo.GetToken()
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}
	if token != "abc-123" {
		t.Errorf("Expected abc-123, got %q", token)
	}
	// Overwrite wins
	if err := repo.SetToken("def-456"); err != nil {
		t.Fatalf("Failed to overwrite token: %v", err)
	}
	token, _ = repo.GetToken()
	if token != "def-456" {
		t.Errorf("Expected def-456, got %q", token)
	}
	// Clear
	if err := repo.ClearToken(); err != nil {
		t.Fatalf("Failed to clear token: %v", err)
	}
	token, err = repo.GetToken()
	if err != nil {
		t.Fatalf("Failed to get token after clear: %v", err)
	}
	if token != "" {
		t.Errorf("Expected empty token after clear, got %q", token)
	}
}

func TestInteractionHistory(t *testing.T) {
	repo := newTestRepo(t)
	items, err := repo.ListInteractions(10)
	if err != nil {
		t.Fatalf("Failed to list interactions: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected 0 interactions, got %d", len(items))
	}
	saved, err := repo.SaveInteraction(&models.Interaction{
		SessionID:  "sid-1",
		Transcript: "What is my balance?",
		Reply:      "Your balance is RWF 50,000",
	})
	if err != nil {
		t.Fatalf("Failed to save interaction: %v", err)
	}
	if saved.ID == 0 {
		t.Errorf("Expected assigned id, got 0")
	}
	items, err = repo.ListInteractions(10)
	if err != nil {
		t.Fatalf("Failed to list interactions: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 interaction, got %d", len(items))
	}
	if items[0].Transcript != "What is my balance?" {
		t.Errorf("Unexpected transcript: %q", items[0].Transcript)
	}
}
