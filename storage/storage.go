package storage

import (
	"bk-voice/models"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

// SessionRepo persists the single current session token.
type SessionRepo interface {
	GetToken() (string, error)
	SetToken(token string) error
	ClearToken() error
}

// HistoryRepo keeps a local log of finished interactions.
type HistoryRepo interface {
	SaveInteraction(it *models.Interaction) (*models.Interaction, error)
	ListInteractions(limit int) ([]models.Interaction, error)
}

type FullRepo interface {
	SessionRepo
	HistoryRepo
	Close() error
}

type ProviderSQL struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS session_identity (
    k TEXT PRIMARY KEY CHECK (k = 'current'),
    token TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`, `
CREATE TABLE IF NOT EXISTS interactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    transcript TEXT NOT NULL,
    reply TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`}

func NewProviderSQL(dbPath string, logger *slog.Logger) (FullRepo, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db %s: %w", dbPath, err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return &ProviderSQL{db: db, logger: logger}, nil
}

func (p *ProviderSQL) GetToken() (string, error) {
	var token string
	err := p.db.Get(&token, "SELECT token FROM session_identity WHERE k = 'current';")
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return token, err
}

func (p *ProviderSQL) SetToken(token string) error {
	_, err := p.db.Exec(
		"INSERT OR REPLACE INTO session_identity (k, token, updated_at) VALUES ('current', $1, CURRENT_TIMESTAMP);",
		token)
	return err
}

func (p *ProviderSQL) ClearToken() error {
	_, err := p.db.Exec("DELETE FROM session_identity WHERE k = 'current';")
	return err
}

func (p *ProviderSQL) SaveInteraction(it *models.Interaction) (*models.Interaction, error) {
	query := `
        INSERT INTO interactions (session_id, transcript, reply)
        VALUES (:session_id, :transcript, :reply)
        RETURNING *;`
	stmt, err := p.db.PrepareNamed(query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	var resp models.Interaction
	err = stmt.Get(&resp, it)
	return &resp, err
}

func (p *ProviderSQL) ListInteractions(limit int) ([]models.Interaction, error) {
	resp := []models.Interaction{}
	err := p.db.Select(&resp,
		"SELECT * FROM interactions ORDER BY id DESC LIMIT $1;", limit)
	return resp, err
}

func (p *ProviderSQL) Close() error {
	return p.db.Close()
}
