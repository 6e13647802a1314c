package chatlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kayz/promptforge/internal/logger"
)

// Store reads and writes conversation logs in a SQLite database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create chatlog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chatlog database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize chatlog database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			platform    TEXT NOT NULL,
			channel_id  TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			UNIQUE(platform, channel_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS turns (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id  INTEGER NOT NULL,
			role             TEXT NOT NULL,
			name             TEXT,
			content          TEXT,
			media            TEXT,
			tool_calls       TEXT,
			tool_call_id     TEXT,
			signature        TEXT,
			created_at       TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id);
		CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
	`)
	return err
}

// GetOrCreateConversation returns the conversation for the given key,
// creating it when absent.
func (s *Store) GetOrCreateConversation(platform, channelID, userID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	nowStr := now.Format(time.RFC3339)

	conv, err := s.findConversation(platform, channelID, userID)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	result, err := s.db.Exec(`
		INSERT INTO conversations (platform, channel_id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, platform, channelID, userID, nowStr, nowStr)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Conversation{
		ID:        id,
		Platform:  platform,
		ChannelID: channelID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Store) findConversation(platform, channelID, userID string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT id, platform, channel_id, user_id, created_at, updated_at
		FROM conversations WHERE platform = ? AND channel_id = ? AND user_id = ?
	`, platform, channelID, userID)

	var conv Conversation
	var createdAt, updatedAt string
	if err := row.Scan(&conv.ID, &conv.Platform, &conv.ChannelID, &conv.UserID, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	conv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	conv.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &conv, nil
}

// AppendTurn persists one turn at the end of a conversation.
func (s *Store) AppendTurn(conversationID int64, t Turn) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toolCalls, media sql.NullString
	if len(t.ToolCalls) > 0 {
		data, err := json.Marshal(t.ToolCalls)
		if err != nil {
			return 0, fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(data), Valid: true}
	}
	if len(t.Media) > 0 {
		media = sql.NullString{String: strings.Join(t.Media, "\n"), Valid: true}
	}

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.Exec(`
		INSERT INTO turns (conversation_id, role, name, content, media, tool_calls, tool_call_id, signature, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, conversationID, t.Role, t.Name, t.Content, media, toolCalls, t.ToolCallID, t.Signature, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("append turn: %w", err)
	}
	return result.LastInsertId()
}

// LoadTurns returns up to limit of the newest turns of a conversation, in
// chronological order. A limit of 0 loads everything.
func (s *Store) LoadTurns(conversationID int64, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, role, name, content, media, tool_calls, tool_call_id, signature, created_at
		FROM turns WHERE conversation_id = ?
		ORDER BY id DESC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	var reversed []Turn
	for rows.Next() {
		var t Turn
		var name, content, media, toolCalls, toolCallID, signature sql.NullString
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Role, &name, &content, &media, &toolCalls, &toolCallID, &signature, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Name = name.String
		t.Content = content.String
		t.ToolCallID = toolCallID.String
		t.Signature = signature.String
		if media.Valid && media.String != "" {
			t.Media = strings.Split(media.String, "\n")
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &t.ToolCalls); err != nil {
				logger.Warn("turn %d carries malformed tool calls, dropping: %v", t.ID, err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.CreatedAt = ts
		}
		reversed = append(reversed, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return reversed, nil
}
