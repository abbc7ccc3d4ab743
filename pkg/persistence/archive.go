// Package persistence archives bus traffic to sqlite. The archive is a
// sequential bus subscriber: inserts happen on its worker, never on a
// publisher's goroutine, and the bounded subscriber queue means a slow
// disk degrades to dropped archive rows, not a stalled bus.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	timestamp  REAL NOT NULL,
	source     TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
`

// Archive persists message envelopes. GIF payload bytes are elided (the
// metadata is kept); the history of clips is observable without turning
// the archive into a video store.
type Archive struct {
	db *sql.DB
}

// Open creates or opens the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	// One writer: the bus worker. Serializing the pool sidesteps sqlite
	// write contention.
	db.SetMaxOpenConns(1)
	logger.InfoCF("archive", "Message archive open", map[string]interface{}{"path": path})
	return &Archive{db: db}, nil
}

// Attach registers the archive as a sequential subscriber on the bus.
func (a *Archive) Attach(mb *bus.MessageBus) error {
	return mb.Subscribe("archive", a.store, false)
}

func (a *Archive) store(msg bus.Message) error {
	if gifContent, ok := msg.Content.(bus.GIFContent); ok {
		gifContent.Data = nil
		msg.Content = gifContent
	}
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("marshal content of %s: %w", msg.ID, err)
	}
	_, err = a.db.Exec(
		`INSERT OR IGNORE INTO messages (id, type, timestamp, source, content) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Type),
		float64(msg.Timestamp.UnixNano())/float64(time.Second),
		msg.Source, string(content),
	)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

// ArchivedMessage is one stored envelope row.
type ArchivedMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Source    string          `json:"source"`
	Content   json.RawMessage `json:"content"`
}

// Recent returns the latest limit rows, optionally filtered by type,
// oldest first.
func (a *Archive) Recent(typeFilter string, limit int) ([]ArchivedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, type, timestamp, source, content FROM messages`
	args := []interface{}{}
	if typeFilter != "" {
		query += ` WHERE type = ?`
		args = append(args, typeFilter)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []ArchivedMessage
	for rows.Next() {
		var m ArchivedMessage
		var content string
		if err := rows.Scan(&m.ID, &m.Type, &m.Timestamp, &m.Source, &content); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		m.Content = json.RawMessage(content)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query returns newest-first; flip to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of archived messages.
func (a *Archive) Count() (int64, error) {
	var n int64
	err := a.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
