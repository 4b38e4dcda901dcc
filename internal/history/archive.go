// Package history keeps a local SQLite cache of confirmed messages, so a
// client coming back from a disconnect can render recent history before the
// first REST page arrives. Only server-confirmed messages are recorded;
// optimistic drafts never touch disk.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/campushub/realtime/internal/store"
)

// Archive wraps the SQLite message cache.
type Archive struct {
	db   *sql.DB
	path string
}

// Open opens or creates the archive database in the given directory.
func Open(dataDir string) (*Archive, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "messages.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// WAL for concurrent reads while the dispatcher writes.
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure archive: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			scope_kind  TEXT NOT NULL,
			scope_id    TEXT NOT NULL,
			sender_id   TEXT NOT NULL,
			content     TEXT NOT NULL,
			msg_type    TEXT NOT NULL DEFAULT 'text',
			created_at  INTEGER NOT NULL,
			edited      INTEGER NOT NULL DEFAULT 0,
			read        INTEGER NOT NULL DEFAULT 0,
			reply_to    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_messages_scope
			ON messages(scope_kind, scope_id, created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}

	return &Archive{db: db, path: dbPath}, nil
}

// Record upserts one confirmed message. Drafts without a server id are skipped.
func (a *Archive) Record(m *store.Message) error {
	if m.ID == "" {
		return nil
	}
	_, err := a.db.Exec(`
		INSERT INTO messages (id, scope_kind, scope_id, sender_id, content, msg_type, created_at, edited, read, reply_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			edited  = excluded.edited,
			read    = excluded.read
	`, m.ID, string(m.Scope.Kind), m.Scope.ID, m.SenderID, m.Content, string(m.Type),
		m.CreatedAt.UnixMilli(), boolInt(m.Edited), boolInt(m.Read), m.ReplyTo)
	if err != nil {
		return fmt.Errorf("record message %s: %w", m.ID, err)
	}
	return nil
}

// Delete removes one message by server id.
func (a *Archive) Delete(id string) error {
	_, err := a.db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	return err
}

// MarkRead flips the read flag by server id.
func (a *Archive) MarkRead(id string) error {
	_, err := a.db.Exec(`UPDATE messages SET read = 1 WHERE id = ?`, id)
	return err
}

// SetContent applies an edit by server id.
func (a *Archive) SetContent(id, content string) error {
	_, err := a.db.Exec(`UPDATE messages SET content = ?, edited = 1 WHERE id = ?`, content, id)
	return err
}

// Recent returns up to limit cached messages for a scope, oldest first.
func (a *Archive) Recent(scope store.Scope, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(`
		SELECT id, sender_id, content, msg_type, created_at, edited, read, COALESCE(reply_to, '')
		FROM messages
		WHERE scope_kind = ? AND scope_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, string(scope.Kind), scope.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		var (
			m         store.Message
			createdAt int64
			edited    int
			read      int
			msgType   string
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Content, &msgType, &createdAt, &edited, &read, &m.ReplyTo); err != nil {
			return nil, err
		}
		m.LocalID = m.ID
		m.Scope = scope
		m.Type = store.MessageType(msgType)
		m.CreatedAt = time.UnixMilli(createdAt)
		m.Edited = edited != 0
		m.Read = read != 0
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; flip to display order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
