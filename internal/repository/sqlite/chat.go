package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/agenticbook/docschat/internal/model"
	"github.com/agenticbook/docschat/internal/repository"
)

// compile-time check that *DB implements repository.ChatHistoryRepository
var _ repository.ChatHistoryRepository = (*DB)(nil)

// AddMessage appends one user/assistant exchange to a session's history.
func (db *DB) AddMessage(ctx context.Context, msg *model.ChatMessage) error {
	msg.ID = xid.New().String()
	msg.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO chat_history (id, session_id, user_message, bot_response, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID,
		msg.SessionID,
		msg.UserMessage,
		msg.BotResponse,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting chat message: %w", err)
	}

	return nil
}

// ListBySession returns a session's exchanges oldest-first.
func (db *DB) ListBySession(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, session_id, user_message, bot_response, created_at
		 FROM chat_history WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing chat history: %w", err)
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserMessage, &m.BotResponse, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating chat history: %w", err)
	}

	return msgs, nil
}
