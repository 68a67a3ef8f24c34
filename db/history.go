package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/brettboylen/creator-pulse/models"
)

// History kinds, one table each
const (
	KindAlert   = "alert"
	KindInsight = "insight"
)

func historyTable(kind string) (string, error) {
	switch kind {
	case KindAlert:
		return "alert_history", nil
	case KindInsight:
		return "insight_history", nil
	}
	return "", fmt.Errorf("unknown history kind %q", kind)
}

// AppendAlertHistory records a delivered alert and makes it the creator's last alert
func (d *Database) AppendAlertHistory(ctx context.Context, creatorID string, entry models.HistoryEntry) error {
	return d.AppendHistory(ctx, KindAlert, creatorID, entry)
}

// AppendInsightHistory records a delivered fallback insight
func (d *Database) AppendInsightHistory(ctx context.Context, creatorID string, entry models.HistoryEntry) error {
	return d.AppendHistory(ctx, KindInsight, creatorID, entry)
}

// GetAlertHistory returns alerts shown at or after since, newest first.
// A zero since returns the whole history.
func (d *Database) GetAlertHistory(ctx context.Context, creatorID string, since time.Time) ([]models.HistoryEntry, error) {
	return d.history(ctx, KindAlert, creatorID, since)
}

// GetInsightHistory returns insights shown at or after since, newest first
func (d *Database) GetInsightHistory(ctx context.Context, creatorID string, since time.Time) ([]models.HistoryEntry, error) {
	return d.history(ctx, KindInsight, creatorID, since)
}

// GetDialogueState returns the creator's last alert, or a zero state
func (d *Database) GetDialogueState(ctx context.Context, creatorID string) (models.DialogueState, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var state models.DialogueState
	var lastAt int64
	err := d.db.QueryRowContext(ctx,
		"SELECT last_alert_type, last_alert_at FROM dialogue_state WHERE creator_id = ?", creatorID,
	).Scan(&state.LastAlertType, &lastAt)
	if err == sql.ErrNoRows {
		return models.DialogueState{}, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to get dialogue state: %w", err)
	}
	if lastAt > 0 {
		state.LastAlertAt = fromUnix(lastAt)
	}
	return state, nil
}

// AppendHistory records a delivered event of the given kind
func (d *Database) AppendHistory(ctx context.Context, kind, creatorID string, entry models.HistoryEntry) error {
	table, err := historyTable(kind)
	if err != nil {
		return err
	}
	if entry.Type == "" {
		return fmt.Errorf("history entry for creator %s has no type", creatorID)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = d.now()
	}

	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode history details: %w", err)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("INSERT INTO %s (creator_id, type, message, details, shown_at) VALUES (?, ?, ?, ?, ?)", table)
	if _, err := tx.ExecContext(ctx, query, creatorID, entry.Type, entry.Message, string(detailsJSON), entry.Timestamp.Unix()); err != nil {
		return fmt.Errorf("failed to append %s history: %w", kind, err)
	}

	if kind == KindAlert {
		stateQuery := `
		INSERT INTO dialogue_state (creator_id, last_alert_type, last_alert_at) VALUES (?, ?, ?)
		ON CONFLICT(creator_id) DO UPDATE SET
			last_alert_type = excluded.last_alert_type,
			last_alert_at = excluded.last_alert_at
		`
		if _, err := tx.ExecContext(ctx, stateQuery, creatorID, entry.Type, entry.Timestamp.Unix()); err != nil {
			return fmt.Errorf("failed to update dialogue state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s history: %w", kind, err)
	}
	return nil
}

func (d *Database) history(ctx context.Context, kind, creatorID string, since time.Time) ([]models.HistoryEntry, error) {
	table, err := historyTable(kind)
	if err != nil {
		return nil, err
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var sinceUnix int64
	if !since.IsZero() {
		sinceUnix = since.Unix()
	}

	query := fmt.Sprintf(`
	SELECT type, message, details, shown_at
	FROM %s
	WHERE creator_id = ? AND shown_at >= ?
	ORDER BY shown_at DESC, id DESC
	`, table)

	rows, err := d.db.QueryContext(ctx, query, creatorID, sinceUnix)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s history: %w", kind, err)
	}
	defer rows.Close()

	entries := make([]models.HistoryEntry, 0)
	for rows.Next() {
		var entry models.HistoryEntry
		var details string
		var shownAt int64

		if err := rows.Scan(&entry.Type, &entry.Message, &details, &shownAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s history: %w", kind, err)
		}
		entry.Timestamp = fromUnix(shownAt)
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode history details: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}
