package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/toolgate/internal/tool"
)

// DecisionStore is a tool.DecisionStore backed by SQLite.
type DecisionStore struct {
	db *sql.DB
}

var _ tool.DecisionStore = (*DecisionStore)(nil)

// StoredDecision is one row of the store.
type StoredDecision struct {
	Key       tool.DecisionKey
	Decision  tool.Decision
	UpdatedAt time.Time
}

// Lookup implements tool.DecisionStore.
func (s *DecisionStore) Lookup(ctx context.Context, key tool.DecisionKey) (tool.Decision, bool, error) {
	var (
		approved int
		reason   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT approved, reason FROM decisions WHERE tool_name = ? AND arguments = ?`,
		key.ToolName, key.Args,
	).Scan(&approved, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return tool.Decision{}, false, nil
	}
	if err != nil {
		return tool.Decision{}, false, fmt.Errorf("sqlite: lookup decision: %w", err)
	}
	return tool.Decision{Approved: approved != 0, Persist: true, Reason: reason}, true, nil
}

// Remember implements tool.DecisionStore.
func (s *DecisionStore) Remember(ctx context.Context, key tool.DecisionKey, d tool.Decision) error {
	approved := 0
	if d.Approved {
		approved = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (tool_name, arguments, approved, reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tool_name, arguments) DO UPDATE SET
			approved   = excluded.approved,
			reason     = excluded.reason,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		key.ToolName, key.Args, approved, d.Reason,
	)
	if err != nil {
		return fmt.Errorf("sqlite: remember decision: %w", err)
	}
	return nil
}

// List returns every stored decision, ordered by tool name then arguments.
func (s *DecisionStore) List(ctx context.Context) ([]StoredDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name, arguments, approved, reason, updated_at
		FROM decisions
		ORDER BY tool_name, arguments`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredDecision
	for rows.Next() {
		var (
			sd       StoredDecision
			approved int
			updated  string
		)
		if err := rows.Scan(&sd.Key.ToolName, &sd.Key.Args, &approved, &sd.Decision.Reason, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan decision: %w", err)
		}
		sd.Decision.Approved = approved != 0
		sd.Decision.Persist = true
		if ts, err := time.Parse("2006-01-02T15:04:05.000Z", updated); err == nil {
			sd.UpdatedAt = ts
		}
		out = append(out, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list decisions rows: %w", err)
	}
	return out, nil
}

// Forget deletes every decision for toolName, or all decisions when
// toolName is empty. It returns the number of rows removed.
func (s *DecisionStore) Forget(ctx context.Context, toolName string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if toolName == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM decisions`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM decisions WHERE tool_name = ?`, toolName)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: forget decisions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *DecisionStore) Close() error {
	return s.db.Close()
}
