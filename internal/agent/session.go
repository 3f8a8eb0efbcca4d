package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/russo2100/trading-analytics-rag/internal/store"
)

// SessionListLimit bounds the "list" response.
const SessionListLimit = 5

// SessionQuery looks up trading session summaries.
type SessionQuery struct {
	sessions store.SessionStore
}

var _ Tool = (*SessionQuery)(nil)

// NewSessionQuery creates the tool.
func NewSessionQuery(s store.SessionStore) *SessionQuery {
	return &SessionQuery{sessions: s}
}

func (s *SessionQuery) Name() string { return "SessionQuery" }

func (s *SessionQuery) Description() string {
	return "Returns trading session statistics (cycles, trades, lots, PnL). " +
		"Input: a session id, a date such as 2026-01-30 or 20260130, or 'list' for recent sessions."
}

func (s *SessionQuery) Run(ctx context.Context, input string) (string, error) {
	key := strings.Trim(strings.TrimSpace(input), "`\"'")

	if key == "" || strings.EqualFold(key, "list") {
		sessions, err := s.sessions.ListSessions(ctx, SessionListLimit)
		if err != nil {
			return "", err
		}
		if len(sessions) == 0 {
			return "No trading sessions recorded.", nil
		}
		parts := make([]string, len(sessions))
		for i := range sessions {
			parts[i] = sessions[i].Summary()
		}
		return strings.Join(parts, "\n\n"), nil
	}

	sess, err := s.sessions.GetSession(ctx, key)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return fmt.Sprintf("No trading session found for '%s'.", key), nil
	}
	return sess.Summary(), nil
}
