// Package sessionstore implements the Session Store port (spec §4.A) on top
// of Redis: a keyed, TTL-bounded conversation log with bounded rotation.
//
// Every operation is best-effort. A Redis fault is logged and swallowed —
// it never propagates to the caller, because an outage of the session store
// must degrade multi-turn behavior without failing a single-turn request.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/domain"
	"github.com/finquery/dispatcher/internal/observability"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const ellipsis = "…"

// deskMap mirrors the original system's trader-id desk mapping.
var deskMap = []struct {
	prefix string
	desk   string
}{
	{"T_HY", "HY"},
	{"T_IG", "IG"},
	{"T_EM", "EM"},
	{"T_RATES", "RATES"},
}

// deriveDesk infers a trading desk from a trader id prefix (e.g. T_HY_001 → HY).
func deriveDesk(userID string) string {
	upper := strings.ToUpper(userID)
	for _, m := range deskMap {
		if strings.HasPrefix(upper, m.prefix) {
			return m.desk
		}
	}
	return "GENERAL"
}

// deriveRole classifies a caller as business (trader) or technical (system/dev).
func deriveRole(userID string) domain.UserRole {
	if strings.HasPrefix(strings.ToUpper(userID), "T_") {
		return domain.UserRoleBusiness
	}
	return domain.UserRoleTechnical
}

// truncate bounds text to maxChars, appending an ellipsis sentinel when cut.
func truncate(text string, maxChars int) string {
	r := []rune(text)
	if len(r) <= maxChars {
		return text
	}
	return string(r[:maxChars]) + ellipsis
}

type record struct {
	UserID       string           `json:"user_id"`
	Desk         string           `json:"desk_name"`
	Role         domain.UserRole  `json:"user_role"`
	Messages     []domain.Message `json:"messages"`
	MessageCount int64            `json:"message_count"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	ExpiresAt    time.Time        `json:"ttl"`
}

// Store is a Redis-backed implementation of domain.SessionStore.
type Store struct {
	redis       *redis.Client
	ttl         time.Duration
	maxMessages int
	maxMsgChars int
	keyPrefix   string
}

// New builds a Store from a Redis client and the dispatcher configuration.
func New(rdb *redis.Client, cfg config.Config) *Store {
	return &Store{
		redis:       rdb,
		ttl:         cfg.SessionTTL(),
		maxMessages: cfg.SessionMaxMessages,
		maxMsgChars: cfg.SessionMaxMsgChars,
		keyPrefix:   cfg.SessionTable + ":",
	}
}

func (s *Store) key(sessionID string) string { return s.keyPrefix + sessionID }

func (s *Store) get(ctx context.Context, sessionID string) (record, bool) {
	raw, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		return record{}, false
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		slog.Warn("session store decode failed", slog.String("session_id", sessionID), slog.Any("error", err))
		return record{}, false
	}
	return rec, true
}

func (s *Store) put(ctx context.Context, sessionID string, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("op=sessionstore.put encode: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("op=sessionstore.put write: %w", err)
	}
	return nil
}

// Create mints a fresh session id and writes an empty log. It always returns
// a usable id, even when the write itself failed.
func (s *Store) Create(ctx context.Context, userID, desk string) (string, error) {
	sessionID := "sess-" + strings.ToLower(ulid.Make().String())
	if desk == "" {
		desk = deriveDesk(userID)
	}
	if userID == "" {
		userID = "anonymous"
	}
	now := time.Now()
	rec := record{
		UserID:       userID,
		Desk:         desk,
		Role:         deriveRole(userID),
		Messages:     []domain.Message{},
		MessageCount: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.put(ctx, sessionID, rec); err != nil {
		slog.Warn("session store create degraded", slog.String("session_id", sessionID), slog.Any("error", err))
		observability.RecordSessionStoreOp("create", "degraded")
		return sessionID, nil
	}
	observability.RecordSessionStoreOp("create", "success")
	return sessionID, nil
}

// Load returns the message log for sessionID, or an empty log if missing or
// the backend is unavailable.
func (s *Store) Load(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rec, ok := s.get(ctx, sessionID)
	if !ok {
		observability.RecordSessionStoreOp("load", "empty")
		return nil, nil
	}
	observability.RecordSessionStoreOp("load", "success")
	return rec.Messages, nil
}

// Append appends a user/assistant turn, rotates to the configured maximum,
// refreshes the session's TTL, and lazily fills user/desk when they were
// previously empty. It is a plain read-modify-write (GET, then SET) with no
// transaction: when two appends to the same session overlap, the later write
// wins and the other turn is lost. Failures are logged and swallowed.
func (s *Store) Append(ctx context.Context, sessionID, userText, assistantText, userID, desk string) error {
	rec, ok := s.get(ctx, sessionID)
	now := time.Now()
	if !ok {
		rec = record{
			UserID:    "anonymous",
			CreatedAt: now,
		}
	}

	rec.Messages = append(rec.Messages,
		domain.Message{Role: domain.RoleUser, Content: truncate(userText, s.maxMsgChars)},
		domain.Message{Role: domain.RoleAssistant, Content: truncate(assistantText, s.maxMsgChars)},
	)
	if len(rec.Messages) > s.maxMessages {
		rec.Messages = rec.Messages[len(rec.Messages)-s.maxMessages:]
	}

	if rec.UserID == "" || rec.UserID == "anonymous" {
		if userID != "" {
			rec.UserID = userID
		} else if rec.UserID == "" {
			rec.UserID = "anonymous"
		}
	}
	if rec.Desk == "" {
		if desk != "" {
			rec.Desk = desk
		} else {
			rec.Desk = deriveDesk(rec.UserID)
		}
	}
	if rec.Role == "" {
		rec.Role = deriveRole(rec.UserID)
	}

	rec.MessageCount++
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.ttl)

	if err := s.put(ctx, sessionID, rec); err != nil {
		slog.Warn("session store append degraded", slog.String("session_id", sessionID), slog.Any("error", err))
		observability.RecordSessionStoreOp("append", "degraded")
		return nil
	}
	observability.RecordSessionStoreOp("append", "success")
	return nil
}

// RenderContext deterministically formats a message log as a
// "Conversation History" context block, matching the original system's
// "Trader"/"System" role labels.
func (s *Store) RenderContext(log []domain.Message) string {
	if len(log) == 0 {
		return ""
	}
	lines := make([]string, 0, len(log)+1)
	lines = append(lines, "[Conversation History — previous turns in this session]")
	for _, m := range log {
		label := "System"
		if m.Role == domain.RoleUser {
			label = "Trader"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, m.Content))
	}
	return strings.Join(lines, "\n")
}

var _ domain.SessionStore = (*Store)(nil)
