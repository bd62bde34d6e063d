// Package convlog is the append-only record of conversation turns written by channel adapters.
package convlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelVoice Channel = "voice"
	ChannelWeb   Channel = "web"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelChat, ChannelVoice, ChannelWeb:
		return true
	}
	return false
}

type Role string

const (
	RolePatient Role = "patient"
	RoleAgent   Role = "agent"
	RoleSystem  Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleAgent, RoleSystem:
		return true
	}
	return false
}

type Entry struct {
	ID           int64     `json:"id"`
	ContactPhone string    `json:"contact_phone"`
	Channel      Channel   `json:"channel"`
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	SessionID    string    `json:"session_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, contactPhone string, limit int) ([]Entry, error)
}

type PgStore struct {
	db db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

func (s *PgStore) Append(ctx context.Context, e *Entry) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversation_history (patient_phone, channel, role, message_content, session_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, e.ContactPhone, string(e.Channel), string(e.Role), e.Content, e.SessionID).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if db.IsCheckViolation(err) {
			return apperr.Invalid("conversation entry rejected: %v", err)
		}
		return apperr.Storage("insert conversation entry", err)
	}
	return nil
}

// List returns the most recent entries for a contact, oldest first.
func (s *PgStore) List(ctx context.Context, contactPhone string, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, patient_phone, channel, role, message_content, session_id, created_at
		FROM (
			SELECT * FROM conversation_history
			WHERE patient_phone = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`, contactPhone, limit)
	if err != nil {
		return nil, apperr.Storage("list conversation entries", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var channel, role string
		if err := rows.Scan(&e.ID, &e.ContactPhone, &channel, &role, &e.Content, &e.SessionID, &e.CreatedAt); err != nil {
			return nil, apperr.Storage("scan conversation entry", err)
		}
		e.Channel, e.Role = Channel(channel), Role(role)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list conversation entries", err)
	}
	return out, nil
}

type Service struct {
	store  Store
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) Append(ctx context.Context, e Entry) (*Entry, error) {
	e.ContactPhone = strings.TrimSpace(e.ContactPhone)
	switch {
	case e.ContactPhone == "":
		return nil, apperr.Invalid("contact phone is required")
	case !e.Channel.Valid():
		return nil, apperr.Invalid("unknown channel %q", e.Channel)
	case !e.Role.Valid():
		return nil, apperr.Invalid("unknown role %q", e.Role)
	case strings.TrimSpace(e.Content) == "":
		return nil, apperr.Invalid("message content is required")
	}

	if err := s.store.Append(ctx, &e); err != nil {
		return nil, fmt.Errorf("append conversation entry: %w", err)
	}
	s.logger.Debug().
		Int64("entry_id", e.ID).
		Str("channel", string(e.Channel)).
		Str("role", string(e.Role)).
		Msg("conversation entry appended")
	return &e, nil
}

func (s *Service) List(ctx context.Context, contactPhone string, limit int) ([]Entry, error) {
	if strings.TrimSpace(contactPhone) == "" {
		return nil, apperr.Invalid("contact phone is required")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.store.List(ctx, contactPhone, limit)
}
