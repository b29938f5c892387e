package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Type names what happened.
type Type string

const (
	Signup            Type = "signup"
	SignupRateLimited Type = "signup_rate_limited"
	LoginSuccess      Type = "login_success"
	LoginFailure      Type = "login_failure"
	LoginLocked       Type = "login_locked"
	LoginRateLimited  Type = "login_rate_limited"
	AccountLocked     Type = "account_locked"
	MFARequired       Type = "mfa_required"
	MFAEnrolled       Type = "mfa_enrolled"
	MFASuccess        Type = "mfa_success"
	MFAFailure        Type = "mfa_failure"
	MFARateLimited    Type = "mfa_rate_limited"
	MFAReplay         Type = "mfa_replay"
	BackupCodeUsed    Type = "backup_code_used"
	BackupCodeFailed  Type = "backup_code_failed"
	RefreshSuccess    Type = "refresh_success"
	RefreshFailure    Type = "refresh_failure"
	Logout            Type = "logout"
	EncryptionSaltSet Type = "encryption_salt_set"
)

// Category groups event types by the part of the account they concern.
type Category string

const (
	CategoryAccount Category = "account"
	CategoryLogin   Category = "login"
	CategoryMFA     Category = "mfa"
	CategorySession Category = "session"
	CategoryVault   Category = "vault"
)

// Category returns the group t belongs to. Unknown types are account
// events.
func (t Type) Category() Category {
	switch t {
	case LoginSuccess, LoginFailure, LoginLocked, LoginRateLimited, AccountLocked:
		return CategoryLogin
	case MFARequired, MFAEnrolled, MFASuccess, MFAFailure, MFARateLimited, MFAReplay,
		BackupCodeUsed, BackupCodeFailed:
		return CategoryMFA
	case RefreshSuccess, RefreshFailure, Logout:
		return CategorySession
	case EncryptionSaltSet:
		return CategoryVault
	default:
		return CategoryAccount
	}
}

// Critical reports whether t records an attack signal or a spent
// credential. The dispatcher never drops critical events.
func (t Type) Critical() bool {
	switch t {
	case AccountLocked, MFAReplay, BackupCodeUsed:
		return true
	}
	return false
}

// Source is where a request came from.
type Source struct {
	RequestID string
	IP        string
	UserAgent string
}

// Event is a security-relevant record. It never carries passwords, TOTP
// secrets, codes, tokens or key material.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      Type              `json:"event_type"`
	Category  Category          `json:"category"`
	UserID    string            `json:"user_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New returns a successful event of type t.
func New(t Type, at time.Time, src Source) Event {
	return Event{
		Timestamp: at.UTC(),
		Type:      t,
		Category:  t.Category(),
		RequestID: src.RequestID,
		IP:        src.IP,
		UserAgent: src.UserAgent,
		Success:   true,
	}
}

// ForUser sets the account the event concerns.
func (e Event) ForUser(userID string) Event {
	e.UserID = userID
	return e
}

// Failed marks the event unsuccessful. code is a short stable label, never
// an error message.
func (e Event) Failed(code string) Event {
	e.Success = false
	e.Error = code
	return e
}

// With adds metadata entries; empty values are skipped.
func (e Event) With(metadata map[string]string) Event {
	for k, v := range metadata {
		if v == "" {
			continue
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, len(metadata))
		}
		e.Metadata[k] = v
	}
	return e
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(append(line, '\n'))
}

// MultiSink fans an event out to every non-nil sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
