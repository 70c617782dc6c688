// Package audit records authorization decisions with their full context.
// Callers receive only generic refusal messages; the specific reason for
// every refusal lands here and nowhere else.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Action identifies the operation being audited.
type Action string

const (
	ActionHandshake  Action = "handshake"
	ActionAuthorize  Action = "authorize"
	ActionRevalidate Action = "revalidate"
	ActionRoleChange Action = "role_change"
	ActionDisconnect Action = "disconnect"
)

// Outcome classifies how the operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRefused Outcome = "refused"
	OutcomeError   Outcome = "error"
)

// Entry is one audited decision. Reason carries the machine-readable
// refusal code; Detail carries the full human-readable explanation that
// must never reach the caller.
type Entry struct {
	Time      time.Time
	Action    Action
	Outcome   Outcome
	Reason    string
	Origin    string
	UserID    string
	ProjectID string
	ConnID    string
	Detail    string
}

// Sink consumes audit entries. Implementations must not block the caller
// for long and must never panic; authorization flow continues regardless of
// what the sink does.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

type logSink struct {
	log *slog.Logger
}

// NewLogSink returns a Sink that writes entries to log. Successes log at
// Info, refusals and errors at Warn.
func NewLogSink(log *slog.Logger) Sink {
	if log == nil {
		log = slog.Default()
	}
	return &logSink{log: log}
}

func (s *logSink) Record(ctx context.Context, e Entry) {
	level := slog.LevelInfo
	if e.Outcome != OutcomeSuccess {
		level = slog.LevelWarn
	}

	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs, slog.String("outcome", string(e.Outcome)))
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.Origin != "" {
		attrs = append(attrs, slog.String("origin", e.Origin))
	}
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", e.UserID))
	}
	if e.ProjectID != "" {
		attrs = append(attrs, slog.String("project_id", e.ProjectID))
	}
	if e.ConnID != "" {
		attrs = append(attrs, slog.String("conn_id", e.ConnID))
	}
	if e.Detail != "" {
		attrs = append(attrs, slog.String("detail", e.Detail))
	}

	s.log.LogAttrs(ctx, level, "audit."+string(e.Action), attrs...)
}

type nopSink struct{}

func (nopSink) Record(ctx context.Context, e Entry) {}

// Nop returns a Sink that discards every entry.
func Nop() Sink { return nopSink{} }
