package sessions

import (
	"context"
	"time"

	"github.com/collabhq/realtime-go/capabilities"
)

// Conn is the minimal contract a transport adapter provides for one live
// bidirectional connection. Implementations must be safe for concurrent use:
// the room manager fans out events from its own goroutine while the lifecycle
// manager may force-close the connection.
type Conn interface {
	// ID returns the opaque, process-unique connection handle.
	ID() string

	// Send delivers one named event with a JSON payload to the client.
	Send(ctx context.Context, event string, payload []byte) error

	// Close tears down the transport connection. The reason is a short
	// machine-readable code (e.g. "revalidation_failed"); it must not carry
	// authorization detail.
	Close(reason string) error
}

// Session is the record of one authenticated live connection. Records are
// plain values; reads return copies, and authorization fields are only ever
// replaced wholesale.
type Session struct {
	// ConnID is the opaque connection handle, unique per live connection.
	ConnID string

	// UserID and Username identify the authenticated principal. Username is
	// carried for presence payloads; the directory remains authoritative.
	UserID   string
	Username string

	// ProjectID scopes the session to exactly one project.
	ProjectID string

	// Role and Capabilities are the resolved authorization for this session.
	// Capabilities is always the output of a single resolve call, never a
	// field-by-field edit.
	Role         capabilities.Role
	Capabilities capabilities.Set

	// CredentialFingerprint is a non-reversible digest of the bearer
	// credential, retained only to detect credential change. The raw
	// credential is never stored.
	CredentialFingerprint string

	AuthorizedAt      time.Time
	LastRevalidatedAt time.Time
}
