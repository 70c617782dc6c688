package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/collabhq/realtime-go/capabilities"
)

// ErrDuplicateHandle indicates an insert with a connection handle that is
// already registered. Handles identify live connections and must be unique.
var ErrDuplicateHandle = errors.New("sessions: duplicate connection handle")

// Registry owns every live, authorized connection session. All operations are
// atomic with respect to each other and must not block the connection-accept
// path beyond short in-memory critical sections; implementations backed by
// remote stores should keep per-call work bounded.
//
// A session exists in the registry if and only if its connection is open and
// its most recent revalidation succeeded; the lifecycle manager is the only
// writer.
type Registry interface {
	// Insert adds a new session record. Fails with ErrDuplicateHandle if the
	// connection handle is already present.
	Insert(ctx context.Context, sess Session) error

	// Remove deletes the record for the handle and returns it. The second
	// return is false when no record existed; removing an absent handle is
	// not an error (teardown is idempotent).
	Remove(ctx context.Context, connID string) (Session, bool, error)

	// Get returns a copy of the record for the handle, if present.
	Get(ctx context.Context, connID string) (Session, bool, error)

	// FindByUserAndProject returns copies of every session for the user in
	// the project. Order is unspecified.
	FindByUserAndProject(ctx context.Context, userID, projectID string) ([]Session, error)

	// All returns a point-in-time snapshot of every session. Safe to call
	// while sessions are concurrently inserted and removed.
	All(ctx context.Context) ([]Session, error)

	// SetAuthorization atomically replaces the role and capability set of the
	// session. Returns the updated record; false when the session is gone.
	SetAuthorization(ctx context.Context, connID string, role capabilities.Role, caps capabilities.Set, at time.Time) (Session, bool, error)

	// SetRevalidated records a successful revalidation at the given time.
	// Returns false when the session is gone (the caller must not resurrect
	// it).
	SetRevalidated(ctx context.Context, connID string, at time.Time) (bool, error)

	// Len reports the number of live sessions.
	Len(ctx context.Context) (int, error)
}
