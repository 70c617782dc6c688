// Package directory defines the read-side contract against the host
// application's user/project store. The realtime layer only ever resolves an
// identity and a project membership through this interface; how the host
// persists either is its own concern.
package directory

import (
	"context"
	"errors"

	"github.com/collabhq/realtime-go/capabilities"
)

var (
	// ErrUserNotFound indicates the subject of a verified credential has no
	// corresponding user record.
	ErrUserNotFound = errors.New("directory: user not found")
	// ErrProjectNotFound indicates the requested project does not exist.
	ErrProjectNotFound = errors.New("directory: project not found")
)

// User is the minimal identity record the realtime layer needs.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Project carries the membership list and feature flags a handshake needs to
// authorize a connection.
type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	OwnerID string `json:"ownerId"`
	// Members maps user ID to role. The owner does not need to appear here;
	// ownership implies the owner role.
	Members  map[string]capabilities.Role `json:"members,omitempty"`
	Features capabilities.FeatureFlags    `json:"features"`
}

// RoleOf resolves the user's role in the project. Ownership wins over a
// membership entry. The second return is false when the user is neither the
// owner nor in the member list.
func (p *Project) RoleOf(userID string) (capabilities.Role, bool) {
	if userID == "" {
		return "", false
	}
	if p.OwnerID == userID {
		return capabilities.RoleOwner, true
	}
	role, ok := p.Members[userID]
	return role, ok
}

// Directory is the lookup contract. Both calls are the handshake's suspension
// points against external storage: implementations must honor context
// cancellation and return the package sentinels for absence so callers can
// distinguish "not found" from infrastructure failure.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetProject(ctx context.Context, projectID string) (*Project, error)
}
