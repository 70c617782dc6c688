package realtime

import (
	"time"

	"github.com/collabhq/realtime-go/capabilities"
)

// Event names published by the manager.
const (
	// EventPresenceOnline goes to the project group when a session becomes
	// authorized.
	EventPresenceOnline = "user:presence:online"
	// EventPresenceOffline goes to the project group when a session tears
	// down, whatever the cause.
	EventPresenceOffline = "user:presence:offline"
	// EventPermissionsUpdated goes to the affected user's private group
	// when their role changes mid-session.
	EventPermissionsUpdated = "permissions:updated"
)

// PresencePayload announces a session joining or leaving its project.
type PresencePayload struct {
	UserID       string            `json:"userId"`
	Username     string            `json:"username"`
	Role         capabilities.Role `json:"role"`
	Timestamp    time.Time         `json:"timestamp"`
	ConnectionID string            `json:"connectionHandle"`
}

// PermissionsPayload carries the re-resolved capability set after a role
// change. Clients swap their capability snapshot in place; no reconnect.
type PermissionsPayload struct {
	NewRole      capabilities.Role `json:"newRole"`
	Capabilities capabilities.Set  `json:"capabilities"`
	Timestamp    time.Time         `json:"timestamp"`
}
