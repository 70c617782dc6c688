// Package sessions defines the connection session abstraction shared by the
// realtime lifecycle manager and the room/broadcast layer. A Session is the
// server-side record of one authenticated, live, project-scoped connection:
// who is connected, with which role and capability set, and when that
// authorization was last confirmed.
//
// Layers & Roles
//
//	Transport adapter -> owns the socket, implements Conn (send + close)
//	Registry          -> concurrency-safe ownership of all Session records
//	realtime.Manager  -> the only writer of session lifecycle state
//	rooms.Manager     -> reads capability sets to derive group membership
//
// # Registry
//
// Registry abstracts the live-session store: insert on successful handshake,
// remove exactly once on teardown, indexed lookup by (user, project) for
// permission propagation, and snapshot iteration that is safe while sessions
// connect and disconnect concurrently.
//
// Implementations
//
//	memoryregistry : in-process reference implementation used by tests and
//	                 single-node deployments
//
// Session records are plain data. The raw bearer credential never appears in
// a record; only its non-reversible fingerprint is retained for change
// detection. Cancellable revalidation tasks are keyed by connection handle
// inside the lifecycle manager, not stored here.
package sessions
