// Package rooms groups live connections and fans events out to them.
//
// # Groups
//
// Group names are derived, never stored. Every authorized session joins its
// project's coarse group and a private per-user group, plus capability-gated
// subgroups:
//
//   - project:<projectID>              every member of the project
//   - project:<projectID>:editors      sessions that may edit tasks
//   - project:<projectID>:managers     sessions that may manage members
//   - project:<projectID>:analytics    sessions that may view analytics
//   - project:<projectID>:files        sessions that may access files
//   - project:<projectID>:user:<uid>   all of one user's sessions
//
// GroupsFor computes the set for a capability snapshot; Reassign applies a
// new set atomically when capabilities change mid-session.
//
// # Fan-out
//
// Publish does not touch local members directly. It marshals the event onto
// a single broker topic; every node's Run loop receives it and delivers to
// the members it holds locally. Single-node and multi-node deployments
// behave identically because the in-memory broker loops publishes back.
//
// Run blocks and must be running for delivery to happen:
//
//	m := rooms.New(bus)
//	go func() { _ = m.Run(ctx) }()
//
// Delivery failures to individual connections are logged and skipped; one
// dead connection never blocks a group.
package rooms
