// Package realtime authorizes collaboration connections and keeps their
// permissions live for the life of the connection.
//
// # Handshake
//
// Handshake runs a fixed pipeline. Order matters and is load-bearing:
//
//  1. parameter presence (credential, project id)
//  2. per-origin rate limit admission
//  3. credential verification (signature, expiry, maximum age)
//  4. identity lookup
//  5. project lookup
//  6. membership and role resolution
//  7. capability resolution from role and project feature flags
//  8. registry insert, group joins, revalidation task start
//  9. presence announcement to the project group
//
// Any step can refuse. Refusals return a sentinel from this package; the
// transport sends PublicMessage(err) to the caller while the audit sink
// receives the full context. Rate limiting precedes verification so an
// abusive origin cannot burn signature checks.
//
// # Lifecycle
//
// A session moves Handshaking -> Authorized, then loops Authorized ->
// Revalidating -> Authorized every revalidation interval until either the
// transport disconnects or a revalidation fails, both of which land in
// Closed. Teardown is exactly-once no matter how the paths race: registry
// record removed, groups left, revalidation task stopped, presence-offline
// announced.
//
// # Permission changes
//
// ApplyRoleChange re-resolves capabilities for a user's live sessions,
// swaps their group memberships atomically, and pushes permissions:updated
// to the user's private group. Connections stay up throughout; clients
// never reconnect to pick up a role change.
//
// # Wiring
//
//	verifier, _ := auth.NewFromDiscovery(ctx, issuer)
//	limiter := ratelimit.NewWindow(ratelimit.Config{})
//	reg := memoryregistry.New()
//	roomMgr := rooms.New(memorybroker.New())
//	go roomMgr.Run(ctx)
//
//	mgr, err := realtime.New(verifier, limiter, dir, reg, roomMgr,
//		realtime.WithLogger(log),
//		realtime.WithMetrics(realtime.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//
// The transport adapter calls Handshake when a connection arrives,
// Authorize before each privileged action, and Disconnect when the
// connection drops.
package realtime
