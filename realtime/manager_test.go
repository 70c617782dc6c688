package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/collabhq/realtime-go/audit"
	"github.com/collabhq/realtime-go/audit/audittest"
	"github.com/collabhq/realtime-go/auth"
	"github.com/collabhq/realtime-go/auth/authtest"
	"github.com/collabhq/realtime-go/broker/memorybroker"
	"github.com/collabhq/realtime-go/capabilities"
	"github.com/collabhq/realtime-go/directory"
	"github.com/collabhq/realtime-go/directory/memorydir"
	"github.com/collabhq/realtime-go/ratelimit"
	"github.com/collabhq/realtime-go/rooms"
	"github.com/collabhq/realtime-go/sessions"
	"github.com/collabhq/realtime-go/sessions/conntest"
	"github.com/collabhq/realtime-go/sessions/memoryregistry"
)

// logBridge forwards slog records to t.Log so test failures show the
// manager's log lines inline.
type logBridge struct {
	slog.Handler
	t   testing.TB
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (b *logBridge) Handle(ctx context.Context, rec slog.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.Handler.Handle(ctx, rec); err != nil {
		return err
	}
	output, err := io.ReadAll(b.buf)
	if err != nil {
		return err
	}
	output = bytes.TrimSuffix(output, []byte("\n"))
	b.t.Log(string(output))
	return nil
}

func testLogHandler(t testing.TB) *logBridge {
	b := &logBridge{t: t, buf: &bytes.Buffer{}, mu: &sync.Mutex{}}
	b.Handler = slog.NewTextHandler(b.buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return b
}

// countingVerifier counts VerifyToken calls so tests can prove the rate
// limiter runs before verification.
type countingVerifier struct {
	inner auth.TokenVerifier
	calls atomic.Int64
}

func (v *countingVerifier) VerifyToken(ctx context.Context, token string) (*auth.Claims, error) {
	v.calls.Add(1)
	return v.inner.VerifyToken(ctx, token)
}

func seedDirectory() *memorydir.Store {
	d := memorydir.New()
	d.PutUser(directory.User{ID: "u-owner", Username: "olive"})
	d.PutUser(directory.User{ID: "u-admin", Username: "grace"})
	d.PutUser(directory.User{ID: "u-member", Username: "ada"})
	d.PutUser(directory.User{ID: "u-outsider", Username: "mallory"})
	d.PutProject(directory.Project{
		ID:      "p1",
		Name:    "Apollo",
		OwnerID: "u-owner",
		Members: map[string]capabilities.Role{
			"u-admin":  capabilities.RoleAdmin,
			"u-member": capabilities.RoleMember,
		},
		Features: capabilities.FeatureFlags{Analytics: true, Comments: true, Files: true},
	})
	return d
}

type fixture struct {
	signer   *authtest.Signer
	verifier *countingVerifier
	dir      *memorydir.Store
	registry *memoryregistry.Registry
	rooms    *rooms.Manager
	capture  *audittest.Capture
	mgr      *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	signer := authtest.NewSigner()
	base, err := signer.Verifier(auth.WithLeeway(0))
	if err != nil {
		t.Fatalf("build verifier: %v", err)
	}
	verifier := &countingVerifier{inner: base}

	dir := seedDirectory()
	registry := memoryregistry.New()
	roomMgr := rooms.New(memorybroker.New(), rooms.WithLogger(slog.New(testLogHandler(t))))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() { defer close(runDone); _ = roomMgr.Run(ctx) }()
	t.Cleanup(func() { cancel(); <-runDone })
	// Let the fanout subscription register before tests publish.
	time.Sleep(100 * time.Millisecond)

	limiter := ratelimit.NewWindow(ratelimit.Config{Window: time.Minute, MaxAttempts: 10})
	t.Cleanup(limiter.Close)

	capture := audittest.NewCapture()
	mgrOpts := append([]Option{
		WithLogger(slog.New(testLogHandler(t))),
		WithAuditSink(capture),
	}, opts...)
	mgr, err := New(verifier, limiter, dir, registry, roomMgr, mgrOpts...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	return &fixture{
		signer:   signer,
		verifier: verifier,
		dir:      dir,
		registry: registry,
		rooms:    roomMgr,
		capture:  capture,
		mgr:      mgr,
	}
}

func (f *fixture) handshake(t *testing.T, connID, userID string) *conntest.Conn {
	t.Helper()
	conn := conntest.New(connID)
	_, err := f.mgr.Handshake(context.Background(), HandshakeRequest{
		Conn:      conn,
		Token:     f.signer.MintValid(userID, userID),
		ProjectID: "p1",
		Origin:    "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("handshake %s/%s: %v", connID, userID, err)
	}
	return conn
}

// waitPresence consumes presence frames until one for userID arrives.
// Sessions receive their own presence too, so tests filter by subject.
func waitPresence(t *testing.T, conn *conntest.Conn, event, userID string) PresencePayload {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("no %q for %s", event, userID)
		}
		frame := conn.WaitFrame(t, event, remaining)
		var p PresencePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			t.Fatalf("decode presence payload: %v", err)
		}
		if p.UserID == userID {
			return p
		}
	}
}

func TestHandshakeAuthorizesMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	observer := f.handshake(t, "c-obs", "u-admin")

	conn := conntest.New("c1")
	sess, err := f.mgr.Handshake(ctx, HandshakeRequest{
		Conn:      conn,
		Token:     f.signer.MintValid("u-member", "ada"),
		ProjectID: "p1",
		Origin:    "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}

	if sess.Role != capabilities.RoleMember {
		t.Fatalf("want member role, got %s", sess.Role)
	}
	if sess.Username != "ada" {
		t.Fatalf("directory username should win, got %q", sess.Username)
	}
	if !sess.Capabilities.CanEditTasks || sess.Capabilities.CanDeleteProject {
		t.Fatalf("member capabilities wrong: %+v", sess.Capabilities)
	}
	if len(sess.CredentialFingerprint) != 64 {
		t.Fatalf("want sha-256 fingerprint, got %q", sess.CredentialFingerprint)
	}

	got, ok, err := f.registry.Get(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("registry must hold the session: ok=%v err=%v", ok, err)
	}
	if got.UserID != "u-member" || got.ProjectID != "p1" {
		t.Fatalf("registry record wrong: %+v", got)
	}

	groups := f.rooms.Groups("c1")
	// member with all flags on: project, user, editors, analytics, files.
	if len(groups) != 5 {
		t.Fatalf("member group set wrong: %v", groups)
	}

	p := waitPresence(t, observer, EventPresenceOnline, "u-member")
	if p.Username != "ada" || p.Role != capabilities.RoleMember || p.ConnectionID != "c1" {
		t.Fatalf("presence payload wrong: %+v", p)
	}

	entries := f.capture.ByAction(audit.ActionHandshake)
	last := entries[len(entries)-1]
	if last.Outcome != audit.OutcomeSuccess || last.UserID != "u-member" {
		t.Fatalf("handshake audit wrong: %+v", last)
	}
}

func TestHandshakeRefusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now()
	cases := []struct {
		name      string
		token     string
		projectID string
		want      error
	}{
		{"no token", "", "p1", ErrNoToken},
		{"no project id", "", "", ErrNoToken}, // token checked first
		{"missing project only", "valid", "", ErrNoProjectID},
		{"malformed credential", "not-a-jwt", "p1", ErrMalformedCredential},
		{"expired credential", f.signer.Mint("u-member", "ada", now.Add(-2*time.Hour), now.Add(-time.Hour)), "p1", ErrExpiredCredential},
		{"unknown subject", f.signer.MintValid("u-ghost", "ghost"), "p1", ErrIdentityNotFound},
		{"unknown project", "valid", "p-missing", ErrProjectNotFound},
		{"not a member", f.signer.MintValid("u-outsider", "mallory"), "p1", ErrNotAMember},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := tc.token
			if token == "valid" {
				token = f.signer.MintValid("u-member", "ada")
			}
			conn := conntest.New(fmt.Sprintf("c-refuse-%d", i))
			_, err := f.mgr.Handshake(ctx, HandshakeRequest{
				Conn:      conn,
				Token:     token,
				ProjectID: tc.projectID,
				Origin:    fmt.Sprintf("198.51.100.%d", i),
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if got := PublicMessage(err); got != "Connection refused." {
				t.Fatalf("refusals must stay generic, got %q", got)
			}

			if _, ok, _ := f.registry.Get(ctx, conn.ID()); ok {
				t.Fatalf("refused handshake must not leave a registry entry")
			}
			if groups := f.rooms.Groups(conn.ID()); len(groups) != 0 {
				t.Fatalf("refused handshake must not join groups: %v", groups)
			}

			last, ok := f.capture.Last()
			if !ok || last.Outcome != audit.OutcomeRefused {
				t.Fatalf("refusal must be audited: %+v", last)
			}
			if last.Reason != reasonCode(tc.want) {
				t.Fatalf("audit reason %q, want %q", last.Reason, reasonCode(tc.want))
			}
			if last.Detail == "" {
				t.Fatalf("audit entry must carry the full detail")
			}
		})
	}

	if n, _ := f.registry.Len(ctx); n != 0 {
		t.Fatalf("no refused handshake may create a session, have %d", n)
	}
}

func TestRateLimitRunsBeforeVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	origin := "203.0.113.7"

	for i := 1; i <= 10; i++ {
		conn := conntest.New(fmt.Sprintf("c%d", i))
		_, err := f.mgr.Handshake(ctx, HandshakeRequest{
			Conn: conn, Token: "garbage", ProjectID: "p1", Origin: origin,
		})
		if !errors.Is(err, ErrMalformedCredential) {
			t.Fatalf("attempt %d: want ErrMalformedCredential, got %v", i, err)
		}
	}
	if got := f.verifier.calls.Load(); got != 10 {
		t.Fatalf("first 10 attempts must reach the verifier, got %d calls", got)
	}

	conn := conntest.New("c11")
	_, err := f.mgr.Handshake(ctx, HandshakeRequest{
		Conn: conn, Token: "garbage", ProjectID: "p1", Origin: origin,
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("attempt 11: want ErrRateLimited, got %v", err)
	}
	if got := f.verifier.calls.Load(); got != 10 {
		t.Fatalf("attempt 11 must never reach the verifier, got %d calls", got)
	}

	// A different origin still has its own budget.
	conn2 := conntest.New("c12")
	if _, err := f.mgr.Handshake(ctx, HandshakeRequest{
		Conn: conn2, Token: "garbage", ProjectID: "p1", Origin: "203.0.113.8",
	}); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("fresh origin should reach verification, got %v", err)
	}
}

func TestDisconnectTearsDownOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	observer := f.handshake(t, "c-obs", "u-admin")
	f.handshake(t, "c1", "u-member")
	waitPresence(t, observer, EventPresenceOnline, "u-member")

	f.mgr.Disconnect(ctx, "c1")

	if _, ok, _ := f.registry.Get(ctx, "c1"); ok {
		t.Fatalf("registry entry must be gone after disconnect")
	}
	if groups := f.rooms.Groups("c1"); len(groups) != 0 {
		t.Fatalf("group memberships must be gone: %v", groups)
	}
	p := waitPresence(t, observer, EventPresenceOffline, "u-member")
	if p.ConnectionID != "c1" {
		t.Fatalf("offline presence names wrong connection: %+v", p)
	}

	// Second disconnect is a no-op: no second audit entry, no second
	// offline event.
	f.mgr.Disconnect(ctx, "c1")
	if got := len(f.capture.ByAction(audit.ActionDisconnect)); got != 1 {
		t.Fatalf("teardown must audit exactly once, got %d", got)
	}
	observer.ExpectNone(t, EventPresenceOffline, 200*time.Millisecond)

	if n, _ := f.registry.Len(ctx); n != 1 {
		t.Fatalf("observer session must survive, have %d", n)
	}
}

func TestRevalidationFailureClosesSession(t *testing.T) {
	f := newFixture(t, WithRevalidateInterval(50*time.Millisecond))
	ctx := context.Background()

	observer := f.handshake(t, "c-obs", "u-admin")

	// Claim timestamps have second granularity, so the shortest reliable
	// lifetime is two seconds.
	conn := conntest.New("c1")
	now := time.Now()
	_, err := f.mgr.Handshake(ctx, HandshakeRequest{
		Conn:      conn,
		Token:     f.signer.Mint("u-member", "ada", now, now.Add(2*time.Second)),
		ProjectID: "p1",
		Origin:    "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("handshake with short-lived credential: %v", err)
	}

	select {
	case <-conn.Closed():
	case <-time.After(5 * time.Second):
		t.Fatalf("connection not closed after credential expiry")
	}
	if got := conn.CloseReason(); got != "Session terminated." {
		t.Fatalf("close reason %q", got)
	}

	if _, ok, _ := f.registry.Get(ctx, "c1"); ok {
		t.Fatalf("registry entry must be gone after revalidation failure")
	}
	if groups := f.rooms.Groups("c1"); len(groups) != 0 {
		t.Fatalf("group memberships must be gone: %v", groups)
	}
	waitPresence(t, observer, EventPresenceOffline, "u-member")

	revals := f.capture.ByAction(audit.ActionRevalidate)
	if len(revals) == 0 {
		t.Fatalf("revalidation failure must be audited")
	}
	last := revals[len(revals)-1]
	if last.Outcome != audit.OutcomeRefused || last.Reason != "revalidation_failed" {
		t.Fatalf("revalidation audit wrong: %+v", last)
	}
}

func TestRoleChangePropagatesWithoutReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	memberConn := f.handshake(t, "c1", "u-member")
	adminConn := f.handshake(t, "c2", "u-admin")

	if err := f.mgr.Authorize(ctx, "c1", capabilities.CapManageMembers); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("member must not manage members yet: %v", err)
	}

	if err := f.dir.SetRole("p1", "u-member", capabilities.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := f.mgr.ApplyRoleChange(ctx, "u-member", "p1", capabilities.RoleAdmin); err != nil {
		t.Fatalf("apply role change: %v", err)
	}

	frame := memberConn.WaitFrame(t, EventPermissionsUpdated, 3*time.Second)
	var p PermissionsPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("decode permissions payload: %v", err)
	}
	if p.NewRole != capabilities.RoleAdmin {
		t.Fatalf("want new role admin, got %s", p.NewRole)
	}
	if !p.Capabilities.CanManageMembers || p.Capabilities.CanDeleteProject {
		t.Fatalf("admin capabilities wrong: %+v", p.Capabilities)
	}

	// The update targets only the affected user's private group.
	adminConn.ExpectNone(t, EventPermissionsUpdated, 200*time.Millisecond)

	got, ok, _ := f.registry.Get(ctx, "c1")
	if !ok || got.Role != capabilities.RoleAdmin || !got.Capabilities.CanManageMembers {
		t.Fatalf("registry must hold the new authorization: %+v", got)
	}

	found := false
	for _, g := range f.rooms.Groups("c1") {
		if g == rooms.ManagersGroup("p1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("promoted session must join the managers group: %v", f.rooms.Groups("c1"))
	}

	if err := f.mgr.Authorize(ctx, "c1", capabilities.CapManageMembers); err != nil {
		t.Fatalf("promoted session must pass the check: %v", err)
	}

	// Same connection keeps receiving traffic; no reconnect happened.
	if _, err := f.rooms.Publish(ctx, rooms.ProjectGroup("p1"), "task:created", []byte(`{"taskId":"t9"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	memberConn.WaitFrame(t, "task:created", 3*time.Second)
}

func TestAuthorizePerAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handshake(t, "c1", "u-member")

	if err := f.mgr.Authorize(ctx, "c1", capabilities.CapEditTasks); err != nil {
		t.Fatalf("member can edit tasks: %v", err)
	}

	err := f.mgr.Authorize(ctx, "c1", capabilities.CapDeleteProject)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("want ErrPermissionDenied, got %v", err)
	}
	if got := PublicMessage(err); got != "Permission denied." {
		t.Fatalf("public message %q", got)
	}

	// Denial is per-action, never connection-fatal.
	if _, ok, _ := f.registry.Get(ctx, "c1"); !ok {
		t.Fatalf("session must survive a denied action")
	}
	if err := f.mgr.Authorize(ctx, "c1", capabilities.CapEditTasks); err != nil {
		t.Fatalf("later actions still pass: %v", err)
	}

	denials := f.capture.ByAction(audit.ActionAuthorize)
	if len(denials) != 1 || denials[0].Reason != "permission_denied" {
		t.Fatalf("denial must be audited: %+v", denials)
	}

	if err := f.mgr.Authorize(ctx, "c-unknown", capabilities.CapView); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("unknown connection must be denied, got %v", err)
	}
}

func TestDuplicateConnectionHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handshake(t, "c1", "u-member")

	conn := conntest.New("c1")
	_, err := f.mgr.Handshake(ctx, HandshakeRequest{
		Conn:      conn,
		Token:     f.signer.MintValid("u-admin", "grace"),
		ProjectID: "p1",
		Origin:    "10.0.0.2",
	})
	if !errors.Is(err, sessions.ErrDuplicateHandle) {
		t.Fatalf("want ErrDuplicateHandle, got %v", err)
	}
	if n, _ := f.registry.Len(ctx); n != 1 {
		t.Fatalf("duplicate insert must not grow the registry, have %d", n)
	}
}

func TestCloseDrainsAllSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c1 := f.handshake(t, "c1", "u-member")
	c2 := f.handshake(t, "c2", "u-admin")

	if err := f.mgr.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, conn := range []*conntest.Conn{c1, c2} {
		select {
		case <-conn.Closed():
		case <-time.After(2 * time.Second):
			t.Fatalf("conn %s not closed by drain", conn.ID())
		}
		if got := conn.CloseReason(); got != "shutting down" {
			t.Fatalf("close reason %q", got)
		}
	}

	if n, _ := f.registry.Len(ctx); n != 0 {
		t.Fatalf("registry must be empty after drain, have %d", n)
	}

	conn := conntest.New("c3")
	if _, err := f.mgr.Handshake(ctx, HandshakeRequest{
		Conn:      conn,
		Token:     f.signer.MintValid("u-member", "ada"),
		ProjectID: "p1",
		Origin:    "10.0.0.1",
	}); err == nil {
		t.Fatalf("closed manager must refuse new handshakes")
	}
}

func TestRevalidationKeepsHealthySessionAlive(t *testing.T) {
	f := newFixture(t, WithRevalidateInterval(30*time.Millisecond))
	ctx := context.Background()

	f.handshake(t, "c1", "u-member")

	before, _, _ := f.registry.Get(ctx, "c1")
	time.Sleep(200 * time.Millisecond)

	after, ok, _ := f.registry.Get(ctx, "c1")
	if !ok {
		t.Fatalf("healthy session must stay registered")
	}
	if !after.LastRevalidatedAt.After(before.LastRevalidatedAt) {
		t.Fatalf("revalidation timestamp must advance: %v -> %v", before.LastRevalidatedAt, after.LastRevalidatedAt)
	}
	if got := f.verifier.calls.Load(); got < 2 {
		t.Fatalf("verifier must be re-consulted periodically, got %d calls", got)
	}
}
