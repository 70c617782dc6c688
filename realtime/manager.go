package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/collabhq/realtime-go/audit"
	"github.com/collabhq/realtime-go/auth"
	"github.com/collabhq/realtime-go/capabilities"
	"github.com/collabhq/realtime-go/directory"
	"github.com/collabhq/realtime-go/internal/logctx"
	"github.com/collabhq/realtime-go/ratelimit"
	"github.com/collabhq/realtime-go/rooms"
	"github.com/collabhq/realtime-go/sessions"
)

// Manager drives the session lifecycle: handshake, authorization, periodic
// revalidation, permission propagation, and teardown. It is the only writer
// to the registry and the room membership tables.
type Manager struct {
	log      *slog.Logger
	verifier auth.TokenVerifier
	limiter  ratelimit.Limiter
	dir      directory.Directory
	registry sessions.Registry
	rooms    *rooms.Manager
	sink     audit.Sink
	metrics  *Metrics
	clock    func() time.Time

	revalidateInterval time.Duration

	mu         sync.Mutex
	lifecycles map[string]*lifecycle
	closed     bool
	wg         sync.WaitGroup
}

// lifecycle is the manager's private state for one connection. The raw
// credential lives only here, captured for revalidation; the registry holds
// just its fingerprint.
type lifecycle struct {
	conn      sessions.Conn
	token     string
	userID    string
	projectID string
	origin    string

	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the base logger. Conn and session context attached via
// logctx is appended to every record automatically.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithAuditSink sets the sink receiving every authorization decision.
// Defaults to a slog-backed sink on the manager's logger.
func WithAuditSink(s audit.Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithMetrics enables Prometheus collection.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithRevalidateInterval overrides how often session credentials are
// re-checked.
func WithRevalidateInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.revalidateInterval = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.clock = now
		}
	}
}

// New wires a Manager from its collaborators. All five are required.
func New(verifier auth.TokenVerifier, limiter ratelimit.Limiter, dir directory.Directory, registry sessions.Registry, roomMgr *rooms.Manager, opts ...Option) (*Manager, error) {
	if verifier == nil {
		return nil, errors.New("realtime: token verifier is required")
	}
	if limiter == nil {
		return nil, errors.New("realtime: rate limiter is required")
	}
	if dir == nil {
		return nil, errors.New("realtime: directory is required")
	}
	if registry == nil {
		return nil, errors.New("realtime: session registry is required")
	}
	if roomMgr == nil {
		return nil, errors.New("realtime: room manager is required")
	}

	m := &Manager{
		log:                slog.Default(),
		verifier:           verifier,
		limiter:            limiter,
		dir:                dir,
		registry:           registry,
		rooms:              roomMgr,
		clock:              time.Now,
		revalidateInterval: DefaultRevalidateInterval,
		lifecycles:         make(map[string]*lifecycle),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	// Wrap the logger so conn/session context rides along on every record.
	m.log = slog.New(logctx.Handler{Handler: m.log.Handler()})
	if m.sink == nil {
		m.sink = audit.NewLogSink(m.log)
	}
	return m, nil
}

// HandshakeRequest carries everything the transport adapter collected for
// one connection attempt.
type HandshakeRequest struct {
	// Conn is the live connection. Required.
	Conn sessions.Conn
	// Token is the bearer credential as presented, possibly empty.
	Token string
	// ProjectID names the project the caller wants to join.
	ProjectID string
	// Origin identifies the attempt source for rate limiting, typically
	// the remote address.
	Origin string
}

// Handshake authorizes one connection attempt. On success the session is
// registered, joined to its groups, announced to the project, and its
// revalidation task is running. On refusal the returned error matches one
// of the package sentinels; send PublicMessage(err) to the caller and
// nothing else.
func (m *Manager) Handshake(ctx context.Context, req HandshakeRequest) (*sessions.Session, error) {
	if req.Conn == nil {
		return nil, errors.New("realtime: handshake requires a connection")
	}
	connID := req.Conn.ID()
	ctx = logctx.WithConnData(ctx, &logctx.ConnData{ConnID: connID, Origin: req.Origin})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("realtime: manager is closed")
	}
	m.mu.Unlock()

	// Parameter presence comes first; these checks are free and never touch
	// the verifier or the rate limiter.
	if req.Token == "" {
		return nil, m.refuse(ctx, req, "", ErrNoToken)
	}
	if req.ProjectID == "" {
		return nil, m.refuse(ctx, req, "", ErrNoProjectID)
	}

	// Admission precedes verification so abusive origins cannot burn
	// signature checks. A limiter failure denies: fail closed.
	admitted, err := m.limiter.Admit(ctx, req.Origin)
	if err != nil {
		m.metrics.rateLimitDenial()
		return nil, m.refuse(ctx, req, "", fmt.Errorf("%w: limiter: %v", ErrRateLimited, err))
	}
	if !admitted {
		m.metrics.rateLimitDenial()
		return nil, m.refuse(ctx, req, "", fmt.Errorf("%w: origin %q exhausted its window", ErrRateLimited, req.Origin))
	}

	claims, err := m.verifier.VerifyToken(ctx, req.Token)
	if err != nil {
		return nil, m.refuse(ctx, req, "", translateAuthErr(err))
	}

	user, err := m.dir.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, m.refuse(ctx, req, claims.Subject, fmt.Errorf("%w: subject %q: %v", ErrIdentityNotFound, claims.Subject, err))
	}

	project, err := m.dir.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, m.refuse(ctx, req, user.ID, fmt.Errorf("%w: project %q: %v", ErrProjectNotFound, req.ProjectID, err))
	}

	role, ok := project.RoleOf(user.ID)
	if !ok {
		return nil, m.refuse(ctx, req, user.ID, fmt.Errorf("%w: user %q in project %q", ErrNotAMember, user.ID, project.ID))
	}

	caps := capabilities.Resolve(role, project.Features)
	if caps.IsZero() {
		m.log.WarnContext(ctx, "handshake.role.unknown",
			slog.String("role", string(role)),
			slog.String("user_id", user.ID),
			slog.String("project_id", project.ID))
	}

	username := user.Username
	if username == "" {
		username = claims.Username
	}

	now := m.clock()
	sess := sessions.Session{
		ConnID:                connID,
		UserID:                user.ID,
		Username:              username,
		ProjectID:             project.ID,
		Role:                  role,
		Capabilities:          caps,
		CredentialFingerprint: auth.Fingerprint(req.Token),
		AuthorizedAt:          now,
		LastRevalidatedAt:     now,
	}
	if err := m.registry.Insert(ctx, sess); err != nil {
		wrapped := fmt.Errorf("realtime: register session: %w", err)
		m.metrics.handshake("internal")
		m.sink.Record(ctx, audit.Entry{
			Time: now, Action: audit.ActionHandshake, Outcome: audit.OutcomeError,
			Reason: "internal", Origin: req.Origin, UserID: user.ID,
			ProjectID: project.ID, ConnID: connID, Detail: wrapped.Error(),
		})
		return nil, wrapped
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{UserID: user.ID, ProjectID: project.ID, Role: role})

	lc := &lifecycle{
		conn:      req.Conn,
		token:     req.Token,
		userID:    user.ID,
		projectID: project.ID,
		origin:    req.Origin,
		done:      make(chan struct{}),
	}
	// The task context survives the handshake request but dies with the
	// session.
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	lc.cancel = cancel

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_, _, _ = m.registry.Remove(context.WithoutCancel(ctx), connID)
		return nil, errors.New("realtime: manager is closed")
	}
	m.lifecycles[connID] = lc
	m.wg.Add(1)
	m.mu.Unlock()

	m.rooms.Join(connID, req.Conn, rooms.GroupsFor(project.ID, user.ID, caps))
	go m.revalidateLoop(taskCtx, lc)

	m.publishPresence(ctx, EventPresenceOnline, sess)

	m.metrics.handshake("success")
	m.metrics.sessionOpened()
	m.sink.Record(ctx, audit.Entry{
		Time: now, Action: audit.ActionHandshake, Outcome: audit.OutcomeSuccess,
		Origin: req.Origin, UserID: user.ID, ProjectID: project.ID, ConnID: connID,
		Detail: fmt.Sprintf("role=%s fp=%s", role, sess.CredentialFingerprint),
	})
	m.log.InfoContext(ctx, "handshake.ok", slog.String("role", string(role)))

	return &sess, nil
}

// Authorize checks one action against the session's current capability
// snapshot. It returns ErrPermissionDenied when the capability is missing;
// the denial is audited but never connection-fatal.
func (m *Manager) Authorize(ctx context.Context, connID string, capability capabilities.Capability) error {
	sess, ok, err := m.registry.Get(ctx, connID)
	if err != nil {
		return fmt.Errorf("realtime: registry lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: no session for connection %q", ErrPermissionDenied, connID)
	}
	if !sess.Capabilities.Has(capability) {
		denial := fmt.Errorf("%w: %s requires %q", ErrPermissionDenied, sess.Role, capability)
		m.sink.Record(ctx, audit.Entry{
			Time: m.clock(), Action: audit.ActionAuthorize, Outcome: audit.OutcomeRefused,
			Reason: reasonCode(denial), UserID: sess.UserID, ProjectID: sess.ProjectID,
			ConnID: connID, Detail: denial.Error(),
		})
		return denial
	}
	return nil
}

// ApplyRoleChange re-resolves capabilities for every live session the user
// has in the project, swaps their group memberships, and notifies the
// user's private group with a permissions:updated event. Sessions keep
// their connection throughout.
func (m *Manager) ApplyRoleChange(ctx context.Context, userID, projectID string, newRole capabilities.Role) error {
	project, err := m.dir.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("%w: project %q: %v", ErrProjectNotFound, projectID, err)
	}

	caps := capabilities.Resolve(newRole, project.Features)
	if caps.IsZero() {
		m.log.WarnContext(ctx, "rolechange.role.unknown",
			slog.String("role", string(newRole)),
			slog.String("user_id", userID),
			slog.String("project_id", projectID))
	}

	sessList, err := m.registry.FindByUserAndProject(ctx, userID, projectID)
	if err != nil {
		return fmt.Errorf("realtime: registry lookup: %w", err)
	}

	now := m.clock()
	updated := 0
	for _, sess := range sessList {
		_, ok, err := m.registry.SetAuthorization(ctx, sess.ConnID, newRole, caps, now)
		if err != nil {
			return fmt.Errorf("realtime: update session %q: %w", sess.ConnID, err)
		}
		if !ok {
			continue // torn down while we worked
		}
		m.mu.Lock()
		lc := m.lifecycles[sess.ConnID]
		m.mu.Unlock()
		if lc != nil {
			m.rooms.Reassign(sess.ConnID, lc.conn, rooms.GroupsFor(projectID, userID, caps))
		}
		updated++
	}

	payload, err := json.Marshal(PermissionsPayload{
		NewRole:      newRole,
		Capabilities: caps,
		Timestamp:    now,
	})
	if err != nil {
		return fmt.Errorf("realtime: marshal permissions payload: %w", err)
	}
	if _, err := m.rooms.Publish(ctx, rooms.UserGroup(projectID, userID), EventPermissionsUpdated, payload); err != nil {
		m.log.WarnContext(ctx, "rolechange.publish.fail", slog.String("err", err.Error()))
	}

	m.metrics.roleChange()
	m.sink.Record(ctx, audit.Entry{
		Time: now, Action: audit.ActionRoleChange, Outcome: audit.OutcomeSuccess,
		UserID: userID, ProjectID: projectID,
		Detail: fmt.Sprintf("role=%s sessions=%d", newRole, updated),
	})
	m.log.InfoContext(ctx, "rolechange.applied",
		slog.String("user_id", userID),
		slog.String("project_id", projectID),
		slog.String("role", string(newRole)),
		slog.Int("sessions", updated))
	return nil
}

// Disconnect tears the session down after the transport reports the
// connection gone. Safe to call multiple times and for unknown handles.
func (m *Manager) Disconnect(ctx context.Context, connID string) {
	m.mu.Lock()
	lc := m.lifecycles[connID]
	m.mu.Unlock()
	if lc == nil {
		return
	}
	m.teardown(ctx, connID, lc, "disconnect", "")
}

// Close tears down every session and waits for all revalidation tasks to
// stop. The manager refuses new handshakes afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	remaining := make(map[string]*lifecycle, len(m.lifecycles))
	for id, lc := range m.lifecycles {
		remaining[id] = lc
	}
	m.mu.Unlock()

	for id, lc := range remaining {
		m.teardown(ctx, id, lc, "shutdown", "shutting down")
	}
	m.wg.Wait()
	return nil
}

// teardown is the single exit path for a session. It runs exactly once per
// lifecycle regardless of how many callers race into it.
func (m *Manager) teardown(ctx context.Context, connID string, lc *lifecycle, reason, closeReason string) {
	lc.once.Do(func() {
		defer close(lc.done)
		lc.cancel()

		// Cleanup must finish even if the triggering context is gone.
		ctx := context.WithoutCancel(ctx)

		sess, existed, err := m.registry.Remove(ctx, connID)
		if err != nil {
			m.log.ErrorContext(ctx, "teardown.registry.fail",
				slog.String("conn_id", connID),
				slog.String("err", err.Error()))
		}
		m.rooms.LeaveAll(connID)

		m.mu.Lock()
		delete(m.lifecycles, connID)
		m.mu.Unlock()

		if closeReason != "" {
			_ = lc.conn.Close(closeReason)
		}

		if existed {
			m.metrics.sessionClosed()
			m.publishPresence(ctx, EventPresenceOffline, sess)
		}

		m.sink.Record(ctx, audit.Entry{
			Time: m.clock(), Action: audit.ActionDisconnect, Outcome: audit.OutcomeSuccess,
			Reason: reason, Origin: lc.origin, UserID: lc.userID,
			ProjectID: lc.projectID, ConnID: connID,
		})
		m.log.InfoContext(ctx, "session.closed",
			slog.String("conn_id", connID),
			slog.String("reason", reason))
	})
}

// publishPresence announces the session to its project group. Best effort:
// a broker failure is logged, never propagated.
func (m *Manager) publishPresence(ctx context.Context, event string, sess sessions.Session) {
	payload, err := json.Marshal(PresencePayload{
		UserID:       sess.UserID,
		Username:     sess.Username,
		Role:         sess.Role,
		Timestamp:    m.clock(),
		ConnectionID: sess.ConnID,
	})
	if err != nil {
		m.log.WarnContext(ctx, "presence.marshal.fail", slog.String("err", err.Error()))
		return
	}
	if _, err := m.rooms.Publish(ctx, rooms.ProjectGroup(sess.ProjectID), event, payload); err != nil {
		m.log.WarnContext(ctx, "presence.publish.fail",
			slog.String("event", event),
			slog.String("err", err.Error()))
	}
}

// refuse audits a handshake refusal with its full context and returns err
// unchanged for the transport to translate via PublicMessage.
func (m *Manager) refuse(ctx context.Context, req HandshakeRequest, userID string, err error) error {
	code := reasonCode(err)
	m.metrics.handshake(code)
	m.sink.Record(ctx, audit.Entry{
		Time: m.clock(), Action: audit.ActionHandshake, Outcome: audit.OutcomeRefused,
		Reason: code, Origin: req.Origin, UserID: userID, ProjectID: req.ProjectID,
		ConnID: req.Conn.ID(), Detail: err.Error(),
	})
	m.log.WarnContext(ctx, "handshake.refused",
		slog.String("reason", code),
		slog.String("err", err.Error()))
	return err
}

// translateAuthErr maps verifier sentinels into the package taxonomy.
func translateAuthErr(err error) error {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return fmt.Errorf("%w: %v", ErrNoToken, err)
	case errors.Is(err, auth.ErrExpiredToken):
		return fmt.Errorf("%w: %v", ErrExpiredCredential, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
}
