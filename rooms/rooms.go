package rooms

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/collabhq/realtime-go/broker"
	"github.com/collabhq/realtime-go/sessions"
)

const (
	defaultTopic       = "rooms"
	defaultSendTimeout = 5 * time.Second
)

// groupEvent is the wire shape carried on the fanout topic.
type groupEvent struct {
	Group   string          `json:"group"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Manager tracks group membership for local connections and delivers fanned
// out events to them. All methods are safe for concurrent use.
type Manager struct {
	log         *slog.Logger
	bus         broker.Broker
	topic       string
	sendTimeout time.Duration

	mu     sync.RWMutex
	groups map[string]map[string]sessions.Conn
	conns  map[string]map[string]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithSendTimeout bounds how long one delivery to one connection may block.
func WithSendTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sendTimeout = d
		}
	}
}

// WithTopic overrides the broker topic carrying the fanout. All nodes of a
// deployment must agree on it.
func WithTopic(topic string) Option {
	return func(m *Manager) {
		if topic != "" {
			m.topic = topic
		}
	}
}

// New creates a Manager over the given broker. Call Run to start delivery.
func New(bus broker.Broker, opts ...Option) *Manager {
	m := &Manager{
		log:         slog.Default(),
		bus:         bus,
		topic:       defaultTopic,
		sendTimeout: defaultSendTimeout,
		groups:      make(map[string]map[string]sessions.Conn),
		conns:       make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Run subscribes to the fanout topic and delivers events to local members.
// It blocks until ctx is done and returns ctx's error.
func (m *Manager) Run(ctx context.Context) error {
	return m.bus.Subscribe(ctx, m.topic, m.handleEnvelope)
}

// Join adds conn to each of the given groups.
func (m *Manager) Join(connID string, conn sessions.Conn, groups []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinLocked(connID, conn, groups)
}

func (m *Manager) joinLocked(connID string, conn sessions.Conn, groups []string) {
	memberships, ok := m.conns[connID]
	if !ok {
		memberships = make(map[string]struct{})
		m.conns[connID] = memberships
	}
	for _, g := range groups {
		set, ok := m.groups[g]
		if !ok {
			set = make(map[string]sessions.Conn)
			m.groups[g] = set
		}
		set[connID] = conn
		memberships[g] = struct{}{}
	}
}

// Leave removes the connection from one group.
func (m *Manager) Leave(connID, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(connID, group)
}

func (m *Manager) leaveLocked(connID, group string) {
	if set, ok := m.groups[group]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(m.groups, group)
		}
	}
	if memberships, ok := m.conns[connID]; ok {
		delete(memberships, group)
		if len(memberships) == 0 {
			delete(m.conns, connID)
		}
	}
}

// LeaveAll removes the connection from every group it joined.
func (m *Manager) LeaveAll(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for g := range m.conns[connID] {
		m.leaveLocked(connID, g)
	}
}

// Reassign atomically replaces the connection's memberships with groups.
// No publish interleaves between the leave and the join.
func (m *Manager) Reassign(connID string, conn sessions.Conn, groups []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for g := range m.conns[connID] {
		m.leaveLocked(connID, g)
	}
	m.joinLocked(connID, conn, groups)
}

// Members returns the IDs of the connections currently in group, sorted.
func (m *Manager) Members(group string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.groups[group]))
	for id := range m.groups[group] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Groups returns the groups the connection currently belongs to, sorted.
func (m *Manager) Groups(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups := make([]string, 0, len(m.conns[connID]))
	for g := range m.conns[connID] {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Publish fans event out to every member of group across all nodes. It
// returns the broker envelope ID. Local members receive the event through
// the Run loop like everyone else.
func (m *Manager) Publish(ctx context.Context, group, event string, payload []byte) (string, error) {
	ev := groupEvent{
		Group:   group,
		Event:   event,
		Payload: json.RawMessage(payload),
		At:      time.Now().UTC(),
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return m.bus.Publish(ctx, m.topic, raw)
}

func (m *Manager) handleEnvelope(ctx context.Context, env broker.Envelope) error {
	var ev groupEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		m.log.WarnContext(ctx, "rooms.decode.fail",
			slog.String("envelope_id", env.ID),
			slog.String("err", err.Error()))
		return nil
	}

	type member struct {
		id   string
		conn sessions.Conn
	}
	m.mu.RLock()
	members := make([]member, 0, len(m.groups[ev.Group]))
	for id, conn := range m.groups[ev.Group] {
		members = append(members, member{id: id, conn: conn})
	}
	m.mu.RUnlock()

	for _, mem := range members {
		sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
		err := mem.conn.Send(sendCtx, ev.Event, ev.Payload)
		cancel()
		if err != nil {
			m.log.WarnContext(ctx, "rooms.deliver.fail",
				slog.String("conn_id", mem.id),
				slog.String("group", ev.Group),
				slog.String("event", ev.Event),
				slog.String("err", err.Error()))
		}
	}
	return nil
}
