// Package memoryregistry provides the in-process reference implementation of
// sessions.Registry. It is the registry used by tests and single-node
// deployments; all operations are short critical sections over process-local
// maps.
package memoryregistry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/collabhq/realtime-go/capabilities"
	"github.com/collabhq/realtime-go/sessions"
)

// Registry is an in-memory implementation of sessions.Registry.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*sessions.Session
	// byUserProject indexes conn IDs by "userID\x00projectID" for the
	// permission-propagation fan-out path.
	byUserProject map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		byConn:        make(map[string]*sessions.Session),
		byUserProject: make(map[string]map[string]struct{}),
	}
}

func userProjectKey(userID, projectID string) string {
	return userID + "\x00" + projectID
}

func (r *Registry) Insert(ctx context.Context, sess sessions.Session) error {
	if sess.ConnID == "" {
		return fmt.Errorf("memoryregistry: empty connection handle")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byConn[sess.ConnID]; exists {
		return fmt.Errorf("%w: %s", sessions.ErrDuplicateHandle, sess.ConnID)
	}
	rec := sess
	r.byConn[sess.ConnID] = &rec
	key := userProjectKey(sess.UserID, sess.ProjectID)
	idx, ok := r.byUserProject[key]
	if !ok {
		idx = make(map[string]struct{})
		r.byUserProject[key] = idx
	}
	idx[sess.ConnID] = struct{}{}
	return nil
}

func (r *Registry) Remove(ctx context.Context, connID string) (sessions.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byConn[connID]
	if !ok {
		return sessions.Session{}, false, nil
	}
	delete(r.byConn, connID)
	key := userProjectKey(rec.UserID, rec.ProjectID)
	if idx, ok := r.byUserProject[key]; ok {
		delete(idx, connID)
		if len(idx) == 0 {
			delete(r.byUserProject, key)
		}
	}
	return *rec, true, nil
}

func (r *Registry) Get(ctx context.Context, connID string) (sessions.Session, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byConn[connID]
	if !ok {
		return sessions.Session{}, false, nil
	}
	return *rec, true, nil
}

func (r *Registry) FindByUserAndProject(ctx context.Context, userID, projectID string) ([]sessions.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.byUserProject[userProjectKey(userID, projectID)]
	if len(idx) == 0 {
		return nil, nil
	}
	out := make([]sessions.Session, 0, len(idx))
	for connID := range idx {
		if rec, ok := r.byConn[connID]; ok {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *Registry) All(ctx context.Context) ([]sessions.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sessions.Session, 0, len(r.byConn))
	for _, rec := range r.byConn {
		out = append(out, *rec)
	}
	return out, nil
}

func (r *Registry) SetAuthorization(ctx context.Context, connID string, role capabilities.Role, caps capabilities.Set, at time.Time) (sessions.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byConn[connID]
	if !ok {
		return sessions.Session{}, false, nil
	}
	rec.Role = role
	rec.Capabilities = caps
	rec.LastRevalidatedAt = at
	return *rec, true, nil
}

func (r *Registry) SetRevalidated(ctx context.Context, connID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byConn[connID]
	if !ok {
		return false, nil
	}
	rec.LastRevalidatedAt = at
	return true, nil
}

func (r *Registry) Len(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn), nil
}

// Ensure interface compliance
var _ sessions.Registry = (*Registry)(nil)
