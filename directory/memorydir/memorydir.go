// Package memorydir is a mutable in-memory directory.Directory used by tests
// and examples.
package memorydir

import (
	"context"
	"fmt"
	"sync"

	"github.com/collabhq/realtime-go/capabilities"
	"github.com/collabhq/realtime-go/directory"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]directory.User
	projects map[string]directory.Project
}

func New() *Store {
	return &Store{
		users:    make(map[string]directory.User),
		projects: make(map[string]directory.Project),
	}
}

func (s *Store) PutUser(u directory.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) PutProject(p directory.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make(map[string]capabilities.Role, len(p.Members))
	for id, role := range p.Members {
		members[id] = role
	}
	p.Members = members
	s.projects[p.ID] = p
}

// SetRole upserts a membership entry. It mirrors what the host application
// does when a role changes; pairing it with realtime's ApplyRoleChange keeps
// the store and live sessions consistent.
func (s *Store) SetRole(projectID, userID string, role capabilities.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("memorydir: unknown project %s", projectID)
	}
	p.Members[userID] = role
	s.projects[projectID] = p
	return nil
}

// RemoveMember deletes a membership entry.
func (s *Store) RemoveMember(projectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("memorydir: unknown project %s", projectID)
	}
	delete(p.Members, userID)
	s.projects[projectID] = p
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*directory.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", directory.ErrUserNotFound, userID)
	}
	out := u
	return &out, nil
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*directory.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", directory.ErrProjectNotFound, projectID)
	}
	out := p
	out.Members = make(map[string]capabilities.Role, len(p.Members))
	for id, role := range p.Members {
		out.Members[id] = role
	}
	return &out, nil
}

var _ directory.Directory = (*Store)(nil)
