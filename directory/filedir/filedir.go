// Package filedir is a JSON-file-backed directory.Directory for development
// and standalone deployments. The file holds the full user and project lists;
// Watch reloads the snapshot whenever the file changes on disk, so role and
// membership edits take effect without a restart.
package filedir

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/collabhq/realtime-go/capabilities"
	"github.com/collabhq/realtime-go/directory"
)

// document is the on-disk shape.
type document struct {
	Users    []directory.User    `json:"users"`
	Projects []directory.Project `json:"projects"`
}

type Store struct {
	path string
	log  *slog.Logger

	mu       sync.RWMutex
	users    map[string]directory.User
	projects map[string]directory.Project
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for reload diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New loads the directory file once. The returned store serves that snapshot
// until Watch observes a change.
func New(path string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filedir: resolve path: %w", err)
	}
	s := &Store{path: abs, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("filedir: read %s: %w", s.path, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("filedir: parse %s: %w", s.path, err)
	}

	users := make(map[string]directory.User, len(doc.Users))
	for _, u := range doc.Users {
		users[u.ID] = u
	}
	projects := make(map[string]directory.Project, len(doc.Projects))
	for _, p := range doc.Projects {
		if p.Members == nil {
			p.Members = map[string]capabilities.Role{}
		}
		projects[p.ID] = p
	}

	s.mu.Lock()
	s.users = users
	s.projects = projects
	s.mu.Unlock()
	return nil
}

// Watch blocks, reloading the snapshot whenever the backing file is written
// or replaced, until ctx is cancelled. A reload failure keeps the previous
// snapshot in service.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filedir: watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	// Watch the containing directory: atomic-save editors replace the file
	// via rename, which drops a watch registered on the file itself.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("filedir: watch %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				s.log.Warn("filedir.reload.fail", slog.String("err", err.Error()))
				continue
			}
			s.log.Debug("filedir.reload.ok", slog.String("path", s.path))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Debug("filedir.watch.err", slog.String("err", err.Error()))
		}
	}
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
