package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"journeykit/core"
)

// Store persists entire state to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[string]core.UserState
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[string]core.UserState{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

// fileKey is the "user/session" key a state is stored under.
func fileKey(user core.UserID, session core.SessionID) string {
	return string(user) + "/" + string(session)
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]core.UserState
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	for k, v := range raw {
		if !strings.Contains(k, "/") {
			return fmt.Errorf("decode %s: malformed key %q", s.path, k)
		}
		if v.Badges == nil {
			v.Badges = map[core.BadgeKey]core.UserBadge{}
		}
		s.data[k] = v
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) get(user core.UserID, session core.SessionID) core.UserState {
	if st, ok := s.data[fileKey(user, session)]; ok {
		return st
	}
	return core.NewUserState(user, session)
}

func (s *Store) OwnedBadges(_ context.Context, user core.UserID, session core.SessionID) (map[core.BadgeKey]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(user, session).Owned(), nil
}

// Commit applies c to a copy of the session state and swaps it in only
// after the file has been rewritten.
func (s *Store) Commit(_ context.Context, c core.Commit) (core.Receipt, error) {
	if err := c.Validate(); err != nil {
		return core.Receipt{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fileKey(c.UserID, c.SessionID)
	prev, existed := s.data[k]
	next := s.get(c.UserID, c.SessionID).Clone()
	rec, err := next.Apply(c)
	if err != nil {
		return core.Receipt{}, err
	}
	s.data[k] = next
	if err := s.persist(); err != nil {
		if existed {
			s.data[k] = prev
		} else {
			delete(s.data, k)
		}
		return core.Receipt{}, err
	}
	return rec, nil
}

func (s *Store) GetState(_ context.Context, user core.UserID, session core.SessionID) (core.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(user, session).Clone(), nil
}

func (s *Store) MarkSeen(_ context.Context, user core.UserID, session core.SessionID, keys []core.BadgeKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fileKey(user, session)
	st, ok := s.data[k]
	if !ok {
		return 0, nil
	}
	st = st.Clone()
	n := st.MarkSeen(keys)
	if n == 0 {
		return 0, nil
	}
	prev := s.data[k]
	s.data[k] = st
	if err := s.persist(); err != nil {
		s.data[k] = prev
		return 0, err
	}
	return n, nil
}
