package memory

import (
	"context"
	"sync"

	"journeykit/core"
)

type key struct {
	user    core.UserID
	session core.SessionID
}

// Store is a concurrent in-memory Storage implementation.
type Store struct {
	records sync.Map // map[key]*record
}

type record struct {
	mu    sync.Mutex
	state core.UserState
}

func New() *Store { return &Store{} }

func (s *Store) getOrCreate(user core.UserID, session core.SessionID) *record {
	k := key{user, session}
	if v, ok := s.records.Load(k); ok {
		return v.(*record)
	}
	rec := &record{state: core.NewUserState(user, session)}
	actual, _ := s.records.LoadOrStore(k, rec)
	return actual.(*record)
}

// lookup finds an existing record; read paths use it so unknown ids never
// allocate.
func (s *Store) lookup(user core.UserID, session core.SessionID) (*record, bool) {
	v, ok := s.records.Load(key{user, session})
	if !ok {
		return nil, false
	}
	return v.(*record), true
}

func (s *Store) OwnedBadges(_ context.Context, user core.UserID, session core.SessionID) (map[core.BadgeKey]struct{}, error) {
	rec, ok := s.lookup(user, session)
	if !ok {
		return map[core.BadgeKey]struct{}{}, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Owned(), nil
}

// Commit applies c under the record lock, so concurrent commits for the
// same session serialize and a badge is inserted at most once.
func (s *Store) Commit(_ context.Context, c core.Commit) (core.Receipt, error) {
	if err := c.Validate(); err != nil {
		return core.Receipt{}, err
	}
	rec := s.getOrCreate(c.UserID, c.SessionID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Apply(c)
}

func (s *Store) GetState(_ context.Context, user core.UserID, session core.SessionID) (core.UserState, error) {
	rec, ok := s.lookup(user, session)
	if !ok {
		return core.NewUserState(user, session), nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone(), nil
}

func (s *Store) MarkSeen(_ context.Context, user core.UserID, session core.SessionID, keys []core.BadgeKey) (int, error) {
	rec, ok := s.lookup(user, session)
	if !ok {
		return 0, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.MarkSeen(keys), nil
}

// Sessions lists the states held for session, for leaderboard rebuilds.
func (s *Store) Sessions(session core.SessionID) []core.UserState {
	var out []core.UserState
	s.records.Range(func(k, v any) bool {
		if k.(key).session != session {
			return true
		}
		rec := v.(*record)
		rec.mu.Lock()
		out = append(out, rec.state.Clone())
		rec.mu.Unlock()
		return true
	})
	return out
}

var _ interface {
	OwnedBadges(context.Context, core.UserID, core.SessionID) (map[core.BadgeKey]struct{}, error)
	Commit(context.Context, core.Commit) (core.Receipt, error)
	GetState(context.Context, core.UserID, core.SessionID) (core.UserState, error)
	MarkSeen(context.Context, core.UserID, core.SessionID, []core.BadgeKey) (int, error)
} = (*Store)(nil)
