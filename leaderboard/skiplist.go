package leaderboard

import (
	"math/rand/v2"
	"sync"

	"journeykit/core"
)

const (
	maxLevel = 16
	// chance of promoting a node one more level
	promote = 0.25
)

// link is one forward pointer; span counts the bottom-level hops it covers
// so ranks can be summed on the way down.
type link struct {
	next *node
	span int
}

type node struct {
	e     Entry
	links []link
}

// SkipList is an indexable skip list ordered by score descending, then user
// ascending. Update, Remove, Rank and At are O(log n).
type SkipList struct {
	mu     sync.RWMutex
	head   *node
	height int
	size   int
	byUser map[core.UserID]*node
	rng    *rand.Rand
}

func NewSkipList() *SkipList {
	return &SkipList{
		head:   &node{links: make([]link, maxLevel)},
		height: 1,
		byUser: map[core.UserID]*node{},
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (s *SkipList) randomHeight() int {
	h := 1
	for h < maxLevel && s.rng.Float64() < promote {
		h++
	}
	return h
}

// before reports whether a ranks ahead of b.
func before(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.User < b.User
}

// Update sets the user's score, moving the entry when it changed.
func (s *SkipList) Update(user core.UserID, score int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUser[user]; ok {
		if old.e.Score == score {
			return
		}
		s.unlink(old.e)
	}
	s.insert(Entry{User: user, Score: score})
}

// Raise sets the user's score only if it is higher than the stored one, or
// the user has none. It reports whether the board changed.
func (s *SkipList) Raise(user core.UserID, score int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUser[user]; ok {
		if score <= old.e.Score {
			return false
		}
		s.unlink(old.e)
	}
	s.insert(Entry{User: user, Score: score})
	return true
}

func (s *SkipList) insert(e Entry) {
	var (
		prev [maxLevel]*node
		pos  [maxLevel]int
	)
	x := s.head
	for i := s.height - 1; i >= 0; i-- {
		if i < s.height-1 {
			pos[i] = pos[i+1]
		}
		for x.links[i].next != nil && before(x.links[i].next.e, e) {
			pos[i] += x.links[i].span
			x = x.links[i].next
		}
		prev[i] = x
	}

	h := s.randomHeight()
	if h > s.height {
		for i := s.height; i < h; i++ {
			prev[i] = s.head
			pos[i] = 0
			s.head.links[i].span = s.size
		}
		s.height = h
	}

	n := &node{e: e, links: make([]link, h)}
	for i := 0; i < h; i++ {
		n.links[i].next = prev[i].links[i].next
		prev[i].links[i].next = n
		n.links[i].span = prev[i].links[i].span - (pos[0] - pos[i])
		prev[i].links[i].span = pos[0] - pos[i] + 1
	}
	for i := h; i < s.height; i++ {
		prev[i].links[i].span++
	}
	s.byUser[e.User] = n
	s.size++
}

// unlink removes the node holding e; e must be the stored entry.
func (s *SkipList) unlink(e Entry) {
	var prev [maxLevel]*node
	x := s.head
	for i := s.height - 1; i >= 0; i-- {
		for x.links[i].next != nil && before(x.links[i].next.e, e) {
			x = x.links[i].next
		}
		prev[i] = x
	}
	target := prev[0].links[0].next
	if target == nil || target.e.User != e.User {
		return
	}
	for i := 0; i < s.height; i++ {
		if prev[i].links[i].next == target {
			prev[i].links[i].span += target.links[i].span - 1
			prev[i].links[i].next = target.links[i].next
		} else {
			prev[i].links[i].span--
		}
	}
	for s.height > 1 && s.head.links[s.height-1].next == nil {
		s.height--
	}
	delete(s.byUser, e.User)
	s.size--
}

func (s *SkipList) Remove(user core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byUser[user]; ok {
		s.unlink(n.e)
	}
}

func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > s.size {
		n = s.size
	}
	out := make([]Entry, 0, n)
	for x := s.head.links[0].next; x != nil && len(out) < n; x = x.links[0].next {
		out = append(out, x.e)
	}
	return out
}

func (s *SkipList) Get(user core.UserID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byUser[user]; ok {
		return n.e, true
	}
	return Entry{}, false
}

// Rank returns the 1-based position of user.
func (s *SkipList) Rank(user core.UserID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.byUser[user]
	if !ok {
		return 0, false
	}
	rank := 0
	x := s.head
	for i := s.height - 1; i >= 0; i-- {
		for x.links[i].next != nil && (x.links[i].next == target || before(x.links[i].next.e, target.e)) {
			rank += x.links[i].span
			x = x.links[i].next
		}
		if x == target {
			return rank, true
		}
	}
	return 0, false
}

// At returns the entry holding the 1-based rank.
func (s *SkipList) At(rank int) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rank < 1 || rank > s.size {
		return Entry{}, false
	}
	walked := 0
	x := s.head
	for i := s.height - 1; i >= 0; i-- {
		for x.links[i].next != nil && walked+x.links[i].span <= rank {
			walked += x.links[i].span
			x = x.links[i].next
		}
		if walked == rank {
			return x.e, true
		}
	}
	return Entry{}, false
}

func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

var _ Board = (*SkipList)(nil)
