// Package leaderboard ranks users by their point total within a session.
package leaderboard

import (
	"context"
	"sync"

	"journeykit/core"
)

// Entry represents a score entry.
type Entry struct {
	User  core.UserID `json:"user_id"`
	Score int64       `json:"score"`
	Rank  int         `json:"rank,omitempty"`
}

// Board abstracts leaderboard operations.
type Board interface {
	Update(user core.UserID, score int64)
	Raise(user core.UserID, score int64) bool
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
	Rank(user core.UserID) (int, bool)
	Len() int
}

// Boards keeps one board per session. Totals are per session, so users
// never compete across sessions.
type Boards struct {
	mu     sync.RWMutex
	boards map[core.SessionID]Board
	newFn  func() Board
}

func NewBoards() *Boards {
	return &Boards{
		boards: map[core.SessionID]Board{},
		newFn:  func() Board { return NewSkipList() },
	}
}

// Board returns the session's board, creating it on first use.
func (b *Boards) Board(session core.SessionID) Board {
	b.mu.RLock()
	board, ok := b.boards[session]
	b.mu.RUnlock()
	if ok {
		return board
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if board, ok = b.boards[session]; !ok {
		board = b.newFn()
		b.boards[session] = board
	}
	return board
}

// Handle consumes points_added events. Event.Total is the committed total
// and totals only grow, so an older event delivered late never lowers a
// score.
func (b *Boards) Handle(_ context.Context, ev core.Event) {
	if ev.Type != core.EventPointsAdded || ev.SessionID == "" {
		return
	}
	b.Board(ev.SessionID).Raise(ev.UserID, ev.Total)
}

// Top returns the session's n best entries with ranks filled in.
func (b *Boards) Top(session core.SessionID, n int) []Entry {
	b.mu.RLock()
	board, ok := b.boards[session]
	b.mu.RUnlock()
	if !ok {
		return []Entry{}
	}
	top := board.TopN(n)
	if top == nil {
		return []Entry{}
	}
	for i := range top {
		top[i].Rank = i + 1
	}
	return top
}

// Position returns the user's entry with its rank.
func (b *Boards) Position(session core.SessionID, user core.UserID) (Entry, bool) {
	b.mu.RLock()
	board, ok := b.boards[session]
	b.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	e, ok := board.Get(user)
	if !ok {
		return Entry{}, false
	}
	e.Rank, _ = board.Rank(user)
	return e, true
}

// Rebuild replaces the session's board with the given states, e.g. after a
// restart against persistent storage.
func (b *Boards) Rebuild(session core.SessionID, states []core.UserState) {
	board := b.newFn()
	for _, st := range states {
		board.Update(st.UserID, st.TotalPoints)
	}
	b.mu.Lock()
	b.boards[session] = board
	b.mu.Unlock()
}
