package match

import (
	"sync"

	"duel-arena/internal/combat"
)

// Ticket is a queued player with the weapon they will fight with.
type Ticket struct {
	Participant
	Weapon combat.Weapon
}

// Queue is the FIFO ranked matchmaking queue. The two longest-waiting
// players are paired as soon as both are present.
type Queue struct {
	mu      sync.Mutex
	waiting []Ticket
	onPair  func(a, b Ticket)
}

// NewQueue creates a queue that hands each pair to onPair.
// onPair runs on the enqueuing goroutine, outside the queue lock.
func NewQueue(onPair func(a, b Ticket)) *Queue {
	return &Queue{onPair: onPair}
}

// Enqueue adds t unless a ticket with the same id is already waiting.
// It returns false for duplicates.
func (q *Queue) Enqueue(t Ticket) bool {
	q.mu.Lock()
	for _, w := range q.waiting {
		if w.ID == t.ID {
			q.mu.Unlock()
			return false
		}
	}
	q.waiting = append(q.waiting, t)

	var pairs [][2]Ticket
	for len(q.waiting) >= 2 {
		pairs = append(pairs, [2]Ticket{q.waiting[0], q.waiting[1]})
		q.waiting = q.waiting[2:]
	}
	q.mu.Unlock()

	for _, p := range pairs {
		if q.onPair != nil {
			q.onPair(p[0], p[1])
		}
	}
	return true
}

// Remove drops id from the queue. It reports whether id was waiting.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiting {
		if w.ID == id {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}
