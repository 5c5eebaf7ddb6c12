// Package events fans reminder state changes out to live subscribers.
package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RemindersUpdated = "reminders_updated"

// Event is what subscribers receive; Data carries the full reminder list.
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// Subscriber is a handle returned by Subscribe. Events arrive on C in publish
// order. Done is closed once the hub drops the subscriber.
type Subscriber struct {
	ID   string
	C    <-chan Event
	Done <-chan struct{}

	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscriber
	buffer int
	log    *zap.Logger
}

// NewHub creates a hub whose subscribers can queue up to buffer events before
// they are considered broken.
func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: map[string]*Subscriber{}, buffer: buffer, log: log}
}

func (h *Hub) Subscribe() *Subscriber {
	ch := make(chan Event, h.buffer)
	done := make(chan struct{})
	s := &Subscriber{ID: uuid.NewString(), C: ch, Done: done, ch: ch, done: done}

	h.mu.Lock()
	h.subs[s.ID] = s
	n := len(h.subs)
	h.mu.Unlock()

	h.log.Debug("subscriber added", zap.String("subscriber", s.ID), zap.Int("subscribers", n))
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if cur, ok := h.subs[s.ID]; ok && cur == s {
		delete(h.subs, s.ID)
	}
	h.mu.Unlock()
	s.close()
}

// Publish hands ev to every subscriber without waiting on any of them.
// A subscriber whose queue is full is dropped.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	snapshot := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	var dead []*Subscriber
	for _, s := range snapshot {
		select {
		case <-s.done:
			dead = append(dead, s)
			continue
		default:
		}
		select {
		case s.ch <- ev:
		default:
			dead = append(dead, s)
		}
	}

	for _, s := range dead {
		h.log.Warn("dropping subscriber", zap.String("subscriber", s.ID))
		h.Unsubscribe(s)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
