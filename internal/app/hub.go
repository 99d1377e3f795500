package app

import (
	"sync"

	"quiz-widget-service/internal/domain"
)

// hub fans session views out to subscribers, keyed by session ID.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.SessionView]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan domain.SessionView]struct{})}
}

func (h *hub) subscribe(id string, initial domain.SessionView) (<-chan domain.SessionView, func()) {
	ch := make(chan domain.SessionView, 8)
	ch <- initial

	h.mu.Lock()
	set, ok := h.subs[id]
	if !ok {
		set = make(map[chan domain.SessionView]struct{})
		h.subs[id] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		set, ok := h.subs[id]
		if !ok {
			return
		}
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	return ch, cancel
}

func (h *hub) publish(id string, view domain.SessionView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[id] {
		select {
		case ch <- view:
		default:
			// slow subscriber: drop the oldest view, keep the latest
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (h *hub) closeAll(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[id] {
		close(ch)
	}
	delete(h.subs, id)
}

// keyedMutex serialises work per session ID.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
