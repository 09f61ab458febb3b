package webrtc

import (
	"sync"

	"rtcstreamer/native/internal/domain"
)

// hub fans one pion callback out to explicit subscriptions so listeners can
// be removed when an attempt is torn down.
type hub[T any] struct {
	mu     sync.Mutex
	nextID int
	ids    []int
	fns    map[int]func(T)
}

func (h *hub[T]) subscribe(fn func(T)) domain.Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fns == nil {
		h.fns = make(map[int]func(T))
	}
	id := h.nextID
	h.nextID++
	h.ids = append(h.ids, id)
	h.fns[id] = fn
	return &subscription{cancel: func() { h.remove(id) }}
}

func (h *hub[T]) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.fns, id)
	for i, v := range h.ids {
		if v == id {
			h.ids = append(h.ids[:i], h.ids[i+1:]...)
			break
		}
	}
}

// emit calls subscribers in registration order, outside the lock.
func (h *hub[T]) emit(v T) {
	h.mu.Lock()
	fns := make([]func(T), 0, len(h.ids))
	for _, id := range h.ids {
		fns = append(fns, h.fns[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (h *hub[T]) clear() {
	h.mu.Lock()
	h.ids = nil
	h.fns = nil
	h.mu.Unlock()
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}
