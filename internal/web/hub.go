package web

import "sync"

// Hub fans library and session changes out to open Datastar streams.
type Hub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[chan struct{}]struct{}{}}
}

func (h *Hub) subscribe() (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// Broadcast never blocks; a subscriber with a full buffer already has a
// render pending.
func (h *Hub) Broadcast() {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

// Flash collects session notices until the next page render shows them.
type Flash struct {
	mu   sync.Mutex
	msgs []string
}

func (f *Flash) Notify(msg string) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
}

func (f *Flash) drain() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.msgs
	f.msgs = nil
	return out
}
