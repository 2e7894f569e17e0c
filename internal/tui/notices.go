package tui

import "sync"

// Notices collects session notices raised while a command runs so they can
// be shown once it finishes. It satisfies session.Notifier.
type Notices struct {
	mu      sync.Mutex
	pending []string
}

func NewNotices() *Notices { return &Notices{} }

func (n *Notices) Notify(msg string) {
	n.mu.Lock()
	n.pending = append(n.pending, msg)
	n.mu.Unlock()
}

// Drain returns and forgets the pending notices.
func (n *Notices) Drain() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.pending
	n.pending = nil
	return out
}
