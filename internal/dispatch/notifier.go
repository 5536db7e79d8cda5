package dispatch

import "sync"

// Notifier fans events out to subscribed handlers. Handlers are invoked
// synchronously, in subscription order, after the corresponding state
// transition has committed.
type Notifier struct {
	mu       sync.RWMutex
	handlers []func(Event)
}

// Subscribe registers a handler for all future events.
func (n *Notifier) Subscribe(handler func(Event)) {
	if handler == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, handler)
}

// Publish delivers an event to every subscriber.
func (n *Notifier) Publish(evt Event) {
	n.mu.RLock()
	handlers := n.handlers
	n.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}
