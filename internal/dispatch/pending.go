package dispatch

import (
	"sync"

	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

// pendingRequest correlates an in-flight task with the caller awaiting it.
type pendingRequest struct {
	requestID string
	workerID  WorkerID
	taskDesc  string
	reply     chan protocol.Envelope // buffered(1); receives the terminal response
}

// pendingTable maps live request ids to their waiters. Entries are created
// when a task is sent to a worker and removed when the matching response
// arrives, the deadline passes, or the worker disconnects.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingRequest)}
}

// add registers a waiter for requestID assigned to workerID.
func (t *pendingTable) add(requestID string, workerID WorkerID, taskDesc string) *pendingRequest {
	p := &pendingRequest{
		requestID: requestID,
		workerID:  workerID,
		taskDesc:  taskDesc,
		reply:     make(chan protocol.Envelope, 1),
	}
	t.mu.Lock()
	t.entries[requestID] = p
	t.mu.Unlock()
	return p
}

// resolve removes the entry for requestID and delivers the response to its
// waiter. Returns false when no entry matches (late timeout, stray ack);
// the caller logs and discards such responses.
func (t *pendingTable) resolve(requestID string, env protocol.Envelope) (WorkerID, bool) {
	t.mu.Lock()
	p, exists := t.entries[requestID]
	if exists {
		delete(t.entries, requestID)
	}
	t.mu.Unlock()

	if !exists {
		return "", false
	}
	p.reply <- env
	return p.workerID, true
}

// remove drops the entry for requestID without delivering anything.
// Used when the waiter itself gives up (timeout).
func (t *pendingTable) remove(requestID string) {
	t.mu.Lock()
	delete(t.entries, requestID)
	t.mu.Unlock()
}

// failWorker removes the entry attributed to workerID, if any, and
// delivers an error response to its waiter. Called when a worker
// disconnects while holding a task.
func (t *pendingTable) failWorker(workerID WorkerID, message string) (requestID string, failed bool) {
	t.mu.Lock()
	var p *pendingRequest
	for _, entry := range t.entries {
		if entry.workerID == workerID {
			p = entry
			break
		}
	}
	if p != nil {
		delete(t.entries, p.requestID)
	}
	t.mu.Unlock()

	if p == nil {
		return "", false
	}
	p.reply <- protocol.NewErrorResponse(p.requestID, message)
	return p.requestID, true
}

// size returns the number of live entries.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// clear drops every entry, delivering an error to each waiter.
func (t *pendingTable) clear(message string) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingRequest)
	t.mu.Unlock()

	for _, p := range entries {
		p.reply <- protocol.NewErrorResponse(p.requestID, message)
	}
}
