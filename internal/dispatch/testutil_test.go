package dispatch

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/gomoku-dispatch/internal/game"
	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// fakeLink records everything sent through it.
type fakeLink struct {
	mu     sync.Mutex
	sent   []protocol.Envelope
	closed bool
}

func (l *fakeLink) Send(env protocol.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, env)
	return nil
}

func (l *fakeLink) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

func (l *fakeLink) RemoteAddr() string { return "fake:0" }

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) sentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

// lastOfType returns the most recent envelope of the given type.
func (l *fakeLink) lastOfType(msgType string) (protocol.Envelope, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.sent) - 1; i >= 0; i-- {
		if l.sent[i].Type == msgType {
			return l.sent[i], true
		}
	}
	return protocol.Envelope{}, false
}

func (l *fakeLink) countOfType(msgType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, env := range l.sent {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

// workerLink is a fake worker connection that answers every request it
// receives using the real rule engine, routed back through the task
// dispatcher like a response arriving off the wire. The response is
// delivered synchronously from Send: the reply channel is buffered and
// registered before the request goes out, so the submitting goroutine
// finds its answer waiting and the worker is already Idle again.
type workerLink struct {
	fakeLink
	tasks *TaskDispatcher
}

func newWorkerLink(tasks *TaskDispatcher) *workerLink {
	return &workerLink{tasks: tasks}
}

func (l *workerLink) Send(env protocol.Envelope) error {
	if err := l.fakeLink.Send(env); err != nil {
		return err
	}

	switch env.Type {
	case protocol.TypeValidateMoveRequest:
		var payload protocol.ValidateMovePayload
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}
		v := game.Validate(payload.Board, payload.Row, payload.Col, payload.PlayerSymbol)
		result := protocol.ValidateMoveResult{IsValid: v.Legal, IsWinning: v.Winning, IsDraw: v.Draw}
		if !v.Legal {
			result.ErrorMessage = "Invalid move: position is occupied or out of bounds"
		}
		resp, _ := protocol.NewEnvelope(protocol.TypeValidateMoveResponse, env.RequestID, protocol.StatusSuccess, result)
		l.tasks.HandleResponse(resp)

	case protocol.TypeAIMoveRequest:
		var payload protocol.AIMovePayload
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}
		row, col := game.BestMove(payload.Board, payload.AISymbol)
		result := protocol.AIMoveResult{Row: row, Col: col, IsValid: row != -1}
		resp, _ := protocol.NewEnvelope(protocol.TypeAIMoveResponse, env.RequestID, protocol.StatusSuccess, result)
		l.tasks.HandleResponse(resp)
	}
	return nil
}

// approvingLink is a fake worker connection that waves every validation
// through without looking at the board and answers AI requests with a
// cell outside it, the way a broken or hostile worker could.
type approvingLink struct {
	fakeLink
	tasks *TaskDispatcher
}

func (l *approvingLink) Send(env protocol.Envelope) error {
	if err := l.fakeLink.Send(env); err != nil {
		return err
	}

	switch env.Type {
	case protocol.TypeValidateMoveRequest:
		resp, _ := protocol.NewEnvelope(protocol.TypeValidateMoveResponse, env.RequestID, protocol.StatusSuccess,
			protocol.ValidateMoveResult{IsValid: true})
		l.tasks.HandleResponse(resp)

	case protocol.TypeAIMoveRequest:
		resp, _ := protocol.NewEnvelope(protocol.TypeAIMoveResponse, env.RequestID, protocol.StatusSuccess,
			protocol.AIMoveResult{Row: protocol.BoardSize, Col: protocol.BoardSize, IsValid: true})
		l.tasks.HandleResponse(resp)
	}
	return nil
}

// silentLink accepts requests and never answers them.
type silentLink struct {
	fakeLink
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
