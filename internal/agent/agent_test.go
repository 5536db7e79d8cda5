package agent

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/gomoku-dispatch/internal/game"
	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestAgent(t *testing.T, addr string) *Agent {
	t.Helper()
	validate := func(board protocol.Board, row, col int, symbol string) (bool, bool, bool) {
		v := game.Validate(board, row, col, symbol)
		return v.Legal, v.Winning, v.Draw
	}
	return New(Config{
		DispatcherAddrs: []string{addr},
		ReconnectDelay:  50 * time.Millisecond,
		DialTimeout:     time.Second,
	}, validate, game.BestMove, testLogger())
}

// stubDispatcher is a bare TCP listener standing in for the dispatcher.
type stubDispatcher struct {
	t  *testing.T
	ln net.Listener
}

func newStubDispatcher(t *testing.T) *stubDispatcher {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("cannot listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return &stubDispatcher{t: t, ln: ln}
}

func (s *stubDispatcher) addr() string { return s.ln.Addr().String() }

func (s *stubDispatcher) accept() *stubConn {
	s.t.Helper()
	if tl, ok := s.ln.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(3 * time.Second))
	}
	conn, err := s.ln.Accept()
	if err != nil {
		s.t.Fatalf("agent never connected: %v", err)
	}
	return &stubConn{t: s.t, conn: conn, framer: protocol.NewFramer()}
}

type stubConn struct {
	t      *testing.T
	conn   net.Conn
	framer *protocol.Framer
	queue  []protocol.Envelope
}

func (c *stubConn) send(env protocol.Envelope) {
	c.t.Helper()
	data, err := protocol.Encode(env)
	if err != nil {
		c.t.Fatalf("cannot encode: %v", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("cannot write: %v", err)
	}
}

func (c *stubConn) expect(msgType string) protocol.Envelope {
	c.t.Helper()

	for i, env := range c.queue {
		if env.Type == msgType {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return env
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	buf := make([]byte, 8192)
	for {
		c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		envs, errs := c.framer.Push(buf[:n])
		for _, derr := range errs {
			c.t.Fatalf("malformed agent message: %v", derr)
		}
		for _, env := range envs {
			if env.Type == msgType {
				return env
			}
			c.queue = append(c.queue, env)
		}
	}
}

// handshake reads the agent's registration and acks it.
func (c *stubConn) handshake(workerID string) protocol.RegistrationPayload {
	c.t.Helper()
	reg := c.expect(protocol.TypeWorkerRegistration)
	var payload protocol.RegistrationPayload
	if err := reg.DecodePayload(&payload); err != nil {
		c.t.Fatalf("cannot decode registration: %v", err)
	}
	if workerID == "" {
		workerID = payload.WorkerID
	}
	ack, _ := protocol.NewEnvelope(protocol.TypeWorkerRegistrationAck, reg.RequestID, protocol.StatusSuccess,
		protocol.RegistrationPayload{WorkerID: workerID})
	c.send(ack)
	return payload
}

func waitForState(t *testing.T, a *Agent, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("agent never reached %s, stuck at %s", want, a.State())
}

func TestAgentRegistersAndProcessesTasks(t *testing.T) {
	stub := newStubDispatcher(t)
	a := newTestAgent(t, stub.addr())
	defer a.Stop()

	go a.Run(context.Background())

	conn := stub.accept()
	defer conn.conn.Close()

	payload := conn.handshake("")
	if payload.WorkerID != a.ID() {
		t.Errorf("registration carried id %s, agent reports %s", payload.WorkerID, a.ID())
	}
	if len(payload.Capabilities) != 2 {
		t.Errorf("expected 2 capabilities, got %v", payload.Capabilities)
	}
	waitForState(t, a, StateConnectedRegistered)

	// Validation task.
	board := protocol.NewBoard()
	board[7][7] = "X"
	req, _ := protocol.NewEnvelope(protocol.TypeValidateMoveRequest, "task-1", "",
		protocol.ValidateMovePayload{Board: board, Row: 7, Col: 7, PlayerSymbol: "O"})
	conn.send(req)

	resp := conn.expect(protocol.TypeValidateMoveResponse)
	if resp.RequestID != "task-1" {
		t.Errorf("correlation lost: %q", resp.RequestID)
	}
	var verdict protocol.ValidateMoveResult
	if err := resp.DecodePayload(&verdict); err != nil {
		t.Fatalf("cannot decode verdict: %v", err)
	}
	if verdict.IsValid {
		t.Error("occupied cell should be invalid")
	}

	// AI task on an empty board opens at the center.
	aiReq, _ := protocol.NewEnvelope(protocol.TypeAIMoveRequest, "task-2", "",
		protocol.AIMovePayload{Board: protocol.NewBoard(), AISymbol: "O"})
	conn.send(aiReq)

	aiResp := conn.expect(protocol.TypeAIMoveResponse)
	var move protocol.AIMoveResult
	if err := aiResp.DecodePayload(&move); err != nil {
		t.Fatalf("cannot decode AI move: %v", err)
	}
	center := protocol.BoardSize / 2
	if !move.IsValid || move.Row != center || move.Col != center {
		t.Errorf("expected the center opening, got %+v", move)
	}

	// Liveness.
	ping, _ := protocol.NewEnvelope(protocol.TypePing, "ping-1", "", nil)
	conn.send(ping)
	pong := conn.expect(protocol.TypePong)
	if pong.RequestID != "ping-1" {
		t.Errorf("pong correlation lost: %q", pong.RequestID)
	}

	// Health report.
	hc, _ := protocol.NewEnvelope(protocol.TypeHealthCheck, "hc-1", "", nil)
	conn.send(hc)
	hcResp := conn.expect(protocol.TypeHealthCheckResponse)
	var health protocol.HealthPayload
	if err := hcResp.DecodePayload(&health); err != nil {
		t.Fatalf("cannot decode health: %v", err)
	}
	if !health.IsRegistered || !health.IsConnected || health.WorkerID != a.ID() {
		t.Errorf("health payload wrong: %+v", health)
	}
}

func TestAgentAIMoveOnFullBoard(t *testing.T) {
	stub := newStubDispatcher(t)
	a := newTestAgent(t, stub.addr())
	defer a.Stop()
	go a.Run(context.Background())

	conn := stub.accept()
	defer conn.conn.Close()
	conn.handshake("")

	board := protocol.NewBoard()
	for r := range board {
		for c := range board[r] {
			board[r][c] = "X"
		}
	}
	req, _ := protocol.NewEnvelope(protocol.TypeAIMoveRequest, "task-full", "",
		protocol.AIMovePayload{Board: board, AISymbol: "O"})
	conn.send(req)

	resp := conn.expect(protocol.TypeAIMoveResponse)
	var move protocol.AIMoveResult
	if err := resp.DecodePayload(&move); err != nil {
		t.Fatalf("cannot decode AI move: %v", err)
	}
	if move.IsValid || move.Row != -1 || move.Col != -1 {
		t.Errorf("full board should yield an invalid move, got %+v", move)
	}
	if move.ErrorMessage == "" {
		t.Error("expected an explanatory message")
	}
}

func TestAgentIgnoresMismatchedAck(t *testing.T) {
	stub := newStubDispatcher(t)
	a := newTestAgent(t, stub.addr())
	defer a.Stop()
	go a.Run(context.Background())

	conn := stub.accept()
	defer conn.conn.Close()
	conn.handshake("some-other-worker")

	// Give the agent a moment; it must not claim registration.
	time.Sleep(100 * time.Millisecond)
	if a.State() == StateConnectedRegistered {
		t.Error("agent accepted an ack meant for a different worker")
	}
}

func TestAgentReconnectsAfterConnectionLoss(t *testing.T) {
	stub := newStubDispatcher(t)
	a := newTestAgent(t, stub.addr())
	defer a.Stop()
	go a.Run(context.Background())

	first := stub.accept()
	firstID := first.handshake("").WorkerID
	waitForState(t, a, StateConnectedRegistered)

	// Kill the connection; the agent must come back on its own and
	// register under the same id.
	first.conn.Close()

	second := stub.accept()
	defer second.conn.Close()
	secondID := second.handshake("").WorkerID
	if secondID != firstID {
		t.Errorf("worker id changed across reconnect: %s then %s", firstID, secondID)
	}
	waitForState(t, a, StateConnectedRegistered)
}

func TestAgentStopIsIdempotent(t *testing.T) {
	stub := newStubDispatcher(t)
	a := newTestAgent(t, stub.addr())

	done := make(chan struct{})
	go func() {
		a.Run(context.Background())
		close(done)
	}()

	conn := stub.accept()
	defer conn.conn.Close()
	conn.handshake("")
	waitForState(t, a, StateConnectedRegistered)

	a.Stop()
	a.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run never returned after Stop")
	}
	if a.State() != StateDisconnected {
		t.Errorf("expected Disconnected after Stop, got %s", a.State())
	}
}

func TestAgentKeepsRetryingWhileDispatcherIsDown(t *testing.T) {
	// Grab an address with nothing listening on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("cannot listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	a := newTestAgent(t, addr)
	defer a.Stop()
	go a.Run(context.Background())

	// Let a few attempts fail, then bring the dispatcher up.
	time.Sleep(150 * time.Millisecond)
	ln, err = net.Listen("tcp", addr)
	if err != nil {
		t.Skipf("cannot rebind %s: %v", addr, err)
	}
	defer ln.Close()

	if tl, ok := ln.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(3 * time.Second))
	}
	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("agent never connected to the recovered dispatcher: %v", err)
	}
	conn.Close()
}
