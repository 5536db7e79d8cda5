// Package agent implements the worker-side half of the platform: one
// outbound connection to the dispatcher, autonomous reconnection with a
// fixed backoff, and strictly sequential execution of offloaded tasks.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

// State is the agent's connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedUnregistered
	StateConnectedRegistered
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnectedUnregistered:
		return "Connected"
	case StateConnectedRegistered:
		return "Registered"
	default:
		return "Unknown"
	}
}

// ValidateFunc is the rule-engine collaborator: it reports whether a move
// is legal and, if so, whether applying it wins or draws the game.
type ValidateFunc func(board protocol.Board, row, col int, symbol string) (legal, winning, draw bool)

// BestMoveFunc is the move-search collaborator. It returns (-1, -1) when
// no legal move exists.
type BestMoveFunc func(board protocol.Board, symbol string) (row, col int)

// Capabilities declared during registration.
var defaultCapabilities = []string{"AI_PROCESSING", "MOVE_VALIDATION"}

// Config holds the agent's dial targets and recovery timing.
type Config struct {
	// DispatcherAddrs are candidate dispatcher endpoints, raced on every
	// connect attempt; the first success wins.
	DispatcherAddrs []string

	// ReconnectDelay is the fixed wait between attempts. Defaults to 5s.
	ReconnectDelay time.Duration

	// DialTimeout bounds a single connect attempt. Defaults to 5s.
	DialTimeout time.Duration
}

// Agent owns one logical connection to the dispatcher and processes every
// inbound task request sequentially against its collaborators.
type Agent struct {
	id       string
	config   Config
	validate ValidateFunc
	bestMove BestMoveFunc
	logger   *log.Logger

	// Observability callbacks; any may be nil. Invoked from the agent's
	// run loop, so handlers must not block.
	OnConnectionChanged   func(connected bool, serverAddr string)
	OnRegistrationChanged func(registered bool, workerID string)
	OnRequestProcessed    func(requestType string, elapsed time.Duration, success bool)

	mu    sync.Mutex
	state State
	conn  net.Conn

	done     chan struct{}
	stopOnce sync.Once
}

// New creates an agent with a fresh worker id derived from the host name
// and a random suffix, stable for the lifetime of the process (and so
// across reconnects).
func New(cfg Config, validate ValidateFunc, bestMove BestMoveFunc, logger *log.Logger) *Agent {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}

	return &Agent{
		id:       host + "-" + uuid.NewString()[:8],
		config:   cfg,
		validate: validate,
		bestMove: bestMove,
		logger:   logger,
		state:    StateDisconnected,
		done:     make(chan struct{}),
	}
}

// ID returns the agent's worker id.
func (a *Agent) ID() string {
	return a.id
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Run drives the connect/serve/reconnect loop until Stop is called or the
// context is canceled. Reconnection uses a fixed delay and retries
// indefinitely; this loop is the agent's sole recovery mechanism.
func (a *Agent) Run(ctx context.Context) {
	a.logger.Info("worker starting", "id", a.id)

	for {
		if a.stopped(ctx) {
			return
		}

		a.setState(StateConnecting)
		conn, addr, err := a.dialAny(ctx)
		if err != nil {
			a.logger.Warn("cannot connect to dispatcher", "error", err)
			a.setState(StateDisconnected)
			if !a.waitBackoff(ctx) {
				return
			}
			continue
		}

		a.mu.Lock()
		a.conn = conn
		a.state = StateConnectedUnregistered
		a.mu.Unlock()

		a.logger.Info("connected to dispatcher", "addr", addr)
		a.notifyConnection(true, addr)

		if err := a.register(conn); err != nil {
			a.logger.Warn("cannot send registration", "error", err)
		}

		a.serve(conn)

		a.mu.Lock()
		a.conn = nil
		a.state = StateDisconnected
		a.mu.Unlock()
		conn.Close()

		a.notifyRegistration(false)
		a.notifyConnection(false, "")

		if a.stopped(ctx) {
			return
		}
		a.logger.Info("reconnecting", "delay", a.config.ReconnectDelay)
		if !a.waitBackoff(ctx) {
			return
		}
	}
}

// Stop disables the loop and closes the socket so an in-flight read
// unblocks promptly. Idempotent.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		a.logger.Info("worker stopping", "id", a.id)
		close(a.done)

		a.mu.Lock()
		conn := a.conn
		a.conn = nil
		a.state = StateDisconnected
		a.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		a.notifyRegistration(false)
		a.notifyConnection(false, "")
	})
}

// stopped reports whether the loop should exit.
func (a *Agent) stopped(ctx context.Context) bool {
	select {
	case <-a.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// waitBackoff sleeps the fixed reconnect delay, returning false when the
// agent was stopped during the wait.
func (a *Agent) waitBackoff(ctx context.Context) bool {
	timer := time.NewTimer(a.config.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-a.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// dialAny races every candidate address; the first successful connection
// wins and the rest are abandoned.
func (a *Agent) dialAny(ctx context.Context) (net.Conn, string, error) {
	if len(a.config.DispatcherAddrs) == 0 {
		return nil, "", errors.New("agent: no dispatcher addresses configured")
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.config.DialTimeout)
	defer cancel()

	type result struct {
		conn net.Conn
		addr string
		err  error
	}
	results := make(chan result, len(a.config.DispatcherAddrs))

	var dialer net.Dialer
	for _, addr := range a.config.DispatcherAddrs {
		go func(addr string) {
			conn, err := dialer.DialContext(dialCtx, "tcp", addr)
			results <- result{conn: conn, addr: addr, err: err}
		}(addr)
	}

	var lastErr error
	total := len(a.config.DispatcherAddrs)
	for i := 0; i < total; i++ {
		res := <-results
		if res.err != nil {
			lastErr = res.err
			continue
		}
		// Winner takes the connection; abandoned attempts are drained in
		// the background and any late successes closed.
		if remaining := total - i - 1; remaining > 0 {
			go func() {
				for j := 0; j < remaining; j++ {
					if late := <-results; late.conn != nil {
						late.conn.Close()
					}
				}
			}()
		}
		return res.conn, res.addr, nil
	}
	return nil, "", fmt.Errorf("agent: all dispatcher addresses failed: %w", lastErr)
}

// register sends the registration request with the agent's id and
// declared capabilities.
func (a *Agent) register(conn net.Conn) error {
	env, err := protocol.NewEnvelope(
		protocol.TypeWorkerRegistration,
		uuid.NewString(),
		"",
		protocol.RegistrationPayload{WorkerID: a.id, Capabilities: defaultCapabilities},
	)
	if err != nil {
		return err
	}
	a.logger.Info("registering with dispatcher", "id", a.id)
	return a.send(conn, env)
}

// serve reads and processes requests sequentially until the connection
// dies. A zero-length read (peer close) ends the loop like any error.
func (a *Agent) serve(conn net.Conn) {
	framer := protocol.NewFramer()
	buf := make([]byte, 4096)

	for {
		select {
		case <-a.done:
			return
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			a.logger.Info("dispatcher connection lost", "error", err)
			return
		}

		envs, decodeErrs := framer.Push(buf[:n])
		for _, derr := range decodeErrs {
			a.logger.Warn("malformed request", "error", derr)
			if serr := a.send(conn, protocol.NewErrorResponse("", "invalid request format")); serr != nil {
				return
			}
		}

		for _, env := range envs {
			if !a.handleRequest(conn, env) {
				return
			}
		}
	}
}

// handleRequest dispatches one envelope by type; returns false when the
// connection should be abandoned (write failure).
func (a *Agent) handleRequest(conn net.Conn, env protocol.Envelope) bool {
	switch env.Type {
	case protocol.TypeWorkerRegistrationAck:
		a.handleRegistrationAck(env)
		return true

	case protocol.TypeAIMoveRequest:
		return a.send(conn, a.processAIMove(env)) == nil

	case protocol.TypeValidateMoveRequest:
		return a.send(conn, a.processValidateMove(env)) == nil

	case protocol.TypeHealthCheck:
		return a.send(conn, a.healthResponse(env)) == nil

	case protocol.TypePing:
		pong, _ := protocol.NewEnvelope(protocol.TypePong, env.RequestID, protocol.StatusSuccess,
			protocol.PongPayload{WorkerID: a.id})
		return a.send(conn, pong) == nil

	case protocol.TypePong:
		return true

	default:
		a.logger.Warn("unknown request type", "type", env.Type)
		return a.send(conn, protocol.NewErrorResponse(env.RequestID, "unknown request type: "+env.Type)) == nil
	}
}

// handleRegistrationAck confirms registration. An ack for a different
// worker id is logged and ignored; it guards against cross-talk if ids
// were ever reused.
func (a *Agent) handleRegistrationAck(env protocol.Envelope) {
	var payload protocol.RegistrationPayload
	if err := env.DecodePayload(&payload); err != nil {
		a.logger.Warn("invalid registration ack", "error", err)
		return
	}

	if payload.WorkerID != a.id {
		a.logger.Warn("registration ack for different worker id, ignoring",
			"got", payload.WorkerID, "want", a.id)
		return
	}

	a.setState(StateConnectedRegistered)
	a.logger.Info("registration acknowledged, ready to process requests", "id", a.id)
	a.notifyRegistration(true)
}

// processAIMove runs the move search and reports per-task latency.
func (a *Agent) processAIMove(env protocol.Envelope) protocol.Envelope {
	start := time.Now()

	var payload protocol.AIMovePayload
	if err := env.DecodePayload(&payload); err != nil {
		a.notifyProcessed(protocol.TypeAIMoveRequest, time.Since(start), false)
		return protocol.NewErrorResponse(env.RequestID, "invalid AI request data")
	}

	row, col := a.bestMove(payload.Board, payload.AISymbol)
	elapsed := time.Since(start)

	result := protocol.AIMoveResult{
		Row:     row,
		Col:     col,
		IsValid: row != -1 && col != -1,
	}
	if !result.IsValid {
		result.ErrorMessage = "No valid moves available"
	}

	a.logger.Info("AI move computed",
		"request", env.RequestID, "symbol", payload.AISymbol,
		"row", row, "col", col, "elapsed", elapsed)
	a.notifyProcessed(protocol.TypeAIMoveRequest, elapsed, result.IsValid)

	resp, err := protocol.NewEnvelope(protocol.TypeAIMoveResponse, env.RequestID, protocol.StatusSuccess, result)
	if err != nil {
		return protocol.NewErrorResponse(env.RequestID, "AI processing error: "+err.Error())
	}
	return resp
}

// processValidateMove runs the rule check and reports per-task latency.
func (a *Agent) processValidateMove(env protocol.Envelope) protocol.Envelope {
	start := time.Now()

	var payload protocol.ValidateMovePayload
	if err := env.DecodePayload(&payload); err != nil {
		a.notifyProcessed(protocol.TypeValidateMoveRequest, time.Since(start), false)
		return protocol.NewErrorResponse(env.RequestID, "invalid validation request data")
	}

	legal, winning, draw := a.validate(payload.Board, payload.Row, payload.Col, payload.PlayerSymbol)

	result := protocol.ValidateMoveResult{
		IsValid:   legal,
		IsWinning: winning,
		IsDraw:    draw,
	}
	if !legal {
		result.ErrorMessage = "Invalid move: position is occupied or out of bounds"
	}

	elapsed := time.Since(start)
	a.notifyProcessed(protocol.TypeValidateMoveRequest, elapsed, true)

	resp, err := protocol.NewEnvelope(protocol.TypeValidateMoveResponse, env.RequestID, protocol.StatusSuccess, result)
	if err != nil {
		return protocol.NewErrorResponse(env.RequestID, "validation error: "+err.Error())
	}
	return resp
}

func (a *Agent) healthResponse(env protocol.Envelope) protocol.Envelope {
	state := a.State()
	resp, err := protocol.NewEnvelope(protocol.TypeHealthCheckResponse, env.RequestID, protocol.StatusSuccess,
		protocol.HealthPayload{
			WorkerID:     a.id,
			Status:       "Healthy",
			IsRegistered: state == StateConnectedRegistered,
			IsConnected:  state >= StateConnectedUnregistered,
			Timestamp:    time.Now().UTC(),
		})
	if err != nil {
		return protocol.NewErrorResponse(env.RequestID, err.Error())
	}
	return resp
}

func (a *Agent) send(conn net.Conn, env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) notifyConnection(connected bool, addr string) {
	if a.OnConnectionChanged != nil {
		a.OnConnectionChanged(connected, addr)
	}
}

func (a *Agent) notifyRegistration(registered bool) {
	if a.OnRegistrationChanged != nil {
		a.OnRegistrationChanged(registered, a.id)
	}
}

func (a *Agent) notifyProcessed(requestType string, elapsed time.Duration, success bool) {
	if a.OnRequestProcessed != nil {
		a.OnRequestProcessed(requestType, elapsed, success)
	}
}
