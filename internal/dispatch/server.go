package dispatch

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

// healthCheckInterval is how often registered workers are probed.
const healthCheckInterval = 30 * time.Second

// ServerConfig holds the dispatcher server's endpoints and timing.
type ServerConfig struct {
	// ClientAddr is the host:port the client listener binds to.
	ClientAddr string

	// WorkerAddr is the host:port the worker listener binds to.
	WorkerAddr string

	// TaskTimeout bounds how long a dispatched task may stay unanswered.
	TaskTimeout time.Duration
}

// Server owns the dispatcher's two listening endpoints and the four
// coordinating components behind them. Each accepted connection is
// serviced by its own goroutine; shared state lives in the per-component
// structures, each with its own mutex, and no lock is held across
// socket I/O.
type Server struct {
	config   ServerConfig
	logger   *log.Logger
	notifier *Notifier

	Registry *WorkerRegistry
	Sessions *SessionManager
	Tasks    *TaskDispatcher
	Rooms    *RoomCoordinator

	mu         sync.Mutex
	running    bool
	clientLn   net.Listener
	workerLn   net.Listener
	conns      map[*connLink]struct{}
	healthDone chan struct{}
	wg         sync.WaitGroup
}

// NewServer builds a stopped dispatcher server.
func NewServer(cfg ServerConfig, logger *log.Logger) *Server {
	notifier := &Notifier{}
	registry := NewWorkerRegistry()
	sessions := NewSessionManager(notifier)
	tasks := NewTaskDispatcher(registry, notifier, logger, cfg.TaskTimeout)
	rooms := NewRoomCoordinator(sessions, tasks, notifier, logger)

	return &Server{
		config:   cfg,
		logger:   logger,
		notifier: notifier,
		Registry: registry,
		Sessions: sessions,
		Tasks:    tasks,
		Rooms:    rooms,
		conns:    make(map[*connLink]struct{}),
	}
}

// Subscribe registers an observer for dispatcher events.
func (s *Server) Subscribe(handler func(Event)) {
	s.notifier.Subscribe(handler)
}

// IsRunning reports whether the listeners are up.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartAsync binds both listeners and starts accepting connections in the
// background. Safe to call again after Stop.
func (s *Server) StartAsync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("dispatch: server already running")
	}

	clientLn, err := net.Listen("tcp", s.config.ClientAddr)
	if err != nil {
		return fmt.Errorf("dispatch: cannot listen for clients on %s: %w", s.config.ClientAddr, err)
	}
	workerLn, err := net.Listen("tcp", s.config.WorkerAddr)
	if err != nil {
		clientLn.Close()
		return fmt.Errorf("dispatch: cannot listen for workers on %s: %w", s.config.WorkerAddr, err)
	}

	s.clientLn = clientLn
	s.workerLn = workerLn
	s.running = true
	s.healthDone = make(chan struct{})

	s.logger.Info("dispatcher started",
		"client_addr", clientLn.Addr().String(),
		"worker_addr", workerLn.Addr().String())

	s.wg.Add(3)
	go s.acceptLoop(clientLn, s.handleClientConn)
	go s.acceptLoop(workerLn, s.handleWorkerConn)
	go s.healthLoop(s.healthDone)
	return nil
}

// healthLoop periodically probes every registered worker. A failed write
// means the socket is already dead; its handler runs the disconnect path.
func (s *Server) healthLoop(done chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for _, w := range s.Registry.ListWorkers() {
				link, ok := s.Registry.Link(w.ID)
				if !ok {
					continue
				}
				probe, err := protocol.NewEnvelope(protocol.TypeHealthCheck, uuid.NewString(), "", nil)
				if err != nil {
					continue
				}
				if err := link.Send(probe); err != nil {
					s.logger.Warn("health probe failed", "worker", w.ID, "error", err)
				}
			}
		}
	}
}

// Stop closes the listeners and every open connection, then waits for all
// handlers to finish. In-flight tasks are failed, never silently dropped.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.healthDone)
	s.clientLn.Close()
	s.workerLn.Close()
	for link := range s.conns {
		link.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.Tasks.Clear()
	s.logger.Info("dispatcher stopped")
}

// ClearAllData drops all sessions, rooms and worker records. Used on
// restart; the server must be stopped first.
func (s *Server) ClearAllData() {
	s.Tasks.Clear()
	s.Rooms.Clear()
	s.Sessions.Clear()
	s.Registry.Clear()
	s.publishStats()
}

// DisconnectWorker administratively closes a worker's connection. The
// handler runs the normal disconnect transition.
func (s *Server) DisconnectWorker(id WorkerID) bool {
	link, ok := s.Registry.Link(id)
	if !ok {
		return false
	}
	s.logger.Info("administratively disconnecting worker", "worker", id)
	link.Close()
	return true
}

// DisconnectClient administratively closes a client's connection.
func (s *Server) DisconnectClient(id ClientID) bool {
	s.logger.Info("administratively disconnecting client", "client", id)
	return s.Sessions.DisconnectClient(id)
}

// Stats returns current aggregate counts.
func (s *Server) Stats() Stats {
	return Stats{
		Clients:     s.Sessions.Count(),
		Workers:     s.Registry.Count(),
		ActiveRooms: s.Rooms.Count(),
	}
}

// ListenAddrs returns the bound addresses, useful when the configured
// ports were 0.
func (s *Server) ListenAddrs() (clientAddr, workerAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientLn != nil {
		clientAddr = s.clientLn.Addr().String()
	}
	if s.workerLn != nil {
		workerAddr = s.workerLn.Addr().String()
	}
	return clientAddr, workerAddr
}

func (s *Server) acceptLoop(ln net.Listener, handle func(*connLink)) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed on Stop.
			return
		}

		link := newConnLink(conn)
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			link.Close()
			return
		}
		s.conns[link] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.dropConn(link)
			handle(link)
		}()
	}
}

func (s *Server) dropConn(link *connLink) {
	link.Close()
	s.mu.Lock()
	delete(s.conns, link)
	s.mu.Unlock()
}

// handleWorkerConn services one worker connection: registration first,
// then responses and liveness traffic until the socket dies.
func (s *Server) handleWorkerConn(link *connLink) {
	s.logger.Info("worker connection accepted", "remote", link.RemoteAddr())

	var workerID WorkerID
	registered := false

	defer func() {
		if !registered {
			return
		}
		pendingID, ok := s.Registry.RemoveIfLink(workerID, link)
		if !ok {
			return
		}
		if pendingID != "" {
			s.Tasks.FailWorker(workerID, "worker disconnected")
		}
		s.logger.Info("worker disconnected", "worker", workerID)
		s.notifier.Publish(WorkerDisconnectedEvent{WorkerID: workerID})
		s.publishStats()
	}()

	framer := protocol.NewFramer()
	buf := make([]byte, 4096)

	for {
		n, err := link.conn.Read(buf)
		if err != nil {
			return
		}

		envs, decodeErrs := framer.Push(buf[:n])
		for _, derr := range decodeErrs {
			s.logger.Warn("malformed worker message", "remote", link.RemoteAddr(), "error", derr)
			// Best-effort protocol error; correlation id unrecoverable.
			if serr := link.Send(protocol.NewErrorResponse("", "malformed message")); serr != nil {
				return
			}
		}

		for _, env := range envs {
			switch env.Type {
			case protocol.TypeWorkerRegistration:
				id, ok := s.registerWorker(link, env)
				if ok {
					workerID = id
					registered = true
				}

			case protocol.TypeAIMoveResponse, protocol.TypeValidateMoveResponse, protocol.TypeErrorResponse:
				s.Tasks.HandleResponse(env)

			case protocol.TypeHealthCheckResponse:
				s.logger.Debug("health report", "worker", workerID, "request", env.RequestID)

			case protocol.TypeHealthCheck:
				report, _ := protocol.NewEnvelope(protocol.TypeHealthCheckResponse, env.RequestID, protocol.StatusSuccess,
					protocol.HealthPayload{
						WorkerID:     string(workerID),
						Status:       "Healthy",
						IsRegistered: registered,
						IsConnected:  true,
						Timestamp:    time.Now().UTC(),
					})
				if err := link.Send(report); err != nil {
					return
				}

			case protocol.TypePing:
				pong, _ := protocol.NewEnvelope(protocol.TypePong, env.RequestID, protocol.StatusSuccess, nil)
				if err := link.Send(pong); err != nil {
					return
				}

			case protocol.TypePong:
				s.logger.Debug("pong", "worker", workerID)

			default:
				s.logger.Warn("unknown worker message type", "type", env.Type)
				if err := link.Send(protocol.NewErrorResponse(env.RequestID, "unknown message type: "+env.Type)); err != nil {
					return
				}
			}
		}
	}
}

// registerWorker admits (or re-acks) a worker registration.
func (s *Server) registerWorker(link *connLink, env protocol.Envelope) (WorkerID, bool) {
	var payload protocol.RegistrationPayload
	if err := env.DecodePayload(&payload); err != nil {
		s.logger.Warn("invalid registration payload", "remote", link.RemoteAddr(), "error", err)
		if serr := link.Send(protocol.NewErrorResponse(env.RequestID, "invalid registration payload")); serr != nil {
			return "", false
		}
		return "", false
	}
	if payload.WorkerID == "" {
		s.logger.Warn("registration without worker id", "remote", link.RemoteAddr())
		return "", false
	}

	id := WorkerID(payload.WorkerID)
	isNew := s.Registry.Register(id, link.RemoteAddr(), link)

	ack, err := protocol.NewEnvelope(
		protocol.TypeWorkerRegistrationAck,
		env.RequestID,
		protocol.StatusSuccess,
		protocol.RegistrationPayload{WorkerID: payload.WorkerID},
	)
	if err == nil {
		if serr := link.Send(ack); serr != nil {
			return "", false
		}
	}

	if isNew {
		s.logger.Info("worker registered",
			"worker", id, "endpoint", link.RemoteAddr(), "capabilities", payload.Capabilities)
		s.notifier.Publish(WorkerConnectedEvent{WorkerID: id, Endpoint: link.RemoteAddr()})
		s.publishStats()
	} else {
		s.logger.Info("duplicate registration re-acked", "worker", id)
	}
	return id, true
}

// handleClientConn services one client connection: login, matchmaking,
// then move traffic until the socket dies.
func (s *Server) handleClientConn(link *connLink) {
	clientID := s.Sessions.OnConnect(link)
	s.logger.Info("client connected", "client", clientID, "remote", link.RemoteAddr())
	s.publishStats()

	defer func() {
		if _, existed := s.Sessions.OnDisconnect(clientID); existed {
			s.Rooms.HandleClientDisconnect(clientID)
			s.logger.Info("client disconnected", "client", clientID)
			s.publishStats()
		}
	}()

	framer := protocol.NewFramer()
	buf := make([]byte, 4096)

	for {
		n, err := link.conn.Read(buf)
		if err != nil {
			return
		}

		envs, decodeErrs := framer.Push(buf[:n])
		for _, derr := range decodeErrs {
			s.logger.Warn("malformed client message", "client", clientID, "error", derr)
			if serr := link.Send(protocol.NewErrorResponse("", "malformed message")); serr != nil {
				return
			}
		}

		for _, env := range envs {
			if !s.handleClientMessage(clientID, link, env) {
				return
			}
		}
	}
}

// handleClientMessage processes one client envelope; returns false when
// the connection should be dropped.
func (s *Server) handleClientMessage(clientID ClientID, link *connLink, env protocol.Envelope) bool {
	switch env.Type {
	case protocol.TypeLoginRequest:
		var payload protocol.LoginPayload
		if err := env.DecodePayload(&payload); err != nil || payload.PlayerName == "" {
			return link.Send(protocol.NewErrorResponse(env.RequestID, "invalid login payload")) == nil
		}

		s.Sessions.Authenticate(clientID, payload.PlayerName)
		resp, _ := protocol.NewEnvelope(protocol.TypeLoginResponse, env.RequestID, protocol.StatusSuccess, protocol.LoginResult{
			ClientID:   string(clientID),
			PlayerName: payload.PlayerName,
		})
		if err := link.Send(resp); err != nil {
			return false
		}

		if payload.VsComputer {
			s.Rooms.StartVsComputer(clientID)
		} else {
			s.Rooms.Enqueue(clientID)
		}
		return true

	case protocol.TypeMoveRequest:
		var payload protocol.MovePayload
		if err := env.DecodePayload(&payload); err != nil {
			return link.Send(protocol.NewErrorResponse(env.RequestID, "invalid move payload")) == nil
		}
		// Blocks this connection's goroutine until the worker answers
		// or the task deadline passes; other connections are unaffected.
		s.Rooms.HandleMove(clientID, env.RequestID, payload.Row, payload.Col)
		return true

	case protocol.TypePing:
		pong, _ := protocol.NewEnvelope(protocol.TypePong, env.RequestID, protocol.StatusSuccess, nil)
		return link.Send(pong) == nil

	default:
		s.logger.Warn("unknown client message type", "client", clientID, "type", env.Type)
		return link.Send(protocol.NewErrorResponse(env.RequestID, "unknown message type: "+env.Type)) == nil
	}
}

// PublishLog emits a log line as an event so observers rendering a log
// tail can display it.
func (s *Server) PublishLog(line string) {
	s.notifier.Publish(LogEvent{Message: line})
}

func (s *Server) publishStats() {
	s.notifier.Publish(StatsEvent{Stats: s.Stats()})
}

// connLink is the net.Conn-backed Link used for every accepted connection.
// Writes are serialized by a mutex so concurrent senders (room broadcasts,
// task dispatch) never interleave records.
type connLink struct {
	conn      net.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConnLink(conn net.Conn) *connLink {
	return &connLink{conn: conn}
}

// Send encodes and writes one envelope.
func (l *connLink) Send(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_, err = l.conn.Write(data)
	return err
}

// Close shuts the connection down. Safe to call multiple times.
func (l *connLink) Close() {
	l.closeOnce.Do(func() {
		l.conn.Close()
	})
}

// RemoteAddr describes the peer endpoint.
func (l *connLink) RemoteAddr() string {
	return l.conn.RemoteAddr().String()
}
