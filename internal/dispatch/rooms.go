package dispatch

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

// roomState is the lifecycle of a match room.
type roomState int

const (
	roomActive roomState = iota
	roomCompleted
	roomAborted
)

// Seat symbols. Player 1 always opens.
const (
	symbolP1 = "X"
	symbolP2 = "O"
)

// computerName labels the AI seat in vs-computer rooms.
const computerName = "Computer"

// room is one match between two seats. player2 is empty when the second
// seat is computer-controlled.
type room struct {
	id         RoomID
	player1    ClientID
	player2    ClientID
	vsComputer bool
	startTime  time.Time

	mu    sync.Mutex
	board protocol.Board
	turn  string // symbol whose move is next
	state roomState
}

// RoomCoordinator pairs authenticated clients into rooms, forwards their
// moves through the task dispatcher, and tears rooms down on completion
// or disconnect.
type RoomCoordinator struct {
	sessions *SessionManager
	tasks    *TaskDispatcher
	notifier *Notifier
	logger   *log.Logger

	mu         sync.RWMutex
	saver      ResultSaver // optional, may be nil
	rooms      map[RoomID]*room
	clientRoom map[ClientID]RoomID
	queue      []ClientID // FCFS matchmaking queue
}

// NewRoomCoordinator wires a coordinator over the session manager and
// task dispatcher.
func NewRoomCoordinator(sessions *SessionManager, tasks *TaskDispatcher, notifier *Notifier, logger *log.Logger) *RoomCoordinator {
	return &RoomCoordinator{
		sessions:   sessions,
		tasks:      tasks,
		notifier:   notifier,
		logger:     logger,
		rooms:      make(map[RoomID]*room),
		clientRoom: make(map[ClientID]RoomID),
	}
}

// SetResultSaver sets the optional match result saver. Safe to call at
// any point, including after the coordinator started handling moves.
func (c *RoomCoordinator) SetResultSaver(saver ResultSaver) {
	c.mu.Lock()
	c.saver = saver
	c.mu.Unlock()
}

// Enqueue places an authenticated, room-less client into the matchmaking
// queue. Pairing is first-come-first-served: as soon as two clients wait,
// a room forms.
func (c *RoomCoordinator) Enqueue(clientID ClientID) {
	if !c.sessions.IsAuthenticated(clientID) {
		c.logger.Warn("refusing to enqueue unauthenticated client", "client", clientID)
		return
	}

	c.mu.Lock()
	if _, inRoom := c.clientRoom[clientID]; inRoom {
		c.mu.Unlock()
		return
	}
	for _, queued := range c.queue {
		if queued == clientID {
			c.mu.Unlock()
			return
		}
	}

	if len(c.queue) == 0 {
		c.queue = append(c.queue, clientID)
		c.mu.Unlock()
		return
	}

	partner := c.queue[0]
	c.queue = c.queue[1:]
	r := c.createRoomLocked(partner, clientID, false)
	c.mu.Unlock()

	c.announceRoom(r)
}

// StartVsComputer creates a room with a computer-controlled second seat.
func (c *RoomCoordinator) StartVsComputer(clientID ClientID) {
	if !c.sessions.IsAuthenticated(clientID) {
		c.logger.Warn("refusing vs-computer room for unauthenticated client", "client", clientID)
		return
	}

	c.mu.Lock()
	if _, inRoom := c.clientRoom[clientID]; inRoom {
		c.mu.Unlock()
		return
	}
	r := c.createRoomLocked(clientID, "", true)
	c.mu.Unlock()

	c.announceRoom(r)
}

// createRoomLocked builds and registers a room. Caller holds c.mu.
func (c *RoomCoordinator) createRoomLocked(p1, p2 ClientID, vsComputer bool) *room {
	r := &room{
		id:         RoomID("room-" + uuid.NewString()[:8]),
		player1:    p1,
		player2:    p2,
		vsComputer: vsComputer,
		startTime:  time.Now(),
		board:      protocol.NewBoard(),
		turn:       symbolP1,
		state:      roomActive,
	}

	c.rooms[r.id] = r
	c.clientRoom[p1] = r.id
	c.sessions.SetRoom(p1, r.id)
	if p2 != "" {
		c.clientRoom[p2] = r.id
		c.sessions.SetRoom(p2, r.id)
	}
	return r
}

// announceRoom notifies both seats that their match is ready.
func (c *RoomCoordinator) announceRoom(r *room) {
	p1Name := c.sessions.PlayerName(r.player1)
	p2Name := computerName
	if !r.vsComputer {
		p2Name = c.sessions.PlayerName(r.player2)
	}

	c.logger.Info("room created", "room", r.id, "player1", p1Name, "player2", p2Name)

	c.sendToClient(r.player1, protocol.TypeMatchFound, "", protocol.MatchFoundPayload{
		RoomID:       string(r.id),
		OpponentName: p2Name,
		YourSymbol:   symbolP1,
		YourTurn:     true,
	})
	if !r.vsComputer {
		c.sendToClient(r.player2, protocol.TypeMatchFound, "", protocol.MatchFoundPayload{
			RoomID:       string(r.id),
			OpponentName: p1Name,
			YourSymbol:   symbolP2,
			YourTurn:     false,
		})
	}

	c.notifier.Publish(RoomUpdatedEvent{})
}

// HandleMove processes one move submission from a client. The move is
// rule-checked by a worker before any room state changes; an illegal move
// is rejected without mutating board or turn.
func (c *RoomCoordinator) HandleMove(clientID ClientID, requestID string, row, col int) {
	r := c.roomOf(clientID)
	if r == nil {
		c.rejectMove(clientID, requestID, "you are not in a room")
		return
	}

	r.mu.Lock()
	if r.state != roomActive {
		r.mu.Unlock()
		c.rejectMove(clientID, requestID, "the match is over")
		return
	}
	symbol := r.symbolOf(clientID)
	if symbol != r.turn {
		r.mu.Unlock()
		c.rejectMove(clientID, requestID, "not your turn")
		return
	}
	boardCopy := r.board.Clone()
	r.mu.Unlock()

	// Rule check runs on a worker; no locks held across the wait.
	verdict, status, errText := c.tasks.SubmitValidateMove(boardCopy, row, col, symbol)
	switch status {
	case TaskUnavailable:
		c.rejectMove(clientID, requestID, "no worker available, try again")
		return
	case TaskFailed:
		c.rejectMove(clientID, requestID, "validation failed: "+errText)
		return
	}
	if !verdict.IsValid {
		msg := verdict.ErrorMessage
		if msg == "" {
			msg = "illegal move"
		}
		c.rejectMove(clientID, requestID, msg)
		return
	}

	applied, finished := c.applyMove(r, symbol, row, col, verdict)
	if !applied {
		c.rejectMove(clientID, requestID, "move could not be applied")
		return
	}

	c.sendToClient(clientID, protocol.TypeMoveResponse, requestID, protocol.MoveResult{Accepted: true})
	c.broadcastBoard(r, row, col, symbol)

	if finished {
		c.finishRoom(r, symbol, verdict)
		return
	}

	if r.vsComputer {
		c.playComputerTurn(r)
	}
}

// applyMove commits a validated move. Returns applied=false when the room
// was torn down between validation and commit (opponent disconnect), or
// when the verdict does not hold up against the room's own board.
func (c *RoomCoordinator) applyMove(r *room, symbol string, row, col int, verdict protocol.ValidateMoveResult) (applied, finished bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != roomActive || r.turn != symbol {
		return false, false
	}

	// The verdict arrived over the wire from an unauthenticated peer;
	// never index the board on its word alone.
	if !inBounds(row, col) || r.board[row][col] != "" {
		c.logger.Warn("discarding approved but unusable move",
			"room", r.id, "row", row, "col", col, "symbol", symbol)
		return false, false
	}

	r.board[row][col] = symbol
	if verdict.IsWinning || verdict.IsDraw {
		r.state = roomCompleted
		return true, true
	}
	r.turn = otherSymbol(symbol)
	return true, false
}

// playComputerTurn obtains and applies the AI counter-move. The AI move is
// validated exactly as a human move would be. One retry covers a single
// worker failure; a second failure aborts the room.
func (c *RoomCoordinator) playComputerTurn(r *room) {
	r.mu.Lock()
	if r.state != roomActive || r.turn != symbolP2 {
		r.mu.Unlock()
		return
	}
	boardCopy := r.board.Clone()
	r.mu.Unlock()

	row, col, ok := c.computeAIMove(boardCopy)
	if !ok {
		c.abortRoomWithError(r, "AI move computation failed")
		return
	}

	verdict, status, errText := c.tasks.SubmitValidateMove(boardCopy, row, col, symbolP2)
	if status != TaskOK || !verdict.IsValid {
		c.logger.Error("AI produced an unusable move",
			"room", r.id, "row", row, "col", col, "status", status, "error", errText)
		c.abortRoomWithError(r, "AI produced an unusable move")
		return
	}

	applied, finished := c.applyMove(r, symbolP2, row, col, verdict)
	if !applied {
		// Benign when the room was torn down concurrently; otherwise the
		// worker approved a move the board cannot take.
		r.mu.Lock()
		active := r.state == roomActive
		r.mu.Unlock()
		if active {
			c.abortRoomWithError(r, "AI produced an unusable move")
		}
		return
	}

	c.broadcastBoard(r, row, col, symbolP2)
	if finished {
		c.finishRoom(r, symbolP2, verdict)
	}
}

// computeAIMove submits the search task, retrying once so a single worker
// loss does not kill the match.
func (c *RoomCoordinator) computeAIMove(board protocol.Board) (row, col int, ok bool) {
	for attempt := 0; attempt < 2; attempt++ {
		var status TaskStatus
		var errText string
		row, col, status, errText = c.tasks.SubmitAIMove(board, symbolP2)
		if status == TaskOK {
			return row, col, true
		}
		c.logger.Warn("AI move submission failed", "attempt", attempt+1, "status", status, "error", errText)
	}
	return 0, 0, false
}

// broadcastBoard sends the updated board to both human seats.
func (c *RoomCoordinator) broadcastBoard(r *room, row, col int, by string) {
	r.mu.Lock()
	boardCopy := r.board.Clone()
	next := r.turn
	r.mu.Unlock()

	c.sendToClient(r.player1, protocol.TypeBoardUpdate, "", protocol.BoardUpdatePayload{
		Board: boardCopy, LastRow: row, LastCol: col, LastBy: by,
		NextTurn: next, YourTurn: next == symbolP1,
	})
	if !r.vsComputer {
		c.sendToClient(r.player2, protocol.TypeBoardUpdate, "", protocol.BoardUpdatePayload{
			Board: boardCopy, LastRow: row, LastCol: col, LastBy: by,
			NextTurn: next, YourTurn: next == symbolP2,
		})
	}
}

// finishRoom completes a room after a winning or drawing move and
// notifies both seats of the outcome.
func (c *RoomCoordinator) finishRoom(r *room, winningSymbol string, verdict protocol.ValidateMoveResult) {
	winnerName := ""
	endReason := "draw"
	if verdict.IsWinning {
		endReason = "win"
		winnerName = c.seatName(r, winningSymbol)
	}

	c.removeRoom(r)

	for _, seat := range r.humanSeats() {
		outcome := protocol.OutcomeDraw
		if verdict.IsWinning {
			if r.symbolOf(seat) == winningSymbol {
				outcome = protocol.OutcomeWin
			} else {
				outcome = protocol.OutcomeLoss
			}
		}
		c.sendToClient(seat, protocol.TypeGameOver, "", protocol.GameOverPayload{
			RoomID:  string(r.id),
			Outcome: outcome,
			Winner:  winnerName,
		})
	}

	c.logger.Info("room finished", "room", r.id, "reason", endReason, "winner", winnerName)
	c.persistResult(r, winnerName, endReason)
	c.notifier.Publish(RoomUpdatedEvent{})
}

// HandleClientDisconnect tears down whatever the client was part of: its
// queue slot, or its room, with the counterpart notified of opponent loss.
func (c *RoomCoordinator) HandleClientDisconnect(clientID ClientID) {
	c.mu.Lock()
	for i, queued := range c.queue {
		if queued == clientID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	roomID, inRoom := c.clientRoom[clientID]
	var r *room
	if inRoom {
		r = c.rooms[roomID]
	}
	c.mu.Unlock()

	if r == nil {
		return
	}

	r.mu.Lock()
	if r.state != roomActive {
		r.mu.Unlock()
		return
	}
	r.state = roomAborted
	r.mu.Unlock()

	c.removeRoom(r)

	for _, seat := range r.humanSeats() {
		if seat == clientID {
			continue
		}
		c.sendToClient(seat, protocol.TypeGameOver, "", protocol.GameOverPayload{
			RoomID:  string(r.id),
			Outcome: protocol.OutcomeOpponentDisconnected,
		})
	}

	c.logger.Info("room aborted, player disconnected", "room", r.id, "client", clientID)
	c.persistResult(r, "", "disconnect")
	c.notifier.Publish(RoomUpdatedEvent{})
}

// abortRoomWithError tears a room down after an unrecoverable dispatch
// failure, notifying every human seat.
func (c *RoomCoordinator) abortRoomWithError(r *room, message string) {
	r.mu.Lock()
	if r.state != roomActive {
		r.mu.Unlock()
		return
	}
	r.state = roomAborted
	r.mu.Unlock()

	c.removeRoom(r)

	for _, seat := range r.humanSeats() {
		if link, ok := c.sessions.Link(seat); ok {
			if err := link.Send(protocol.NewErrorResponse("", message)); err != nil {
				c.logger.Warn("cannot send abort notice", "client", seat, "error", err)
			}
		}
		c.sendToClient(seat, protocol.TypeGameOver, "", protocol.GameOverPayload{
			RoomID:  string(r.id),
			Outcome: protocol.OutcomeAborted,
		})
	}

	c.logger.Error("room aborted", "room", r.id, "reason", message)
	c.persistResult(r, "", "error")
	c.notifier.Publish(RoomUpdatedEvent{})
}

// ActiveRooms returns a snapshot of every live room.
func (c *RoomCoordinator) ActiveRooms() []RoomSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]RoomSnapshot, 0, len(c.rooms))
	for _, r := range c.rooms {
		p2Name := computerName
		if !r.vsComputer {
			p2Name = c.sessions.PlayerName(r.player2)
		}
		out = append(out, RoomSnapshot{
			ID:          r.id,
			Player1Name: c.sessions.PlayerName(r.player1),
			Player2Name: p2Name,
			StartTime:   r.startTime,
		})
	}
	return out
}

// Count returns the number of active rooms.
func (c *RoomCoordinator) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms)
}

// QueueLength returns the number of clients waiting for a match.
func (c *RoomCoordinator) QueueLength() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.queue)
}

// Clear drops every room and queue entry without notifications.
func (c *RoomCoordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = make(map[RoomID]*room)
	c.clientRoom = make(map[ClientID]RoomID)
	c.queue = nil
}

// removeRoom unlinks a room from the active set and its members.
func (c *RoomCoordinator) removeRoom(r *room) {
	c.mu.Lock()
	delete(c.rooms, r.id)
	delete(c.clientRoom, r.player1)
	c.sessions.SetRoom(r.player1, "")
	if r.player2 != "" {
		delete(c.clientRoom, r.player2)
		c.sessions.SetRoom(r.player2, "")
	}
	c.mu.Unlock()
}

// persistResult saves the outcome best-effort; a storage failure never
// affects match handling.
func (c *RoomCoordinator) persistResult(r *room, winnerName, endReason string) {
	c.mu.RLock()
	saver := c.saver
	c.mu.RUnlock()
	if saver == nil {
		return
	}

	p2Name := computerName
	if !r.vsComputer {
		p2Name = c.sessions.PlayerName(r.player2)
	}
	data := MatchResultData{
		RoomID:       string(r.id),
		Player1Name:  c.sessions.PlayerName(r.player1),
		Player2Name:  p2Name,
		WinnerName:   winnerName,
		EndReason:    endReason,
		DurationSecs: int(time.Since(r.startTime).Seconds()),
	}
	go func() {
		if err := saver.SaveResult(data); err != nil {
			c.logger.Warn("cannot persist match result", "room", data.RoomID, "error", err)
		}
	}()
}

func (c *RoomCoordinator) roomOf(clientID ClientID) *room {
	c.mu.RLock()
	defer c.mu.RUnlock()

	roomID, ok := c.clientRoom[clientID]
	if !ok {
		return nil
	}
	return c.rooms[roomID]
}

func (c *RoomCoordinator) rejectMove(clientID ClientID, requestID, message string) {
	c.sendToClient(clientID, protocol.TypeMoveResponse, requestID, protocol.MoveResult{
		Accepted:     false,
		ErrorMessage: message,
	})
}

// sendToClient delivers one envelope to a client, quietly dropping it when
// the session is already gone.
func (c *RoomCoordinator) sendToClient(clientID ClientID, msgType, requestID string, payload any) {
	link, ok := c.sessions.Link(clientID)
	if !ok {
		return
	}

	status := protocol.StatusSuccess
	if msgType == protocol.TypeErrorResponse {
		status = protocol.StatusError
	}
	env, err := protocol.NewEnvelope(msgType, requestID, status, payload)
	if err != nil {
		c.logger.Error("cannot build client message", "type", msgType, "error", err)
		return
	}
	if err := link.Send(env); err != nil {
		c.logger.Warn("cannot send to client", "client", clientID, "type", msgType, "error", err)
	}
}

func (r *room) symbolOf(clientID ClientID) string {
	if clientID == r.player1 {
		return symbolP1
	}
	return symbolP2
}

// seatName resolves a symbol to a display name. Only valid while the
// coordinator can still look the players up.
func (c *RoomCoordinator) seatName(r *room, symbol string) string {
	if symbol == symbolP1 {
		return c.sessions.PlayerName(r.player1)
	}
	if r.vsComputer {
		return computerName
	}
	return c.sessions.PlayerName(r.player2)
}

// humanSeats lists the client ids occupying human seats.
func (r *room) humanSeats() []ClientID {
	if r.vsComputer {
		return []ClientID{r.player1}
	}
	return []ClientID{r.player1, r.player2}
}

func otherSymbol(s string) string {
	if s == symbolP1 {
		return symbolP2
	}
	return symbolP1
}

func inBounds(row, col int) bool {
	return row >= 0 && row < protocol.BoardSize && col >= 0 && col < protocol.BoardSize
}
