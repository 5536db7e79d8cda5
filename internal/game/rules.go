// Package game implements the Gomoku rule engine and the heuristic move
// search that workers execute on behalf of the dispatcher. Everything here
// is pure: no goroutines, no I/O, no shared state.
package game

import "github.com/vovakirdan/gomoku-dispatch/internal/protocol"

// WinLength is the run length required to win.
const WinLength = 5

// Validation is the outcome of checking a single candidate move.
type Validation struct {
	Legal   bool
	Winning bool
	Draw    bool
}

// IsValidMove reports whether (row, col) is inside the grid and unoccupied.
func IsValidMove(board protocol.Board, row, col int) bool {
	if row < 0 || row >= protocol.BoardSize || col < 0 || col >= protocol.BoardSize {
		return false
	}
	return board[row][col] == ""
}

// IsBoardFull reports whether no empty cell remains.
func IsBoardFull(board protocol.Board) bool {
	for _, r := range board {
		for _, cell := range r {
			if cell == "" {
				return false
			}
		}
	}
	return true
}

// CheckWin reports whether the stone at (row, col) completes a run of
// WinLength for symbol. Only lines through the given cell are examined.
func CheckWin(board protocol.Board, row, col int, symbol string) bool {
	dirs := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1
		count += countRun(board, row, col, d[0], d[1], symbol)
		count += countRun(board, row, col, -d[0], -d[1], symbol)
		if count >= WinLength {
			return true
		}
	}
	return false
}

// countRun counts consecutive stones of symbol starting one step from
// (row, col) in direction (dr, dc).
func countRun(board protocol.Board, row, col, dr, dc int, symbol string) int {
	n := 0
	r, c := row+dr, col+dc
	for r >= 0 && r < protocol.BoardSize && c >= 0 && c < protocol.BoardSize && board[r][c] == symbol {
		n++
		r += dr
		c += dc
	}
	return n
}

// Validate rule-checks a move for symbol. A legal move is checked for win
// and draw as if it had been applied; the input board is not mutated.
func Validate(board protocol.Board, row, col int, symbol string) Validation {
	if !IsValidMove(board, row, col) {
		return Validation{}
	}

	tmp := board.Clone()
	tmp[row][col] = symbol

	v := Validation{Legal: true}
	v.Winning = CheckWin(tmp, row, col, symbol)
	if !v.Winning {
		v.Draw = IsBoardFull(tmp)
	}
	return v
}
