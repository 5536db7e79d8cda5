package game

import (
	"testing"

	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

func TestBestMoveOpensAtCenter(t *testing.T) {
	row, col := BestMove(protocol.NewBoard(), "X")
	center := protocol.BoardSize / 2
	if row != center || col != center {
		t.Errorf("opening move = (%d, %d), want center (%d, %d)", row, col, center, center)
	}
}

func TestBestMoveTakesTheWin(t *testing.T) {
	board := protocol.NewBoard()
	for c := 3; c <= 6; c++ {
		board[7][c] = "O"
	}
	// Give the opponent a threat too; the win must still be preferred.
	for c := 3; c <= 5; c++ {
		board[9][c] = "X"
	}

	row, col := BestMove(board, "O")
	v := Validate(board, row, col, "O")
	if !v.Legal {
		t.Fatalf("AI chose an illegal move (%d, %d)", row, col)
	}
	if !v.Winning {
		t.Errorf("AI ignored a winning move, played (%d, %d)", row, col)
	}
}

func TestBestMoveBlocksFourInARow(t *testing.T) {
	board := protocol.NewBoard()
	for c := 3; c <= 6; c++ {
		board[7][c] = "X"
	}

	row, col := BestMove(board, "O")
	if row != 7 || (col != 2 && col != 7) {
		t.Errorf("AI should block at (7,2) or (7,7), played (%d, %d)", row, col)
	}
}

func TestBestMoveStaysNearStones(t *testing.T) {
	board := protocol.NewBoard()
	board[0][0] = "X"

	row, col := BestMove(board, "O")
	if !IsValidMove(board, row, col) {
		t.Fatalf("AI chose an illegal move (%d, %d)", row, col)
	}
	if row > 2 || col > 2 {
		t.Errorf("AI wandered away from the action, played (%d, %d)", row, col)
	}
}

func TestBestMoveFullBoard(t *testing.T) {
	board := protocol.NewBoard()
	for r := range board {
		for c := range board[r] {
			board[r][c] = "X"
		}
	}

	row, col := BestMove(board, "O")
	if row != -1 || col != -1 {
		t.Errorf("full board should yield (-1, -1), got (%d, %d)", row, col)
	}
}

func TestOpponent(t *testing.T) {
	if Opponent("X") != "O" {
		t.Error(`Opponent("X") should be "O"`)
	}
	if Opponent("O") != "X" {
		t.Error(`Opponent("O") should be "X"`)
	}
}
