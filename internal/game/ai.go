package game

import "github.com/vovakirdan/gomoku-dispatch/internal/protocol"

// Opponent returns the symbol playing against s.
func Opponent(s string) string {
	if s == "X" {
		return "O"
	}
	return "X"
}

// BestMove picks a move for symbol using a one-ply heuristic: every empty
// cell near existing stones is scored for both attack and defense, and the
// best-scoring cell wins. On an empty board it opens at the center.
// Returns (-1, -1) when no legal move exists.
func BestMove(board protocol.Board, symbol string) (int, int) {
	if IsBoardFull(board) {
		return -1, -1
	}

	center := protocol.BoardSize / 2
	if isEmpty(board) {
		return center, center
	}

	opponent := Opponent(symbol)
	bestRow, bestCol := -1, -1
	bestScore := -1

	for r := 0; r < protocol.BoardSize; r++ {
		for c := 0; c < protocol.BoardSize; c++ {
			if board[r][c] != "" || !nearStone(board, r, c) {
				continue
			}
			// Defense is weighted just below attack so a winning move
			// is always preferred over a block.
			score := positionScore(board, r, c, symbol)*2 + positionScore(board, r, c, opponent)
			if score > bestScore {
				bestScore = score
				bestRow, bestCol = r, c
			}
		}
	}

	if bestRow == -1 {
		// Stones exist but none within reach; fall back to the first
		// free cell nearest the center.
		return nearestFree(board, center)
	}
	return bestRow, bestCol
}

func isEmpty(board protocol.Board) bool {
	for _, row := range board {
		for _, cell := range row {
			if cell != "" {
				return false
			}
		}
	}
	return true
}

// nearStone reports whether any occupied cell lies within 2 steps.
// Restricting candidates keeps the search cheap on a mostly empty grid.
func nearStone(board protocol.Board, row, col int) bool {
	for dr := -2; dr <= 2; dr++ {
		for dc := -2; dc <= 2; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			r, c := row+dr, col+dc
			if r < 0 || r >= protocol.BoardSize || c < 0 || c >= protocol.BoardSize {
				continue
			}
			if board[r][c] != "" {
				return true
			}
		}
	}
	return false
}

// positionScore rates placing symbol at (row, col) by the runs it would
// create in each of the four line directions.
func positionScore(board protocol.Board, row, col int, symbol string) int {
	dirs := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	total := 0
	for _, d := range dirs {
		run := 1
		run += countRun(board, row, col, d[0], d[1], symbol)
		run += countRun(board, row, col, -d[0], -d[1], symbol)
		open := openEnds(board, row, col, d[0], d[1], symbol)
		total += runWeight(run, open)
	}
	return total
}

// openEnds counts how many ends of the run through (row, col) in direction
// (dr, dc) are still extendable.
func openEnds(board protocol.Board, row, col, dr, dc int, symbol string) int {
	open := 0
	for _, sign := range [2]int{1, -1} {
		n := countRun(board, row, col, sign*dr, sign*dc, symbol)
		r := row + (n+1)*sign*dr
		c := col + (n+1)*sign*dc
		if r >= 0 && r < protocol.BoardSize && c >= 0 && c < protocol.BoardSize && board[r][c] == "" {
			open++
		}
	}
	return open
}

// runWeight scores a run of the given length. A run reaching WinLength
// dominates everything else; blocked runs are worth far less than open ones.
func runWeight(run, open int) int {
	if run >= WinLength {
		return 1000000
	}
	if open == 0 {
		return 0
	}
	base := 0
	switch run {
	case 4:
		base = 50000
	case 3:
		base = 5000
	case 2:
		base = 500
	default:
		base = 50
	}
	if open == 2 {
		base *= 2
	}
	return base
}

// nearestFree scans outward from the center for the first empty cell.
func nearestFree(board protocol.Board, center int) (int, int) {
	for radius := 0; radius < protocol.BoardSize; radius++ {
		for r := center - radius; r <= center+radius; r++ {
			for c := center - radius; c <= center+radius; c++ {
				if r < 0 || r >= protocol.BoardSize || c < 0 || c >= protocol.BoardSize {
					continue
				}
				if board[r][c] == "" {
					return r, c
				}
			}
		}
	}
	return -1, -1
}
