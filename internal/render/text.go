// Package render draws positions for chat: a monospace text grid and a PNG board.
package render

import (
	"fmt"
	"strings"

	"github.com/park285/llm-chess-bot/internal/domain"
)

// TextGrid renders the placement field of fen as an 8x8 grid with rank and file
// labels, from the point of view of side. White pieces are upper case, black lower case.
func TextGrid(fen string, side domain.Side) (string, error) {
	rows, err := placementRows(fen)
	if err != nil {
		return "", err
	}
	files := "a b c d e f g h"
	rankOrder := []int{0, 1, 2, 3, 4, 5, 6, 7} // rows[0] is rank 8
	if side == domain.Black {
		files = "h g f e d c b a"
		rankOrder = []int{7, 6, 5, 4, 3, 2, 1, 0}
	}

	var b strings.Builder
	for _, r := range rankOrder {
		cells := rows[r]
		if side == domain.Black {
			cells = reversed(cells)
		}
		b.WriteString(fmt.Sprintf("%d ", 8-r))
		b.WriteString(strings.Join(cells, " "))
		b.WriteString("\n")
	}
	b.WriteString("  ")
	b.WriteString(files)
	return b.String(), nil
}

// placementRows expands the first FEN field into 8 rows of single-character cells.
func placementRows(fen string) ([][]string, error) {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty position")
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("position has %d ranks", len(ranks))
	}
	rows := make([][]string, 8)
	for i, rank := range ranks {
		row := make([]string, 0, 8)
		for _, ch := range rank {
			switch {
			case ch >= '1' && ch <= '8':
				for n := 0; n < int(ch-'0'); n++ {
					row = append(row, ".")
				}
			case strings.ContainsRune("pnbrqkPNBRQK", ch):
				row = append(row, string(ch))
			default:
				return nil, fmt.Errorf("unexpected %q in rank %d", ch, 8-i)
			}
		}
		if len(row) != 8 {
			return nil, fmt.Errorf("rank %d has %d squares", 8-i, len(row))
		}
		rows[i] = row
	}
	return rows, nil
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
