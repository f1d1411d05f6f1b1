package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/llm-chess-bot/internal/domain"
)

type libraryOracle struct{}

// NewOracle returns the corentings/chess backed oracle.
func NewOracle() Oracle {
	return libraryOracle{}
}

func (libraryOracle) LegalMoves(position string) ([]MoveInfo, error) {
	game, err := gameFromFEN(position)
	if err != nil {
		return nil, err
	}
	pos := game.Position()
	board := pos.Board()
	moves := pos.ValidMoves()
	out := make([]MoveInfo, 0, len(moves))
	for i := range moves {
		mv := &moves[i]
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		info := MoveInfo{
			SAN:       san,
			UCI:       strings.ToLower(nchess.UCINotation{}.Encode(pos, mv)),
			From:      mv.S1().String(),
			To:        mv.S2().String(),
			Mover:     kindOf(board.Piece(mv.S1()).Type()),
			Promotion: kindOf(mv.Promo()),
			Check:     mv.HasTag(nchess.Check),
			Mate:      strings.HasSuffix(san, "#"),
			Castle:    mv.HasTag(nchess.KingSideCastle) || mv.HasTag(nchess.QueenSideCastle),
		}
		switch {
		case mv.HasTag(nchess.EnPassant):
			info.Captured = Pawn
		case mv.HasTag(nchess.Capture):
			info.Captured = kindOf(board.Piece(mv.S2()).Type())
		}
		out = append(out, info)
	}
	return out, nil
}

func (libraryOracle) Apply(position, move string) (string, string, error) {
	text := normalizeMoveText(move)
	if text == "" {
		return "", "", ErrIllegalMove
	}
	game, err := gameFromFEN(position)
	if err != nil {
		return "", "", err
	}
	pos := game.Position()
	moves := pos.ValidMoves()

	wantSAN := stripAnnotations(text)
	wantUCI := strings.ToLower(text)
	for i := range moves {
		mv := &moves[i]
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		uci := strings.ToLower(nchess.UCINotation{}.Encode(pos, mv))
		if stripAnnotations(san) != wantSAN && uci != wantUCI {
			continue
		}
		if err := game.Move(mv, nil); err != nil {
			return "", "", fmt.Errorf("%w: %s", ErrIllegalMove, err)
		}
		return game.FEN(), san, nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrIllegalMove, text)
}

func (libraryOracle) Status(position string) (Status, error) {
	game, err := gameFromFEN(position)
	if err != nil {
		return "", err
	}
	if game.Outcome() != nchess.NoOutcome {
		return statusFromMethod(game.Method()), nil
	}
	// 50수 규칙은 청구형이므로 봇이 자동으로 청구한다.
	for _, m := range game.EligibleDraws() {
		if m == nchess.FiftyMoveRule {
			return StatusDrawMoveRule, nil
		}
	}
	return StatusOngoing, nil
}

func (libraryOracle) SideToMove(position string) (domain.Side, error) {
	game, err := gameFromFEN(position)
	if err != nil {
		return "", err
	}
	if game.Position().Turn() == nchess.White {
		return domain.White, nil
	}
	return domain.Black, nil
}

func gameFromFEN(position string) (*nchess.Game, error) {
	opt, err := nchess.FEN(strings.TrimSpace(position))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPosition, err)
	}
	return nchess.NewGame(opt), nil
}

func statusFromMethod(m nchess.Method) Status {
	switch m {
	case nchess.Checkmate:
		return StatusCheckmate
	case nchess.Stalemate:
		return StatusStalemate
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return StatusDrawRepetition
	case nchess.InsufficientMaterial:
		return StatusDrawMaterial
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return StatusDrawMoveRule
	default:
		return StatusOngoing
	}
}

func kindOf(pt nchess.PieceType) PieceKind {
	switch pt {
	case nchess.Pawn:
		return Pawn
	case nchess.Knight:
		return Knight
	case nchess.Bishop:
		return Bishop
	case nchess.Rook:
		return Rook
	case nchess.Queen:
		return Queen
	case nchess.King:
		return King
	default:
		return NoPiece
	}
}

// normalizeMoveText accepts zero-digit castling and stray punctuation from chat input.
func normalizeMoveText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".,;:")
	switch strings.ToUpper(stripAnnotations(s)) {
	case "0-0", "O-O":
		return "O-O"
	case "0-0-0", "O-O-O":
		return "O-O-O"
	}
	return s
}

func stripAnnotations(s string) string {
	return strings.NewReplacer("+", "", "#", "", "!", "", "?", "", "e.p.", "").Replace(strings.TrimSpace(s))
}
