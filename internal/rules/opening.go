package rules

import (
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Opening names the ECO opening reached by a SAN move list from the initial position.
// Empty strings mean no book line matched or the list does not replay.
func Opening(sans []string) (code, title string) {
	if len(sans) == 0 {
		return "", ""
	}
	game := nchess.NewGame()
	for _, san := range sans {
		if err := game.PushNotationMove(san, nchess.AlgebraicNotation{}, nil); err != nil {
			return "", ""
		}
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	if ecoBook == nil {
		return "", ""
	}
	if eco := ecoBook.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
