package fallback

import (
	"math/rand"
	"testing"

	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/rules"
)

func TestScore(t *testing.T) {
	cases := []struct {
		name string
		m    rules.MoveInfo
		want int
	}{
		{"quiet pawn", rules.MoveInfo{Mover: rules.Pawn, To: "a3"}, 0},
		{"center pawn", rules.MoveInfo{Mover: rules.Pawn, To: "e4"}, 15},
		{"knight out", rules.MoveInfo{Mover: rules.Knight, To: "f3"}, 10},
		{"queen takes rook with mate", rules.MoveInfo{Mover: rules.Queen, To: "d8", Captured: rules.Rook, Check: true, Mate: true}, 1000 + 50 + 50 + 10},
		{"castle", rules.MoveInfo{Mover: rules.King, To: "g1", Castle: true}, 20},
		{"king step", rules.MoveInfo{Mover: rules.King, To: "f1"}, 0},
		{"pawn takes queen", rules.MoveInfo{Mover: rules.Pawn, To: "c5", Captured: rules.Queen}, 90},
	}
	for _, tc := range cases {
		if got := Score(tc.m); got != tc.want {
			t.Errorf("%s: Score = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestWeightedTieKeepsFirst(t *testing.T) {
	moves := []rules.MoveInfo{
		{SAN: "Nc3", Mover: rules.Knight, To: "c3"},
		{SAN: "Nf3", Mover: rules.Knight, To: "f3"},
		{SAN: "a3", Mover: rules.Pawn, To: "a3"},
	}
	got, ok := Weighted{}.Choose(moves)
	if !ok || got.SAN != "Nc3" {
		t.Fatalf("Choose = %q,%v want Nc3", got.SAN, ok)
	}
	if _, ok := (Weighted{}).Choose(nil); ok {
		t.Fatalf("empty input should report false")
	}
}

func TestWeightedPrefersMateOverCaptures(t *testing.T) {
	oracle := rules.NewOracle()
	// Qxd8# is mate, Nxf7 only wins a pawn.
	moves, err := oracle.LegalMoves("3r2k1/5ppp/8/4N3/8/8/5PPP/3Q2K1 w - - 0 1")
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	got, _ := Weighted{}.Choose(moves)
	if got.SAN != "Qxd8#" {
		t.Fatalf("Choose = %s, want Qxd8#", got.SAN)
	}
}

func TestWeightedDeterministic(t *testing.T) {
	oracle := rules.NewOracle()
	moves, err := oracle.LegalMoves(domain.StartFEN)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	first, _ := Weighted{}.Choose(moves)
	for i := 0; i < 20; i++ {
		again, _ := Weighted{}.Choose(moves)
		if again.SAN != first.SAN {
			t.Fatalf("run %d chose %s, first run chose %s", i, again.SAN, first.SAN)
		}
	}
}

func TestTieredTierOrder(t *testing.T) {
	tiered := NewTiered(rand.New(rand.NewSource(1)))
	cases := []struct {
		name  string
		moves []rules.MoveInfo
		want  map[string]bool
	}{
		{"mate first", []rules.MoveInfo{
			{SAN: "Qxd8#", Mover: rules.Queen, Captured: rules.Rook, Check: true, Mate: true},
			{SAN: "Rd1+", Mover: rules.Rook, Check: true},
		}, map[string]bool{"Qxd8#": true}},
		{"high value capture before pawn capture", []rules.MoveInfo{
			{SAN: "exd5", Mover: rules.Pawn, Captured: rules.Pawn},
			{SAN: "Nxc6", Mover: rules.Knight, Captured: rules.Bishop},
			{SAN: "Nf3", Mover: rules.Knight},
		}, map[string]bool{"Nxc6": true}},
		{"development before center pawn", []rules.MoveInfo{
			{SAN: "e4", Mover: rules.Pawn, To: "e4"},
			{SAN: "Nf3", Mover: rules.Knight, To: "f3"},
			{SAN: "Nc3", Mover: rules.Knight, To: "c3"},
		}, map[string]bool{"Nf3": true, "Nc3": true}},
		{"center pawn before other pawns", []rules.MoveInfo{
			{SAN: "a3", Mover: rules.Pawn, To: "a3"},
			{SAN: "d4", Mover: rules.Pawn, To: "d4"},
			{SAN: "Kf1", Mover: rules.King, To: "f1"},
		}, map[string]bool{"d4": true}},
		{"anything", []rules.MoveInfo{
			{SAN: "Kh1", Mover: rules.King, To: "h1"},
		}, map[string]bool{"Kh1": true}},
	}
	for _, tc := range cases {
		for i := 0; i < 10; i++ {
			got, ok := tiered.Choose(tc.moves)
			if !ok || !tc.want[got.SAN] {
				t.Fatalf("%s: chose %q", tc.name, got.SAN)
			}
		}
	}
}

func TestParseMode(t *testing.T) {
	for raw, want := range map[string]string{"": ModeScored, "Scored": ModeScored, "tiered": ModeTiered} {
		got, err := ParseMode(raw)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q,%v", raw, got, err)
		}
	}
	if _, err := ParseMode("minimax"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if New(ModeTiered, nil).Name() != ModeTiered || New(ModeScored, nil).Name() != ModeScored {
		t.Fatalf("New picked the wrong strategy")
	}
}
