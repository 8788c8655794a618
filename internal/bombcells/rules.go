package bombcells

import (
	"fmt"

	"github.com/bombcells/bombcells-backend/internal/apperror"
	"github.com/bombcells/bombcells-backend/internal/entity"
)

// FlipResult reports how a guessing-phase click was classified. A flip is
// classified exactly once, immediately, by membership in the bomb set, so a
// bomb hit and a third safe pick are mutually exclusive per click.
type FlipResult struct {
	Card       entity.FlippedCard
	RoundOver  bool
	GuesserWon bool
}

// ToggleBomb applies a placement click. Re-selecting an already-picked bomb
// is a deselect, not a no-op. Returns true when the click landed the second
// bomb and placement is complete.
func ToggleBomb(room *entity.Room, cell int) (bool, error) {
	if !room.IsPlacing() {
		return false, fmt.Errorf("%w: %s", apperror.ErrWrongPhase, room.Phase)
	}

	if cell < 0 || cell >= entity.BoardSize {
		return false, fmt.Errorf("%w: cell %d", entity.ErrInvalidCell, cell)
	}

	if room.HasBomb(cell) {
		room.Bombs = removeCell(room.Bombs, cell)
		room.FlippedPreview = removeCell(room.FlippedPreview, cell)
		return false, nil
	}

	if len(room.Bombs) >= entity.MaxBombs {
		return false, apperror.ErrBombLimit
	}

	room.Bombs = append(room.Bombs, cell)
	room.FlippedPreview = append(room.FlippedPreview, cell)

	return len(room.Bombs) == entity.MaxBombs, nil
}

// BeginGuessing performs the placing→guessing edge: the placer becomes
// inactive and the opponent becomes the guesser. This is the only point in a
// round where the active player swaps; the later reset keeps it, which is
// what makes roles alternate across rounds.
func BeginGuessing(room *entity.Room) error {
	if !room.IsPlacing() {
		return fmt.Errorf("%w: %s", apperror.ErrWrongPhase, room.Phase)
	}

	room.CurrentPlayer = room.CurrentPlayer.Opponent()
	room.Phase = entity.PhaseGuessing
	room.FlippedCards = []entity.FlippedCard{}
	room.FlippedPreview = []int{}

	return nil
}

// ClassifyFlip applies a guessing-phase click: records the flip and decides
// whether it ends the round, either by hitting a bomb or by being the third
// safe pick. Both outcomes are terminal for the round the instant they occur.
func ClassifyFlip(room *entity.Room, cell int) (FlipResult, error) {
	if !room.IsGuessing() {
		return FlipResult{}, fmt.Errorf("%w: %s", apperror.ErrWrongPhase, room.Phase)
	}

	if cell < 0 || cell >= entity.BoardSize {
		return FlipResult{}, fmt.Errorf("%w: cell %d", entity.ErrInvalidCell, cell)
	}

	if room.IsFlipped(cell) {
		return FlipResult{}, apperror.ErrCellFlipped
	}

	card := entity.FlippedCard{Index: cell, IsBomb: room.HasBomb(cell)}
	room.FlippedCards = append(room.FlippedCards, card)

	result := FlipResult{Card: card}

	if card.IsBomb {
		result.RoundOver = true
		room.ShowBombMessage = true
	} else {
		room.SelectedCells = append(room.SelectedCells, cell)
		if len(room.SelectedCells) == entity.SafePicksToWin {
			result.RoundOver = true
			result.GuesserWon = true
		}
	}

	if result.RoundOver {
		won := result.GuesserWon
		room.RoundEndTriggered = true
		room.RoundWinner = &won
	}

	return result, nil
}

// RevealBombs appends flip records for every bomb that was not flipped during
// guessing, so both boards end the round showing the full bomb layout.
// Returns the cells that were newly revealed.
func RevealBombs(room *entity.Room) []int {
	var revealed []int
	for _, bomb := range room.Bombs {
		if !room.IsFlipped(bomb) {
			room.FlippedCards = append(room.FlippedCards, entity.FlippedCard{Index: bomb, IsBomb: true})
			revealed = append(revealed, bomb)
		}
	}
	return revealed
}

// ApplyRoundResult credits the point and moves the room to round_end. The
// guesser scores on a win; the placer scores when the guesser hit a bomb.
func ApplyRoundResult(room *entity.Room, guesserWon bool) {
	if guesserWon {
		room.AddPoint(room.CurrentPlayer)
	} else {
		room.AddPoint(room.CurrentPlayer.Opponent())
	}

	room.Phase = entity.PhaseRoundEnd
	room.ShowBombMessage = false
}

// ResetRound prepares the next round. The active player is deliberately not
// swapped here: the previous guesser places next.
func ResetRound(room *entity.Room) {
	room.Phase = entity.PhasePlacingBombs
	room.Bombs = []int{}
	room.SelectedCells = []int{}
	room.FlippedCards = []entity.FlippedCard{}
	room.FlippedPreview = []int{}
	room.RoundEndTriggered = false
	room.RoundWinner = nil
	room.ShowBombMessage = false
}

func removeCell(cells []int, cell int) []int {
	filtered := make([]int, 0, len(cells))
	for _, c := range cells {
		if c != cell {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
