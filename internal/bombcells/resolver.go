package bombcells

import "github.com/bombcells/bombcells-backend/internal/entity"

// IsLegalClick decides whether a click may mutate any state at all. It is a
// pure predicate with no side effects; every click passes through it before
// a mutation is attempted, in both play modes.
//
// A click is legal when the phase accepts input, it is the clicking role's
// turn, the cell exists and is not already committed, no animation currently
// owns the cell, and the global input lock is released.
func IsLegalClick(room *entity.Room, role entity.Role, cell int, inputLocked, cellAnimating bool) bool {
	if room == nil || inputLocked || cellAnimating {
		return false
	}

	if !room.IsPlacing() && !room.IsGuessing() {
		return false
	}

	if room.CurrentPlayer != role {
		return false
	}

	if cell < 0 || cell >= entity.BoardSize {
		return false
	}

	return !room.IsFlipped(cell)
}
