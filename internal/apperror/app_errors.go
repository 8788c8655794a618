package apperror

import "errors"

var (
	ErrRoomFull    = errors.New("room is already full")
	ErrRoomGone    = errors.New("room no longer exists")
	ErrInvalidCode = errors.New("invalid room code")
	ErrNotYourTurn = errors.New("it's not your turn")
	ErrCellFlipped = errors.New("cell is already flipped")
	ErrBombLimit   = errors.New("bomb limit reached")
	ErrWrongPhase  = errors.New("action is not allowed in this phase")
	ErrLeftRoom    = errors.New("session already left the room")
)
