package entity

import (
	"errors"
	"fmt"
)

type Phase string

const (
	PhaseWaiting      Phase = "waiting"
	PhasePlacingBombs Phase = "placing_bombs"
	PhaseGuessing     Phase = "guessing"
	PhaseRoundEnd     Phase = "round_end"
	PhaseResetting    Phase = "resetting"
)

// Role identifies a player slot; it doubles as the value of CurrentPlayer.
type Role int

const (
	RolePlayer1 Role = 1
	RolePlayer2 Role = 2
)

const (
	BoardSize      = 9
	MaxBombs       = 2
	SafePicksToWin = 3
)

var (
	ErrInvalidCell    = errors.New("invalid cell index")
	ErrInvalidPhase   = errors.New("unknown phase")
	ErrInvalidRoom    = errors.New("malformed room document")
	ErrDuplicateIndex = errors.New("duplicate cell index")
)

// PlayerSlot describes one occupied seat in a room.
type PlayerSlot struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

type Scores struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

// FlippedCard is one committed flip, keyed by cell index.
type FlippedCard struct {
	Index  int  `json:"index"`
	IsBomb bool `json:"isBomb"`
}

// Room is the shared per-match document. Online it lives in redis and both
// clients receive full copies of it on every change; offline the same struct
// is the single local authority.
type Room struct {
	Code              string        `json:"code"`
	Phase             Phase         `json:"phase"`
	Player1           *PlayerSlot   `json:"player1"`
	Player2           *PlayerSlot   `json:"player2"`
	CurrentPlayer     Role          `json:"currentPlayer"`
	Bombs             []int         `json:"bombs"`
	SelectedCells     []int         `json:"selectedCells"`
	FlippedCards      []FlippedCard `json:"flippedCards"`
	FlippedPreview    []int         `json:"flippedPreview"`
	Scores            Scores        `json:"scores"`
	ShowBombMessage   bool          `json:"showBombMessage"`
	RoundEndTriggered bool          `json:"roundEndTriggered"`
	RoundWinner       *bool         `json:"roundWinner"`
}

// NewRoom creates the initial online document: host seated, second slot
// empty, waiting for an opponent.
func NewRoom(code, hostName string) *Room {
	return &Room{
		Code:           code,
		Phase:          PhaseWaiting,
		Player1:        &PlayerSlot{Name: hostName, Connected: true},
		CurrentPlayer:  RolePlayer1,
		Bombs:          []int{},
		SelectedCells:  []int{},
		FlippedCards:   []FlippedCard{},
		FlippedPreview: []int{},
	}
}

// NewOfflineRoom creates a local room for two players sharing one device.
// There is no waiting phase: placement starts immediately.
func NewOfflineRoom() *Room {
	room := NewRoom("", "Player 1")
	room.Player2 = &PlayerSlot{Name: "Player 2", Connected: true}
	room.Phase = PhasePlacingBombs
	return room
}

func (that *Room) IsWaiting() bool   { return that.Phase == PhaseWaiting }
func (that *Room) IsPlacing() bool   { return that.Phase == PhasePlacingBombs }
func (that *Room) IsGuessing() bool  { return that.Phase == PhaseGuessing }
func (that *Room) IsRoundEnd() bool  { return that.Phase == PhaseRoundEnd }
func (that *Room) IsResetting() bool { return that.Phase == PhaseResetting }

func (that *Room) HasBomb(cell int) bool {
	for _, b := range that.Bombs {
		if b == cell {
			return true
		}
	}
	return false
}

func (that *Room) IsFlipped(cell int) bool {
	for _, card := range that.FlippedCards {
		if card.Index == cell {
			return true
		}
	}
	return false
}

func (that *Room) InPreview(cell int) bool {
	for _, p := range that.FlippedPreview {
		if p == cell {
			return true
		}
	}
	return false
}

// Slot returns the seat for the given role, or nil if it is not occupied.
func (that *Room) Slot(role Role) *PlayerSlot {
	if role == RolePlayer1 {
		return that.Player1
	}
	return that.Player2
}

// Opponent returns the other role.
func (role Role) Opponent() Role {
	if role == RolePlayer1 {
		return RolePlayer2
	}
	return RolePlayer1
}

func (role Role) Valid() bool {
	return role == RolePlayer1 || role == RolePlayer2
}

// ScoreFor returns the score of the given role.
func (that *Room) ScoreFor(role Role) int {
	if role == RolePlayer1 {
		return that.Scores.Player1
	}
	return that.Scores.Player2
}

// AddPoint credits one point to the given role.
func (that *Room) AddPoint(role Role) {
	if role == RolePlayer1 {
		that.Scores.Player1++
	} else {
		that.Scores.Player2++
	}
}

// Clone returns a deep copy. Snapshot consumers get copies so a scheduled
// continuation can never mutate a document another component is reading.
func (that *Room) Clone() *Room {
	clone := *that
	if that.Player1 != nil {
		slot := *that.Player1
		clone.Player1 = &slot
	}
	if that.Player2 != nil {
		slot := *that.Player2
		clone.Player2 = &slot
	}
	if that.RoundWinner != nil {
		winner := *that.RoundWinner
		clone.RoundWinner = &winner
	}
	clone.Bombs = append([]int{}, that.Bombs...)
	clone.SelectedCells = append([]int{}, that.SelectedCells...)
	clone.FlippedCards = append([]FlippedCard{}, that.FlippedCards...)
	clone.FlippedPreview = append([]int{}, that.FlippedPreview...)
	return &clone
}

// Validate enforces the document schema at the channel boundary. Malformed
// snapshots are rejected there instead of propagating undefined fields.
func (that *Room) Validate() error {
	switch that.Phase {
	case PhaseWaiting, PhasePlacingBombs, PhaseGuessing, PhaseRoundEnd, PhaseResetting:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPhase, that.Phase)
	}

	if that.Player1 == nil {
		return fmt.Errorf("%w: player1 slot is empty", ErrInvalidRoom)
	}

	if !that.CurrentPlayer.Valid() {
		return fmt.Errorf("%w: currentPlayer %d", ErrInvalidRoom, that.CurrentPlayer)
	}

	if len(that.Bombs) > MaxBombs {
		return fmt.Errorf("%w: %d bombs", ErrInvalidRoom, len(that.Bombs))
	}

	if len(that.SelectedCells) > SafePicksToWin {
		return fmt.Errorf("%w: %d selected cells", ErrInvalidRoom, len(that.SelectedCells))
	}

	if that.Scores.Player1 < 0 || that.Scores.Player2 < 0 {
		return fmt.Errorf("%w: negative score", ErrInvalidRoom)
	}

	if err := validateCells(that.Bombs); err != nil {
		return fmt.Errorf("bombs: %w", err)
	}
	if err := validateCells(that.SelectedCells); err != nil {
		return fmt.Errorf("selectedCells: %w", err)
	}
	if err := validateCells(that.FlippedPreview); err != nil {
		return fmt.Errorf("flippedPreview: %w", err)
	}

	seen := make(map[int]bool, len(that.FlippedCards))
	for _, card := range that.FlippedCards {
		if card.Index < 0 || card.Index >= BoardSize {
			return fmt.Errorf("flippedCards: %w: %d", ErrInvalidCell, card.Index)
		}
		if seen[card.Index] {
			return fmt.Errorf("flippedCards: %w: %d", ErrDuplicateIndex, card.Index)
		}
		seen[card.Index] = true
	}

	return nil
}

func validateCells(cells []int) error {
	seen := make(map[int]bool, len(cells))
	for _, cell := range cells {
		if cell < 0 || cell >= BoardSize {
			return fmt.Errorf("%w: %d", ErrInvalidCell, cell)
		}
		if seen[cell] {
			return fmt.Errorf("%w: %d", ErrDuplicateIndex, cell)
		}
		seen[cell] = true
	}
	return nil
}
