package usecase

import "github.com/bombcells/bombcells-backend/internal/entity"

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Status codes the renderer turns into status-line text. The session decides
// what to say; how it looks is not its business.
type Status string

const (
	StatusWaitingOpponent  Status = "waiting_opponent"
	StatusPlaceBombs       Status = "place_bombs"
	StatusOpponentPlacing  Status = "opponent_placing"
	StatusFindSafe         Status = "find_safe"
	StatusOpponentGuessing Status = "opponent_guessing"
	StatusBombHit          Status = "bomb_hit"
	StatusRoundWon         Status = "round_won"
	StatusRoundLost        Status = "round_lost"
	StatusOpponentLeft     Status = "opponent_left"
	StatusWinner           Status = "winner"
)

type EventKind string

const (
	EventStatus        EventKind = "status"
	EventThemeWave     EventKind = "theme_wave"
	EventCardFlipped   EventKind = "card_flipped"
	EventBombPreview   EventKind = "bomb_preview"
	EventPreviewHidden EventKind = "preview_hidden"
	EventBoardReset    EventKind = "board_reset"
	EventScores        EventKind = "scores"
	EventTurn          EventKind = "turn"
	EventRoomClosed    EventKind = "room_closed"
	EventLeft          EventKind = "left"
)

// Event is one state-machine transition the renderer should reflect. The
// renderer subscribes to these and never reads shared mutable fields.
type Event struct {
	Kind   EventKind     `json:"kind"`
	Cell   int           `json:"cell,omitempty"`
	IsBomb bool          `json:"isBomb,omitempty"`
	From   Theme         `json:"from,omitempty"`
	To     Theme         `json:"to,omitempty"`
	Status Status        `json:"status,omitempty"`
	Scores entity.Scores `json:"scores,omitempty"`
	Active entity.Role   `json:"active,omitempty"`
	Winner string        `json:"winner,omitempty"`
}

// Observer receives transition events. Implementations must not call back
// into the session from Notify.
type Observer interface {
	Notify(event Event)
}
