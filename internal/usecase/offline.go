package usecase

import (
	"errors"
	"log/slog"
	"time"

	"github.com/bombcells/bombcells-backend/internal/apperror"
	"github.com/bombcells/bombcells-backend/internal/bombcells"
	"github.com/bombcells/bombcells-backend/internal/entity"
	"github.com/bombcells/bombcells-backend/internal/scheduler"
)

// revealBuffer pads the last card-flip animation before the result shows.
const revealBuffer = 100 * time.Millisecond

// NewOfflineSession starts a local two-players-one-device match. There is no
// shared document and no skew: the session's room is the single authority
// and every transition is applied directly.
func NewOfflineSession(logger *slog.Logger, observer Observer) *Session {
	session := &Session{
		logger:        logger.With("component", "session", "mode", ModeOffline),
		sched:         scheduler.New(),
		observer:      observer,
		mode:          ModeOffline,
		room:          entity.NewOfflineRoom(),
		lastPhase:     entity.PhasePlacingBombs,
		shownPreviews: make(map[int]bool),
		flippedSeen:   make(map[int]bool),
	}

	session.emit(Event{Kind: EventStatus, Status: StatusPlaceBombs})
	session.emit(Event{Kind: EventTurn, Active: entity.RolePlayer1})

	return session
}

func (that *Session) handleOfflineClick(cell int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.left {
		return apperror.ErrLeftRoom
	}

	// One device: whoever's turn it is holds it.
	role := that.room.CurrentPlayer

	if !bombcells.IsLegalClick(that.room, role, cell, that.sched.InputLocked(), that.sched.Animating(cell)) {
		return nil
	}

	if that.room.IsPlacing() {
		return that.offlinePlacingClick(cell)
	}

	return that.offlineGuessingClick(cell)
}

func (that *Session) offlinePlacingClick(cell int) error {
	deselect := that.room.HasBomb(cell)

	armed, err := bombcells.ToggleBomb(that.room, cell)
	if errors.Is(err, apperror.ErrBombLimit) {
		return nil
	}
	if err != nil {
		return err
	}

	if deselect {
		that.emit(Event{Kind: EventPreviewHidden, Cell: cell})
		return nil
	}

	that.showBombPreview(cell)

	if !armed {
		return nil
	}

	// Input stays locked from here until 1000ms after the wave starts.
	release := that.sched.LockInput()

	that.sched.After(scheduler.PlaceToGuessDelay, func() {
		that.mu.Lock()
		defer that.mu.Unlock()

		if that.left {
			return
		}

		if err := bombcells.BeginGuessing(that.room); err != nil {
			that.logger.Error("failed to begin guessing", "error", err)
			return
		}
		that.lastPhase = entity.PhaseGuessing

		that.emit(Event{Kind: EventThemeWave, From: ThemeLight, To: ThemeDark})
		that.emit(Event{Kind: EventTurn, Active: that.room.CurrentPlayer})
		that.emit(Event{Kind: EventStatus, Status: StatusFindSafe})

		that.sched.After(scheduler.ClickUnblock, release)
	})

	return nil
}

func (that *Session) offlineGuessingClick(cell int) error {
	result, err := bombcells.ClassifyFlip(that.room, cell)
	if errors.Is(err, apperror.ErrCellFlipped) {
		return nil
	}
	if err != nil {
		return err
	}

	that.sched.MarkAnimating(cell, scheduler.CardFlip)
	that.emit(Event{Kind: EventCardFlipped, Cell: cell, IsBomb: result.Card.IsBomb})

	if result.Card.IsBomb {
		that.emit(Event{Kind: EventStatus, Status: StatusBombHit})
	}

	if !result.RoundOver {
		return nil
	}

	release := that.sched.LockInput()
	won := result.GuesserWon

	that.sched.After(scheduler.RoundEndInitial, func() {
		that.finishRoundOffline(won, release)
	})

	return nil
}

// finishRoundOffline runs the round-end choreography: reveal the remaining
// bombs, credit the point, show the result, reset the board, flip back to
// the light theme and start the next placement.
func (that *Session) finishRoundOffline(won bool, release func()) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.left {
		return
	}

	for _, bomb := range bombcells.RevealBombs(that.room) {
		that.emit(Event{Kind: EventCardFlipped, Cell: bomb, IsBomb: true})
	}

	that.sched.After(scheduler.CardFlip+revealBuffer, func() {
		that.mu.Lock()
		defer that.mu.Unlock()

		if that.left {
			return
		}

		bombcells.ApplyRoundResult(that.room, won)
		that.lastPhase = entity.PhaseRoundEnd

		that.emit(Event{Kind: EventScores, Scores: that.room.Scores})
		if won {
			that.emit(Event{Kind: EventStatus, Status: StatusRoundWon})
		} else {
			that.emit(Event{Kind: EventStatus, Status: StatusRoundLost})
		}

		that.sched.After(scheduler.RoundEndDelay, func() {
			that.mu.Lock()
			defer that.mu.Unlock()

			if that.left {
				return
			}

			that.emit(Event{Kind: EventBoardReset})

			that.sched.After(scheduler.CardFlip, func() {
				that.mu.Lock()
				defer that.mu.Unlock()

				if that.left {
					return
				}

				// The previous guesser keeps the turn and places next.
				bombcells.ResetRound(that.room)
				that.lastPhase = entity.PhasePlacingBombs

				that.emit(Event{Kind: EventThemeWave, From: ThemeDark, To: ThemeLight})

				that.sched.After(scheduler.ThemeWave+revealBuffer, func() {
					that.mu.Lock()
					defer that.mu.Unlock()

					if that.left {
						return
					}

					that.emit(Event{Kind: EventTurn, Active: that.room.CurrentPlayer})
					that.emit(Event{Kind: EventStatus, Status: StatusPlaceBombs})
					release()
				})
			})
		})
	})
}

// showBombPreview flips the picked cell face-up and schedules its auto-hide.
func (that *Session) showBombPreview(cell int) {
	that.sched.MarkAnimating(cell, scheduler.BombPreview+scheduler.CardFlip)
	that.emit(Event{Kind: EventBombPreview, Cell: cell})

	that.sched.After(scheduler.BombPreview, func() {
		that.emit(Event{Kind: EventPreviewHidden, Cell: cell})
	})
}
