package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bombcells/bombcells-backend/internal/apperror"
	"github.com/bombcells/bombcells-backend/internal/bombcells"
	"github.com/bombcells/bombcells-backend/internal/entity"
	"github.com/bombcells/bombcells-backend/internal/scheduler"
)

// Opponent-left choreography: announce, then name the winner, then return to
// the lobby. The disconnect signal is best-effort and possibly late, so this
// is deliberately unhurried.
const (
	disconnectAnnounceDelay = 2 * time.Second
	disconnectLeaveDelay    = 3 * time.Second
)

// NewOnlineSession prepares a session that observes a shared room document.
// It does nothing until CreateRoom or JoinRoom binds it to a room.
func NewOnlineSession(logger *slog.Logger, channel roomChannel, observer Observer) *Session {
	return &Session{
		logger:        logger.With("component", "session", "mode", ModeOnline),
		sched:         scheduler.New(),
		observer:      observer,
		channel:       channel,
		mode:          ModeOnline,
		shownPreviews: make(map[int]bool),
		flippedSeen:   make(map[int]bool),
	}
}

// CreateRoom creates the shared document, takes the player1 slot and starts
// observing. connCtx is the lifetime of the client's connection: if it ends
// before an explicit leave, the disconnect signal fires.
func (that *Session) CreateRoom(ctx, connCtx context.Context, name string) (string, error) {
	room, err := that.channel.Create(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to create room: %w", err)
	}

	if err := that.bindRoom(ctx, connCtx, room, entity.RolePlayer1); err != nil {
		return "", err
	}

	that.emit(Event{Kind: EventStatus, Status: StatusWaitingOpponent})

	return room.Code, nil
}

// JoinRoom atomically claims the player2 slot, which also advances the room
// to placing_bombs, then starts observing.
func (that *Session) JoinRoom(ctx, connCtx context.Context, code, name string) error {
	room, err := that.channel.Join(ctx, code, name)
	if err != nil {
		return err
	}

	return that.bindRoom(ctx, connCtx, room, entity.RolePlayer2)
}

func (that *Session) bindRoom(ctx, connCtx context.Context, room *entity.Room, role entity.Role) error {
	that.mu.Lock()
	that.room = room
	that.role = role
	that.code = room.Code
	that.lastPhase = room.Phase
	that.cancelDisconnect = that.channel.RegisterDisconnect(connCtx, room.Code, role)
	that.mu.Unlock()

	detach, err := that.channel.Subscribe(ctx, room.Code, that.onSnapshot)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	that.mu.Lock()
	that.detach = detach
	that.mu.Unlock()

	return nil
}

// onSnapshot is the online phase state machine. Each client runs it
// independently against eventually-delivered full snapshots; both must
// derive the same effects without assuming they observe a change at the
// same time as the other side.
func (that *Session) onSnapshot(snapshot *entity.Room) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.left {
		return
	}

	if snapshot == nil {
		that.emit(Event{Kind: EventRoomClosed})
		go that.Leave(context.Background())
		return
	}

	prevScores := entity.Scores{}
	if that.room != nil {
		prevScores = that.room.Scores
	}

	that.room = snapshot

	if opponent := snapshot.Slot(that.role.Opponent()); opponent != nil && !opponent.Connected {
		that.handleOpponentDisconnect(snapshot)
		return
	}

	// An explicit quiescent state: both observers clear stale visuals here
	// before the next placement starts.
	if snapshot.IsResetting() {
		that.emit(Event{Kind: EventBoardReset})
		that.shownPreviews = make(map[int]bool)
		that.flippedSeen = make(map[int]bool)
		that.lastPhase = entity.PhaseResetting
		return
	}

	if snapshot.ShowBombMessage && snapshot.IsGuessing() {
		that.emit(Event{Kind: EventStatus, Status: StatusBombHit})
	}

	// Round end is signaled through the document so both clients see it,
	// and consumed exactly once per round on each.
	if snapshot.RoundEndTriggered && snapshot.IsGuessing() && !that.roundEndProcessed {
		that.roundEndProcessed = true

		if release := that.takeRelease(); release == nil {
			that.pendingRelease = that.sched.LockInput()
		} else {
			that.pendingRelease = release
		}

		won := snapshot.RoundWinner != nil && *snapshot.RoundWinner
		bombs := append([]int{}, snapshot.Bombs...)
		isWriter := snapshot.CurrentPlayer == that.role

		that.sched.After(scheduler.RoundEndInitial, func() {
			that.finishRoundOnline(won, bombs, isWriter)
		})
	}

	if that.lastPhase != snapshot.Phase {
		switch {
		case that.lastPhase == entity.PhasePlacingBombs && snapshot.IsGuessing():
			that.runThemeWave(ThemeLight, ThemeDark)
		case (that.lastPhase == entity.PhaseResetting || that.lastPhase == entity.PhaseRoundEnd) && snapshot.IsPlacing():
			that.roundEndProcessed = false
			that.runThemeWave(ThemeDark, ThemeLight)
		default:
			// A phase change with no wave of its own must not leave a
			// stale lock behind.
			that.sched.UnlockInput()
		}

		that.lastPhase = snapshot.Phase
	}

	if snapshot.Scores != prevScores {
		that.emit(Event{Kind: EventScores, Scores: snapshot.Scores})
	}

	if status := statusForRoom(snapshot, that.role); status != "" && !snapshot.ShowBombMessage {
		that.emit(Event{Kind: EventStatus, Status: status})
	}

	if snapshot.IsPlacing() && snapshot.CurrentPlayer == that.role {
		that.syncPreviews(snapshot.FlippedPreview)
	}
	if len(snapshot.FlippedPreview) == 0 {
		that.shownPreviews = make(map[int]bool)
	}

	if snapshot.IsGuessing() || snapshot.IsRoundEnd() {
		that.syncFlips(snapshot.FlippedCards)
	}

	that.emit(Event{Kind: EventTurn, Active: snapshot.CurrentPlayer})
}

// runThemeWave triggers exactly one wave per phase change, even when two
// snapshots carrying the new phase arrive faster than the wave runs.
func (that *Session) runThemeWave(from, to Theme) {
	if !that.sched.TryLockTheme() {
		return
	}

	// The hand-off from a click may be stale if the lock was force-released
	// on an interleaving phase change; re-acquire in that case.
	release := that.takeRelease()
	if release == nil || !that.sched.InputLocked() {
		release = that.sched.LockInput()
	}

	that.emit(Event{Kind: EventThemeWave, From: from, To: to})

	that.sched.After(scheduler.ClickUnblock, func() {
		release()
		that.sched.UnlockTheme()
	})
}

func (that *Session) handleOpponentDisconnect(snapshot *entity.Room) {
	if that.disconnectHandled {
		return
	}
	that.disconnectHandled = true

	// Terminal: lock input for good, the session only leaves from here.
	that.sched.LockInput()
	that.emit(Event{Kind: EventStatus, Status: StatusOpponentLeft})

	winner := ""
	if slot := snapshot.Slot(that.role); slot != nil {
		winner = slot.Name
	}

	that.sched.After(disconnectAnnounceDelay, func() {
		that.emit(Event{Kind: EventStatus, Status: StatusWinner, Winner: winner})

		that.sched.After(disconnectLeaveDelay, func() {
			if err := that.Leave(context.Background()); err != nil {
				that.logger.Error("failed to leave after disconnect", "error", err)
			}
		})
	})
}

func (that *Session) handleOnlineClick(ctx context.Context, cell int) error {
	that.mu.Lock()

	if that.left {
		that.mu.Unlock()
		return apperror.ErrLeftRoom
	}

	room := that.room
	role := that.role
	code := that.code

	if !bombcells.IsLegalClick(room, role, cell, that.sched.InputLocked(), that.sched.Animating(cell)) {
		that.mu.Unlock()
		return nil
	}

	if room.IsPlacing() {
		return that.onlinePlacingClick(ctx, code, cell)
	}

	return that.onlineGuessingClick(ctx, code, cell, room.HasBomb(cell))
}

// onlinePlacingClick toggles the bomb pick on the latest document. The
// placer is the only writer of bombs/flippedPreview in this phase, so the
// patch is a plain last-writer-wins update.
// Caller holds the session lock; it is released here.
func (that *Session) onlinePlacingClick(ctx context.Context, code string, cell int) error {
	deselect := that.room.HasBomb(cell)

	if !deselect && len(that.room.Bombs) >= entity.MaxBombs {
		that.mu.Unlock()
		return nil
	}

	if deselect {
		delete(that.shownPreviews, cell)
		that.emit(Event{Kind: EventPreviewHidden, Cell: cell})
	} else {
		that.shownPreviews[cell] = true
		that.showBombPreview(cell)
	}
	that.mu.Unlock()

	var armed bool
	err := that.channel.Mutate(ctx, code, func(doc *entity.Room) {
		armed, _ = bombcells.ToggleBomb(doc, cell)
	})
	if err != nil {
		// Not retried: the next action re-derives state from the latest
		// snapshot.
		that.logger.Error("failed to toggle bomb", "cell", cell, "error", err)
		return nil
	}

	if !armed {
		return nil
	}

	that.mu.Lock()
	that.pendingRelease = that.sched.LockInput()
	that.mu.Unlock()

	that.sched.After(scheduler.PlaceToGuessDelay, func() {
		if that.isLeft() {
			return
		}

		err := that.channel.Mutate(context.Background(), code, func(doc *entity.Room) {
			if err := bombcells.BeginGuessing(doc); err != nil {
				that.logger.Error("failed to begin guessing", "error", err)
			}
		})
		if err != nil {
			that.logger.Error("failed to advance phase", "error", err)
		}
	})

	return nil
}

// onlineGuessingClick commits the flip through the compare-and-set append,
// then signals the outcome through plain field updates.
// Caller holds the session lock; it is released here.
func (that *Session) onlineGuessingClick(ctx context.Context, code string, cell int, isBomb bool) error {
	that.flippedSeen[cell] = true
	that.sched.MarkAnimating(cell, scheduler.CardFlip)
	that.emit(Event{Kind: EventCardFlipped, Cell: cell, IsBomb: isBomb})
	that.mu.Unlock()

	if err := that.channel.AppendFlip(ctx, code, entity.FlippedCard{Index: cell, IsBomb: isBomb}); err != nil {
		that.logger.Error("failed to append flip", "cell", cell, "error", err)
		return nil
	}

	if isBomb {
		that.mu.Lock()
		that.pendingRelease = that.sched.LockInput()
		that.mu.Unlock()

		err := that.channel.Mutate(ctx, code, func(doc *entity.Room) {
			lost := false
			doc.ShowBombMessage = true
			doc.RoundEndTriggered = true
			doc.RoundWinner = &lost
		})
		if err != nil {
			that.logger.Error("failed to signal bomb hit", "error", err)
		}

		return nil
	}

	var third bool
	err := that.channel.Mutate(ctx, code, func(doc *entity.Room) {
		if !containsCell(doc.SelectedCells, cell) {
			doc.SelectedCells = append(doc.SelectedCells, cell)
		}
		if len(doc.SelectedCells) == entity.SafePicksToWin {
			third = true
			won := true
			doc.RoundEndTriggered = true
			doc.RoundWinner = &won
		}
	})
	if err != nil {
		that.logger.Error("failed to record safe pick", "error", err)
		return nil
	}

	if third {
		that.mu.Lock()
		that.pendingRelease = that.sched.LockInput()
		that.mu.Unlock()
	}

	return nil
}

// finishRoundOnline reveals the remaining bombs and, on the guesser's client
// only, writes the round result and drives the reset chain. The other client
// animates purely from snapshots; scores are computed by the single writer
// without cross-validation.
func (that *Session) finishRoundOnline(won bool, bombs []int, isWriter bool) {
	if that.isLeft() || !isWriter {
		return
	}

	ctx := context.Background()

	that.mu.Lock()
	code := that.code
	that.mu.Unlock()

	// Idempotent appends: safe even if both clients were to reveal.
	for _, bomb := range bombs {
		if err := that.channel.AppendFlip(ctx, code, entity.FlippedCard{Index: bomb, IsBomb: true}); err != nil {
			that.logger.Error("failed to reveal bomb", "cell", bomb, "error", err)
		}
	}

	that.sched.After(scheduler.CardFlip+revealBuffer, func() {
		if that.isLeft() {
			return
		}

		err := that.channel.Mutate(ctx, code, func(doc *entity.Room) {
			bombcells.ApplyRoundResult(doc, won)
		})
		if err != nil {
			that.logger.Error("failed to apply round result", "error", err)
			return
		}

		that.sched.After(scheduler.RoundEndDelay, func() {
			if that.isLeft() {
				return
			}

			err := that.channel.Mutate(ctx, code, func(doc *entity.Room) {
				doc.Phase = entity.PhaseResetting
			})
			if err != nil {
				that.logger.Error("failed to enter resetting", "error", err)
				return
			}

			that.sched.After(scheduler.CardFlip, func() {
				if that.isLeft() {
					return
				}

				err := that.channel.Mutate(ctx, code, func(doc *entity.Room) {
					bombcells.ResetRound(doc)
				})
				if err != nil {
					that.logger.Error("failed to reset round", "error", err)
				}
			})
		})
	})
}

// syncPreviews mirrors the placer's own picks that arrived via snapshot,
// deduplicated so re-delivered snapshots do not re-flip a card.
func (that *Session) syncPreviews(preview []int) {
	for _, cell := range preview {
		if that.shownPreviews[cell] || that.sched.Animating(cell) {
			continue
		}
		that.shownPreviews[cell] = true
		that.showBombPreview(cell)
	}
}

// syncFlips mirrors committed flips from a snapshot, skipping cards already
// shown or mid-animation.
func (that *Session) syncFlips(cards []entity.FlippedCard) {
	for _, card := range cards {
		if that.flippedSeen[card.Index] || that.sched.Animating(card.Index) {
			continue
		}
		that.flippedSeen[card.Index] = true
		that.sched.MarkAnimating(card.Index, scheduler.CardFlip)
		that.emit(Event{Kind: EventCardFlipped, Cell: card.Index, IsBomb: card.IsBomb})
	}
}
