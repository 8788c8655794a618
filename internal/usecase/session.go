package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bombcells/bombcells-backend/internal/entity"
	"github.com/bombcells/bombcells-backend/internal/scheduler"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// roomChannel is the slice of the room channel the session consumes.
type roomChannel interface {
	Create(ctx context.Context, hostName string) (*entity.Room, error)
	Join(ctx context.Context, code, name string) (*entity.Room, error)

	Subscribe(ctx context.Context, code string, onSnapshot func(*entity.Room)) (func(), error)

	Mutate(ctx context.Context, code string, patch func(*entity.Room)) error
	AppendFlip(ctx context.Context, code string, card entity.FlippedCard) error

	RegisterDisconnect(connCtx context.Context, code string, role entity.Role) func()
	Leave(ctx context.Context, code string, role entity.Role) error
	Delete(ctx context.Context, code string) error
}

// Session owns one client's view of a match: the room mirror, the scheduler
// with every pending continuation, and the once-guards that keep transient
// document flags from being consumed twice. Offline it is the single
// authority over the room; online it is one of two observers racing over
// snapshots of the shared document.
type Session struct {
	logger   *slog.Logger
	sched    *scheduler.Scheduler
	observer Observer
	channel  roomChannel

	mode Mode
	role entity.Role
	code string

	mu                sync.Mutex
	room              *entity.Room
	lastPhase         entity.Phase
	roundEndProcessed bool
	disconnectHandled bool
	left              bool
	shownPreviews     map[int]bool
	flippedSeen       map[int]bool
	pendingRelease    func()

	detach           func()
	cancelDisconnect func()
}

// Scheduler exposes the session's scheduler, mainly so a transport can
// consult the input lock state.
func (that *Session) Scheduler() *scheduler.Scheduler {
	return that.sched
}

func (that *Session) Mode() Mode { return that.mode }

func (that *Session) Role() entity.Role {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.role
}

func (that *Session) Code() string {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.code
}

// Room returns a copy of the current room mirror.
func (that *Session) Room() *entity.Room {
	that.mu.Lock()
	defer that.mu.Unlock()
	if that.room == nil {
		return nil
	}
	return that.room.Clone()
}

// HandleClick routes a cell click through the turn resolver and, when legal,
// the phase state machine. Illegal clicks are silently ignored: a click
// during an animation window or out of turn has no effect on state.
func (that *Session) HandleClick(ctx context.Context, cell int) error {
	if that.mode == ModeOffline {
		return that.handleOfflineClick(cell)
	}
	return that.handleOnlineClick(ctx, cell)
}

// Leave tears the session down: every pending continuation is canceled
// synchronously, then the subscription and the disconnect signal are
// detached, then the slot is marked disconnected. After Leave returns, no
// write from this session reaches the document. The last player out destroys
// the room: when the opponent seat is already empty or disconnected, the
// document is deleted instead of waiting for the TTL.
func (that *Session) Leave(ctx context.Context) error {
	that.mu.Lock()
	if that.left {
		that.mu.Unlock()
		return nil
	}
	that.left = true
	cancelDisconnect := that.cancelDisconnect
	detach := that.detach
	code := that.code
	role := that.role
	mode := that.mode
	room := that.room
	that.mu.Unlock()

	that.sched.Close()

	if mode == ModeOnline {
		if cancelDisconnect != nil {
			cancelDisconnect()
		}
		if detach != nil {
			detach()
		}
		if err := that.channel.Leave(ctx, code, role); err != nil {
			that.logger.Error("failed to leave room", "error", err)
		}

		if room != nil {
			if opponent := room.Slot(role.Opponent()); opponent == nil || !opponent.Connected {
				if err := that.channel.Delete(ctx, code); err != nil {
					that.logger.Error("failed to delete room", "error", err)
				}
			}
		}
	}

	that.emit(Event{Kind: EventLeft})

	return nil
}

func (that *Session) emit(event Event) {
	if that.observer != nil {
		that.observer.Notify(event)
	}
}

// takeRelease hands over the pending input-lock release, if a click already
// acquired the lock for the transition now being observed.
func (that *Session) takeRelease() func() {
	release := that.pendingRelease
	that.pendingRelease = nil
	return release
}

func (that *Session) isLeft() bool {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.left
}

// statusForRoom maps phase and turn onto the status the local player sees.
func statusForRoom(room *entity.Room, role entity.Role) Status {
	myTurn := room.CurrentPlayer == role

	switch room.Phase {
	case entity.PhaseWaiting:
		return StatusWaitingOpponent
	case entity.PhasePlacingBombs:
		if myTurn {
			return StatusPlaceBombs
		}
		return StatusOpponentPlacing
	case entity.PhaseGuessing:
		if myTurn {
			return StatusFindSafe
		}
		return StatusOpponentGuessing
	case entity.PhaseRoundEnd:
		won := room.RoundWinner != nil && *room.RoundWinner
		if won == myTurn {
			return StatusRoundWon
		}
		return StatusRoundLost
	default:
		return ""
	}
}

func containsCell(cells []int, cell int) bool {
	for _, c := range cells {
		if c == cell {
			return true
		}
	}
	return false
}
