package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"

	"github.com/bombcells/bombcells-backend/internal/apperror"
	"github.com/bombcells/bombcells-backend/internal/entity"
	"github.com/bombcells/bombcells-backend/internal/repository"
)

var roomCodePattern = regexp.MustCompile(`^\d{4}$`)

const codeAttempts = 16

var ErrCodeSpaceExhausted = errors.New("could not allocate a free room code")

// RoomChannel wraps the shared document: create/join with atomic slot
// acquisition, full-snapshot subscriptions, plain and compare-and-set
// mutations, and the best-effort disconnect signal.
type RoomChannel interface {
	Create(ctx context.Context, hostName string) (*entity.Room, error)
	Join(ctx context.Context, code, name string) (*entity.Room, error)

	Subscribe(ctx context.Context, code string, onSnapshot func(*entity.Room)) (func(), error)

	Mutate(ctx context.Context, code string, patch func(*entity.Room)) error
	AppendFlip(ctx context.Context, code string, card entity.FlippedCard) error

	RegisterDisconnect(connCtx context.Context, code string, role entity.Role) func()
	Leave(ctx context.Context, code string, role entity.Role) error
	Delete(ctx context.Context, code string) error
}

type roomRepo interface {
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	GetByCode(ctx context.Context, code string) (*entity.Room, error)
	DeleteByCode(ctx context.Context, code string) error

	JoinSlot(ctx context.Context, code, name string) (*entity.Room, error)
	AppendFlip(ctx context.Context, code string, card entity.FlippedCard) (*entity.Room, error)
	SetConnected(ctx context.Context, code string, role entity.Role, connected bool) error

	Subscribe(ctx context.Context, code string) (<-chan *entity.Room, func(), error)
}

type roomChannel struct {
	logger   *slog.Logger
	roomRepo roomRepo
}

func NewRoomChannel(logger *slog.Logger, roomRepo roomRepo) RoomChannel {
	return &roomChannel{
		logger:   logger.With("component", "room_channel"),
		roomRepo: roomRepo,
	}
}

// Create initializes a room under a fresh 4-digit code with the host seated
// and the second slot empty.
func (that *roomChannel) Create(ctx context.Context, hostName string) (*entity.Room, error) {
	for i := 0; i < codeAttempts; i++ {
		code := generateRoomCode()

		if _, err := that.roomRepo.GetByCode(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrRoomNotFound) {
			return nil, fmt.Errorf("failed to probe room code: %w", err)
		}

		room := entity.NewRoom(code, hostName)
		if err := that.roomRepo.CreateOrUpdate(ctx, room); err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}

		return room, nil
	}

	return nil, ErrCodeSpaceExhausted
}

// Join claims the second-player slot. The code is validated before any
// network interaction; the slot acquisition itself is atomic and loses
// cleanly with ErrRoomFull.
func (that *roomChannel) Join(ctx context.Context, code, name string) (*entity.Room, error) {
	if !roomCodePattern.MatchString(code) {
		return nil, fmt.Errorf("%w: %q", apperror.ErrInvalidCode, code)
	}

	room, err := that.roomRepo.JoinSlot(ctx, code, name)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil, apperror.ErrRoomGone
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	return room, nil
}

// Subscribe delivers full document snapshots to onSnapshot, starting with
// the current one. Malformed documents are logged and dropped at this
// boundary. A nil snapshot means the room is gone. The returned func
// detaches the subscription.
func (that *roomChannel) Subscribe(ctx context.Context, code string, onSnapshot func(*entity.Room)) (func(), error) {
	snapshots, detach, err := that.roomRepo.Subscribe(ctx, code)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil, apperror.ErrRoomGone
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room: %w", err)
	}

	log := that.logger.With("room", code)

	go func() {
		for room := range snapshots {
			if room != nil {
				if err := room.Validate(); err != nil {
					log.Error("dropping malformed snapshot", "error", err)
					continue
				}
			}

			onSnapshot(room)
		}
	}()

	return detach, nil
}

// Mutate performs a plain last-writer-wins update: read the latest document,
// apply the patch, write it back. Used for all non-racy fields, whose writer
// is uniquely determined by the current phase and active player.
func (that *roomChannel) Mutate(ctx context.Context, code string, patch func(*entity.Room)) error {
	room, err := that.roomRepo.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return apperror.ErrRoomGone
	}
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	patch(room)

	if err = that.roomRepo.CreateOrUpdate(ctx, room); err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}

	return nil
}

// AppendFlip is the second and last compare-and-set point: the record is
// appended atomically and duplicate attempts for the same index are no-ops.
func (that *roomChannel) AppendFlip(ctx context.Context, code string, card entity.FlippedCard) error {
	_, err := that.roomRepo.AppendFlip(ctx, code, card)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return apperror.ErrRoomGone
	}
	if err != nil {
		return fmt.Errorf("failed to append flip: %w", err)
	}

	return nil
}

// RegisterDisconnect arms the best-effort disconnect signal for a slot: if
// connCtx ends before the returned cancel func is called, the slot is marked
// disconnected. The write happens on a background context because the
// connection is already dead by then.
func (that *roomChannel) RegisterDisconnect(connCtx context.Context, code string, role entity.Role) func() {
	canceled := make(chan struct{})
	log := that.logger.With("room", code, "role", int(role))

	go func() {
		select {
		case <-canceled:
		case <-connCtx.Done():
			if err := that.roomRepo.SetConnected(context.Background(), code, role, false); err != nil {
				log.Error("failed to mark slot disconnected", "error", err)
			}
		}
	}()

	var once bool
	return func() {
		if !once {
			once = true
			close(canceled)
		}
	}
}

// Leave marks the slot disconnected after an explicit exit. The disconnect
// signal for the slot must be canceled by the caller first.
func (that *roomChannel) Leave(ctx context.Context, code string, role entity.Role) error {
	err := that.roomRepo.SetConnected(ctx, code, role, false)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return apperror.ErrRoomGone
	}
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return nil
}

func (that *roomChannel) Delete(ctx context.Context, code string) error {
	if err := that.roomRepo.DeleteByCode(ctx, code); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}

func generateRoomCode() string {
	return fmt.Sprintf("%04d", 1000+rand.Intn(9000)) //nolint: gosec // room codes are not secrets
}
