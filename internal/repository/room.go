package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bombcells/bombcells-backend/internal/apperror"
	"github.com/bombcells/bombcells-backend/internal/entity"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrTxRetries    = errors.New("transaction retries exhausted")
)

// casRetries bounds the optimistic WATCH loop on the two contended subpaths.
const casRetries = 8

type RoomRepository interface {
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	GetByCode(ctx context.Context, code string) (*entity.Room, error)
	DeleteByCode(ctx context.Context, code string) error

	JoinSlot(ctx context.Context, code, name string) (*entity.Room, error)
	AppendFlip(ctx context.Context, code string, card entity.FlippedCard) (*entity.Room, error)
	SetConnected(ctx context.Context, code string, role entity.Role, connected bool) error

	Subscribe(ctx context.Context, code string) (<-chan *entity.Room, func(), error)
}

type dbRoom struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoomRepository stores each room as one JSON document under room:<code>
// and publishes the full document on room:events:<code> after every write,
// so subscribers always receive complete snapshots, never deltas.
func NewRoomRepository(client *redis.Client, ttl time.Duration) RoomRepository {
	return &dbRoom{
		client: client,
		ttl:    ttl,
	}
}

func roomKey(code string) string   { return "room:" + code }
func eventsKey(code string) string { return "room:events:" + code }

func (that *dbRoom) CreateOrUpdate(ctx context.Context, room *entity.Room) error {
	roomJSON, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("could not marshal room: %w", err)
	}

	if err = that.client.Set(ctx, roomKey(room.Code), roomJSON, that.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set room: %w", err)
	}

	that.publish(ctx, room.Code, roomJSON)

	return nil
}

func (that *dbRoom) GetByCode(ctx context.Context, code string) (*entity.Room, error) {
	response, err := that.client.Get(ctx, roomKey(code)).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room by code: %w", err)
	}

	var room entity.Room
	if err = json.Unmarshal([]byte(response), &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}

	return &room, nil
}

func (that *dbRoom) DeleteByCode(ctx context.Context, code string) error {
	if err := that.client.Del(ctx, roomKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete room by code: %w", err)
	}

	// Tombstone snapshot: subscribers observe the room as gone.
	that.publish(ctx, code, []byte("null"))

	return nil
}

// JoinSlot atomically claims the second-player seat. It succeeds only if the
// slot is still empty at commit time; concurrent joins serialize on the WATCH
// and every loser observes ErrRoomFull. This is the only defense against the
// double-join race.
func (that *dbRoom) JoinSlot(ctx context.Context, code, name string) (*entity.Room, error) {
	key := roomKey(code)

	var joined *entity.Room
	var joinedJSON []byte

	txf := func(tx *redis.Tx) error {
		response, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get room: %w", err)
		}

		var room entity.Room
		if err = json.Unmarshal([]byte(response), &room); err != nil {
			return fmt.Errorf("failed to unmarshal room: %w", err)
		}

		if room.Player2 != nil {
			return apperror.ErrRoomFull
		}

		room.Player2 = &entity.PlayerSlot{Name: name, Connected: true}
		room.Phase = entity.PhasePlacingBombs

		roomJSON, err := json.Marshal(&room)
		if err != nil {
			return fmt.Errorf("could not marshal room: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, roomJSON, that.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		joined = &room
		joinedJSON = roomJSON
		return nil
	}

	for i := 0; i < casRetries; i++ {
		err := that.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}

		that.publish(ctx, code, joinedJSON)
		return joined, nil
	}

	return nil, fmt.Errorf("join slot: %w", ErrTxRetries)
}

// AppendFlip atomically appends a flip record unless one already exists for
// the same index. Duplicate and racing attempts for one cell all converge on
// a document holding exactly one record for it.
func (that *dbRoom) AppendFlip(ctx context.Context, code string, card entity.FlippedCard) (*entity.Room, error) {
	key := roomKey(code)

	var updated *entity.Room
	var updatedJSON []byte

	txf := func(tx *redis.Tx) error {
		response, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get room: %w", err)
		}

		var room entity.Room
		if err = json.Unmarshal([]byte(response), &room); err != nil {
			return fmt.Errorf("failed to unmarshal room: %w", err)
		}

		if room.IsFlipped(card.Index) {
			// Abort: someone already committed this index.
			updated = &room
			updatedJSON = nil
			return nil
		}

		room.FlippedCards = append(room.FlippedCards, card)

		roomJSON, err := json.Marshal(&room)
		if err != nil {
			return fmt.Errorf("could not marshal room: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, roomJSON, that.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		updated = &room
		updatedJSON = roomJSON
		return nil
	}

	for i := 0; i < casRetries; i++ {
		err := that.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if updatedJSON != nil {
			that.publish(ctx, code, updatedJSON)
		}
		return updated, nil
	}

	return nil, fmt.Errorf("append flip: %w", ErrTxRetries)
}

// SetConnected flips a slot's connected flag. It is a plain last-writer-wins
// update: each slot has a single legitimate writer.
func (that *dbRoom) SetConnected(ctx context.Context, code string, role entity.Role, connected bool) error {
	room, err := that.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	slot := room.Slot(role)
	if slot == nil {
		return fmt.Errorf("%w: slot %d is empty", ErrRoomNotFound, role)
	}

	slot.Connected = connected

	return that.CreateOrUpdate(ctx, room)
}

// Subscribe delivers the full current document once immediately and then on
// every change. A nil room on the channel means the document was deleted.
// The returned func detaches the subscription.
func (that *dbRoom) Subscribe(ctx context.Context, code string) (<-chan *entity.Room, func(), error) {
	pubsub := that.client.Subscribe(ctx, eventsKey(code))

	// Force the subscription to be established before the initial read, so
	// no change between read and subscribe can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	initial, err := that.GetByCode(ctx, code)
	if err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	snapshots := make(chan *entity.Room, 16)

	go func() {
		defer close(snapshots)

		snapshots <- initial

		for msg := range pubsub.Channel() {
			var room *entity.Room
			if err := json.Unmarshal([]byte(msg.Payload), &room); err != nil {
				continue
			}

			select {
			case snapshots <- room:
			case <-ctx.Done():
				return
			}
		}
	}()

	detach := func() {
		_ = pubsub.Close()
	}

	return snapshots, detach, nil
}

func (that *dbRoom) publish(ctx context.Context, code string, roomJSON []byte) {
	// Best effort: a missed publish only delays the observer until the next
	// write; state is always re-derivable from the document itself.
	_ = that.client.Publish(ctx, eventsKey(code), roomJSON).Err()
}
