package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bombcells/bombcells-backend/internal/apperror"
	"github.com/bombcells/bombcells-backend/internal/service"
	"github.com/bombcells/bombcells-backend/internal/usecase"
)

const (
	actionOffline = "game:offline"
	actionCreate  = "room:create"
	actionJoin    = "room:join"
	actionClick   = "cell:click"
	actionLeave   = "room:leave"
	actionEvent   = "game:event"
	actionError   = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type createPayload struct {
	Name string `json:"name"`
}

type joinPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type clickPayload struct {
	Cell int `json:"cell"`
}

type createdPayload struct {
	Code string `json:"code"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// client is one connected player. It owns the connection, its session, and
// the connection-scoped context whose cancellation arms the disconnect
// signal when the socket drops without an explicit leave.
type client struct {
	id      string
	logger  *slog.Logger
	conn    *websocket.Conn
	channel service.RoomChannel

	writeMu sync.Mutex

	connCtx context.Context
	cancel  context.CancelFunc

	sessionMu sync.Mutex
	session   *usecase.Session
}

func newClient(logger *slog.Logger, conn *websocket.Conn, channel service.RoomChannel) *client {
	connCtx, cancel := context.WithCancel(context.Background())

	id := uuid.NewString()

	return &client{
		id:      id,
		logger:  logger.With("component", "ws_client", "client", id),
		conn:    conn,
		channel: channel,
		connCtx: connCtx,
		cancel:  cancel,
	}
}

// run reads messages until the connection drops. A drop tears the session
// down so none of its pending continuations outlives the player; the slot is
// marked disconnected either by that teardown or by the connCtx signal.
func (that *client) run(ctx context.Context) {
	defer func() {
		if session := that.currentSession(); session != nil {
			if err := session.Leave(context.Background()); err != nil {
				that.logger.Error("failed to tear down session", "error", err)
			}
		}
		that.cancel()
		_ = that.conn.Close()
	}()

	for {
		_, raw, err := that.conn.ReadMessage()
		if err != nil {
			that.logger.Info("connection closed", "error", err)
			return
		}

		var message Message
		if err := json.Unmarshal(raw, &message); err != nil {
			that.logger.Error("failed to unmarshal message", "error", err)
			continue
		}

		if err := that.dispatch(ctx, &message); err != nil {
			that.sendError(err)
		}
	}
}

func (that *client) dispatch(ctx context.Context, message *Message) error {
	switch message.Action {
	case actionOffline:
		return that.handleOffline()
	case actionCreate:
		return that.handleCreate(ctx, message.Payload)
	case actionJoin:
		return that.handleJoin(ctx, message.Payload)
	case actionClick:
		return that.handleClick(ctx, message.Payload)
	case actionLeave:
		return that.handleLeave(ctx)
	default:
		that.logger.Error("unknown action", "action", message.Action)
		return nil
	}
}

func (that *client) handleOffline() error {
	that.sessionMu.Lock()
	defer that.sessionMu.Unlock()

	if that.session != nil {
		return apperror.ErrWrongPhase
	}

	that.session = usecase.NewOfflineSession(that.logger, that)
	return nil
}

func (that *client) handleCreate(ctx context.Context, raw json.RawMessage) error {
	var payload createPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	that.sessionMu.Lock()
	defer that.sessionMu.Unlock()

	if that.session != nil {
		return apperror.ErrWrongPhase
	}

	session := usecase.NewOnlineSession(that.logger, that.channel, that)
	code, err := session.CreateRoom(ctx, that.connCtx, playerName(payload.Name))
	if err != nil {
		return err
	}

	that.session = session
	that.send(actionCreate, createdPayload{Code: code})

	return nil
}

func (that *client) handleJoin(ctx context.Context, raw json.RawMessage) error {
	var payload joinPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	that.sessionMu.Lock()
	defer that.sessionMu.Unlock()

	if that.session != nil {
		return apperror.ErrWrongPhase
	}

	session := usecase.NewOnlineSession(that.logger, that.channel, that)
	if err := session.JoinRoom(ctx, that.connCtx, payload.Code, playerName(payload.Name)); err != nil {
		return err
	}

	that.session = session

	return nil
}

func (that *client) handleClick(ctx context.Context, raw json.RawMessage) error {
	var payload clickPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	session := that.currentSession()
	if session == nil {
		return nil
	}

	return session.HandleClick(ctx, payload.Cell)
}

func (that *client) handleLeave(ctx context.Context) error {
	that.sessionMu.Lock()
	session := that.session
	that.session = nil
	that.sessionMu.Unlock()

	if session == nil {
		return nil
	}

	return session.Leave(ctx)
}

func (that *client) currentSession() *usecase.Session {
	that.sessionMu.Lock()
	defer that.sessionMu.Unlock()
	return that.session
}

// Notify implements usecase.Observer: session transition events go straight
// to the client over the socket.
func (that *client) Notify(event usecase.Event) {
	that.send(actionEvent, event)
}

func (that *client) send(action string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		that.logger.Error("failed to marshal payload", "error", err)
		return
	}

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err := that.conn.WriteJSON(Message{Action: action, Payload: raw}); err != nil {
		that.logger.Error("failed to write message", "error", err)
	}
}

func (that *client) sendError(err error) {
	message := "internal error"

	switch {
	case errors.Is(err, apperror.ErrRoomFull),
		errors.Is(err, apperror.ErrRoomGone),
		errors.Is(err, apperror.ErrInvalidCode),
		errors.Is(err, apperror.ErrWrongPhase),
		errors.Is(err, apperror.ErrLeftRoom):
		message = err.Error()
	default:
		that.logger.Error("request failed", "error", err)
	}

	that.send(actionError, errorPayload{Message: message})
}

func playerName(name string) string {
	if name == "" {
		return "Guest"
	}
	return name
}
