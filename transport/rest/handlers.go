package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bombcells/bombcells-backend/internal/entity"
	"github.com/bombcells/bombcells-backend/internal/repository"
)

type roomProbe interface {
	GetByCode(ctx context.Context, code string) (*entity.Room, error)
}

type handler struct {
	rooms roomProbe
}

func newHandler(rooms roomProbe) *handler {
	return &handler{rooms: rooms}
}

func (that *handler) ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

type availabilityResponse struct {
	Exists   bool `json:"exists"`
	Joinable bool `json:"joinable"`
}

// roomAvailability lets a lobby pre-check a room code before attempting the
// actual join. The join itself still races atomically; this is advisory.
func (that *handler) roomAvailability(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	response := availabilityResponse{}

	room, err := that.rooms.GetByCode(r.Context(), code)
	switch {
	case errors.Is(err, repository.ErrRoomNotFound):
	case err != nil:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	default:
		response.Exists = true
		response.Joinable = room.Player2 == nil
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
