package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bombcells/bombcells-backend/internal/entity"
	"github.com/bombcells/bombcells-backend/internal/repository"
)

type fakeProbe struct {
	rooms map[string]*entity.Room
}

func (that *fakeProbe) GetByCode(_ context.Context, code string) (*entity.Room, error) {
	room, ok := that.rooms[code]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return room, nil
}

func testRouter(probe roomProbe) *mux.Router {
	router := mux.NewRouter()
	handler := newHandler(probe)
	router.HandleFunc("/ping", handler.ping).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{code}", handler.roomAvailability).Methods(http.MethodGet)
	return router
}

func TestPing(t *testing.T) {
	router := testRouter(&fakeProbe{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestRoomAvailability(t *testing.T) {
	open := entity.NewRoom("1234", "alice")
	full := entity.NewRoom("5678", "alice")
	full.Player2 = &entity.PlayerSlot{Name: "bob", Connected: true}

	router := testRouter(&fakeProbe{rooms: map[string]*entity.Room{
		"1234": open,
		"5678": full,
	}})

	probe := func(code string) availabilityResponse {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/"+code, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var response availabilityResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		return response
	}

	t.Run("an open room is joinable", func(t *testing.T) {
		response := probe("1234")
		assert.True(t, response.Exists)
		assert.True(t, response.Joinable)
	})

	t.Run("a full room exists but cannot be joined", func(t *testing.T) {
		response := probe("5678")
		assert.True(t, response.Exists)
		assert.False(t, response.Joinable)
	})

	t.Run("a missing room is neither", func(t *testing.T) {
		response := probe("0000")
		assert.False(t, response.Exists)
		assert.False(t, response.Joinable)
	})
}
