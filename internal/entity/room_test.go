package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoom(t *testing.T) {
	// When: a room is created for a host
	room := NewRoom("1234", "alice")

	// Then: it waits for a second player with the host seated
	require.NotNil(t, room)
	assert.Equal(t, PhaseWaiting, room.Phase)
	assert.Equal(t, "alice", room.Player1.Name)
	assert.True(t, room.Player1.Connected)
	assert.Nil(t, room.Player2)
	assert.Equal(t, RolePlayer1, room.CurrentPlayer)
	assert.Empty(t, room.Bombs)
	assert.Empty(t, room.FlippedCards)

	// Then: the initial document passes schema validation
	require.NoError(t, room.Validate())
}

func TestNewOfflineRoom(t *testing.T) {
	// When: an offline room is created
	room := NewOfflineRoom()

	// Then: both seats are taken and placement starts immediately
	assert.Equal(t, PhasePlacingBombs, room.Phase)
	require.NotNil(t, room.Player2)
	require.NoError(t, room.Validate())
}

func TestRoom_Predicates(t *testing.T) {
	room := NewRoom("1234", "alice")
	room.Bombs = []int{2, 5}
	room.FlippedCards = []FlippedCard{{Index: 0, IsBomb: false}}
	room.FlippedPreview = []int{2}

	assert.True(t, room.HasBomb(2))
	assert.True(t, room.HasBomb(5))
	assert.False(t, room.HasBomb(0))

	assert.True(t, room.IsFlipped(0))
	assert.False(t, room.IsFlipped(2))

	assert.True(t, room.InPreview(2))
	assert.False(t, room.InPreview(5))
}

func TestRole_Opponent(t *testing.T) {
	assert.Equal(t, RolePlayer2, RolePlayer1.Opponent())
	assert.Equal(t, RolePlayer1, RolePlayer2.Opponent())
}

func TestRoom_AddPoint(t *testing.T) {
	room := NewOfflineRoom()

	room.AddPoint(RolePlayer1)
	room.AddPoint(RolePlayer2)
	room.AddPoint(RolePlayer2)

	assert.Equal(t, 1, room.Scores.Player1)
	assert.Equal(t, 2, room.Scores.Player2)
	assert.Equal(t, 1, room.ScoreFor(RolePlayer1))
	assert.Equal(t, 2, room.ScoreFor(RolePlayer2))
}

func TestRoom_Clone(t *testing.T) {
	// Given: a populated room
	room := NewRoom("1234", "alice")
	room.Bombs = []int{1}
	won := true
	room.RoundWinner = &won

	// When: it is cloned and the clone mutated
	clone := room.Clone()
	clone.Bombs = append(clone.Bombs, 7)
	clone.Player1.Name = "mallory"
	*clone.RoundWinner = false

	// Then: the original is untouched
	assert.Equal(t, []int{1}, room.Bombs)
	assert.Equal(t, "alice", room.Player1.Name)
	assert.True(t, *room.RoundWinner)
}

func TestRoom_Validate(t *testing.T) {
	valid := func() *Room {
		room := NewRoom("1234", "alice")
		room.Player2 = &PlayerSlot{Name: "bob", Connected: true}
		room.Phase = PhaseGuessing
		room.Bombs = []int{2, 5}
		return room
	}

	t.Run("accepts a well-formed document", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("rejects an unknown phase", func(t *testing.T) {
		room := valid()
		room.Phase = "intermission"
		assert.ErrorIs(t, room.Validate(), ErrInvalidPhase)
	})

	t.Run("rejects a missing player1 slot", func(t *testing.T) {
		room := valid()
		room.Player1 = nil
		assert.ErrorIs(t, room.Validate(), ErrInvalidRoom)
	})

	t.Run("rejects more than two bombs", func(t *testing.T) {
		room := valid()
		room.Bombs = []int{1, 2, 3}
		assert.ErrorIs(t, room.Validate(), ErrInvalidRoom)
	})

	t.Run("rejects more than three selected cells", func(t *testing.T) {
		room := valid()
		room.SelectedCells = []int{0, 1, 3, 4}
		assert.ErrorIs(t, room.Validate(), ErrInvalidRoom)
	})

	t.Run("rejects an out-of-range cell", func(t *testing.T) {
		room := valid()
		room.Bombs = []int{9}
		assert.ErrorIs(t, room.Validate(), ErrInvalidCell)
	})

	t.Run("rejects duplicate flip records", func(t *testing.T) {
		room := valid()
		room.FlippedCards = []FlippedCard{{Index: 4, IsBomb: false}, {Index: 4, IsBomb: true}}
		assert.ErrorIs(t, room.Validate(), ErrDuplicateIndex)
	})

	t.Run("rejects an invalid current player", func(t *testing.T) {
		room := valid()
		room.CurrentPlayer = 3
		assert.ErrorIs(t, room.Validate(), ErrInvalidRoom)
	})

	t.Run("rejects negative scores", func(t *testing.T) {
		room := valid()
		room.Scores.Player1 = -1
		assert.ErrorIs(t, room.Validate(), ErrInvalidRoom)
	})
}
