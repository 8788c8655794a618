package bombcells

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bombcells/bombcells-backend/internal/apperror"
	"github.com/bombcells/bombcells-backend/internal/entity"
)

func TestToggleBomb(t *testing.T) {
	t.Run("picks accumulate until the second bomb arms the board", func(t *testing.T) {
		room := entity.NewOfflineRoom()

		// When: the first bomb is placed
		armed, err := ToggleBomb(room, 2)
		require.NoError(t, err)
		assert.False(t, armed)

		// When: the second bomb is placed
		armed, err = ToggleBomb(room, 5)
		require.NoError(t, err)

		// Then: the board is armed and both picks are previewed
		assert.True(t, armed)
		assert.Equal(t, []int{2, 5}, room.Bombs)
		assert.Equal(t, []int{2, 5}, room.FlippedPreview)
	})

	t.Run("re-selecting a picked bomb is a deselect, not a no-op", func(t *testing.T) {
		room := entity.NewOfflineRoom()

		_, err := ToggleBomb(room, 2)
		require.NoError(t, err)

		armed, err := ToggleBomb(room, 2)
		require.NoError(t, err)

		assert.False(t, armed)
		assert.Empty(t, room.Bombs)
		assert.Empty(t, room.FlippedPreview)
	})

	t.Run("a third distinct pick is rejected", func(t *testing.T) {
		room := entity.NewOfflineRoom()

		_, err := ToggleBomb(room, 0)
		require.NoError(t, err)
		_, err = ToggleBomb(room, 1)
		require.NoError(t, err)

		_, err = ToggleBomb(room, 2)
		assert.ErrorIs(t, err, apperror.ErrBombLimit)
		assert.Len(t, room.Bombs, entity.MaxBombs)
	})

	t.Run("placement outside placing_bombs is rejected", func(t *testing.T) {
		room := entity.NewOfflineRoom()
		room.Phase = entity.PhaseGuessing

		_, err := ToggleBomb(room, 0)
		assert.ErrorIs(t, err, apperror.ErrWrongPhase)
	})
}

func TestBeginGuessing(t *testing.T) {
	// Given: an armed board with player 1 placing
	room := entity.NewOfflineRoom()
	_, err := ToggleBomb(room, 2)
	require.NoError(t, err)
	_, err = ToggleBomb(room, 5)
	require.NoError(t, err)

	// When: the guessing phase begins
	require.NoError(t, BeginGuessing(room))

	// Then: the placer is inactive and the opponent guesses
	assert.Equal(t, entity.PhaseGuessing, room.Phase)
	assert.Equal(t, entity.RolePlayer2, room.CurrentPlayer)
	assert.Empty(t, room.FlippedCards)
	assert.Empty(t, room.FlippedPreview)
	// Bombs stay: they decide flip classification
	assert.Equal(t, []int{2, 5}, room.Bombs)
}

func TestClassifyFlip(t *testing.T) {
	guessingRoom := func(bombs ...int) *entity.Room {
		room := entity.NewOfflineRoom()
		room.Bombs = bombs
		require.NoError(t, BeginGuessing(room))
		return room
	}

	t.Run("a safe flip is recorded and does not end the round", func(t *testing.T) {
		room := guessingRoom(2, 5)

		result, err := ClassifyFlip(room, 0)
		require.NoError(t, err)

		assert.False(t, result.Card.IsBomb)
		assert.False(t, result.RoundOver)
		assert.Equal(t, []int{0}, room.SelectedCells)
		assert.True(t, room.IsFlipped(0))
		assert.False(t, room.RoundEndTriggered)
	})

	t.Run("a bomb flip ends the round immediately as a loss", func(t *testing.T) {
		room := guessingRoom(2, 5)

		result, err := ClassifyFlip(room, 2)
		require.NoError(t, err)

		assert.True(t, result.Card.IsBomb)
		assert.True(t, result.RoundOver)
		assert.False(t, result.GuesserWon)
		assert.True(t, room.ShowBombMessage)
		assert.True(t, room.RoundEndTriggered)
		require.NotNil(t, room.RoundWinner)
		assert.False(t, *room.RoundWinner)
		// a bomb flip never counts as a safe pick
		assert.Empty(t, room.SelectedCells)
	})

	t.Run("the third safe flip ends the round as a win", func(t *testing.T) {
		room := guessingRoom(2, 5)

		for _, cell := range []int{0, 3} {
			result, err := ClassifyFlip(room, cell)
			require.NoError(t, err)
			assert.False(t, result.RoundOver)
		}

		result, err := ClassifyFlip(room, 7)
		require.NoError(t, err)

		assert.True(t, result.RoundOver)
		assert.True(t, result.GuesserWon)
		assert.Len(t, room.SelectedCells, entity.SafePicksToWin)
		require.NotNil(t, room.RoundWinner)
		assert.True(t, *room.RoundWinner)
	})

	t.Run("a duplicate flip is rejected", func(t *testing.T) {
		room := guessingRoom(2, 5)

		_, err := ClassifyFlip(room, 0)
		require.NoError(t, err)

		_, err = ClassifyFlip(room, 0)
		assert.ErrorIs(t, err, apperror.ErrCellFlipped)
		assert.Len(t, room.FlippedCards, 1)
	})

	t.Run("flips outside guessing are rejected", func(t *testing.T) {
		room := entity.NewOfflineRoom()

		_, err := ClassifyFlip(room, 0)
		assert.ErrorIs(t, err, apperror.ErrWrongPhase)
	})
}

func TestRevealBombs(t *testing.T) {
	// Given: a round that ended with one bomb already flipped
	room := entity.NewOfflineRoom()
	room.Bombs = []int{2, 5}
	require.NoError(t, BeginGuessing(room))
	_, err := ClassifyFlip(room, 2)
	require.NoError(t, err)

	// When: remaining bombs are revealed
	revealed := RevealBombs(room)

	// Then: only the unflipped bomb is appended, exactly once
	assert.Equal(t, []int{5}, revealed)
	assert.Len(t, room.FlippedCards, 2)
	assert.Empty(t, RevealBombs(room))
	assert.Len(t, room.FlippedCards, 2)
}

func TestApplyRoundResult(t *testing.T) {
	t.Run("the guesser scores on a win", func(t *testing.T) {
		room := entity.NewOfflineRoom()
		room.CurrentPlayer = entity.RolePlayer2
		room.ShowBombMessage = true

		ApplyRoundResult(room, true)

		assert.Equal(t, entity.PhaseRoundEnd, room.Phase)
		assert.Equal(t, 1, room.Scores.Player2)
		assert.Equal(t, 0, room.Scores.Player1)
		assert.False(t, room.ShowBombMessage)
	})

	t.Run("the placer scores on a bomb hit", func(t *testing.T) {
		room := entity.NewOfflineRoom()
		room.CurrentPlayer = entity.RolePlayer2

		ApplyRoundResult(room, false)

		assert.Equal(t, 1, room.Scores.Player1)
		assert.Equal(t, 0, room.Scores.Player2)
	})
}

func TestResetRound(t *testing.T) {
	// Given: a finished round
	room := entity.NewOfflineRoom()
	room.Bombs = []int{2, 5}
	require.NoError(t, BeginGuessing(room))
	_, err := ClassifyFlip(room, 2)
	require.NoError(t, err)
	RevealBombs(room)
	ApplyRoundResult(room, false)

	// When: the next round is prepared
	ResetRound(room)

	// Then: collections are cleared, transient flags consumed
	assert.Equal(t, entity.PhasePlacingBombs, room.Phase)
	assert.Empty(t, room.Bombs)
	assert.Empty(t, room.SelectedCells)
	assert.Empty(t, room.FlippedCards)
	assert.Empty(t, room.FlippedPreview)
	assert.False(t, room.RoundEndTriggered)
	assert.Nil(t, room.RoundWinner)

	// Then: the previous guesser keeps the turn and places next
	assert.Equal(t, entity.RolePlayer2, room.CurrentPlayer)
	// Scores survive the reset
	assert.Equal(t, 1, room.Scores.Player1)
}

// Alternation across two full rounds: the guesser of round N places in N+1.
func TestRoundAlternation(t *testing.T) {
	room := entity.NewOfflineRoom()

	// Round 1: player 1 places, player 2 guesses
	assert.Equal(t, entity.RolePlayer1, room.CurrentPlayer)
	room.Bombs = []int{0, 1}
	require.NoError(t, BeginGuessing(room))
	assert.Equal(t, entity.RolePlayer2, room.CurrentPlayer)

	_, err := ClassifyFlip(room, 0)
	require.NoError(t, err)
	ApplyRoundResult(room, false)
	ResetRound(room)

	// Round 2: player 2 places, player 1 guesses
	assert.Equal(t, entity.RolePlayer2, room.CurrentPlayer)
	room.Bombs = []int{3, 4}
	require.NoError(t, BeginGuessing(room))
	assert.Equal(t, entity.RolePlayer1, room.CurrentPlayer)
}
