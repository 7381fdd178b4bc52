package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lobbyWith(players ...Player) Room {
	r := Room{Phase: PhaseLobby, Players: map[string]Player{}}
	for _, p := range players {
		r.Players[p.ID] = p
	}
	return r
}

func TestJoin(t *testing.T) {
	alice := Player{ID: "p1700000000000_a1", Name: "Alice"}
	bob := Player{ID: "p1700000000001_b2", Name: "Bob"}
	carol := Player{ID: "p1700000000002_c3", Name: "Carol"}

	t.Run("first player joins empty lobby", func(t *testing.T) {
		patch, err := Join(lobbyWith(), alice)
		require.NoError(t, err)
		assert.Equal(t, Patch{"players/" + alice.ID: alice}, patch)
	})

	t.Run("second player fills the room", func(t *testing.T) {
		patch, err := Join(lobbyWith(alice), bob)
		require.NoError(t, err)
		assert.Contains(t, patch, "players/"+bob.ID)
	})

	t.Run("third identity is rejected with no patch", func(t *testing.T) {
		patch, err := Join(lobbyWith(alice, bob), carol)
		assert.ErrorIs(t, err, ErrRoomFull)
		assert.Nil(t, patch)
	})

	t.Run("rejoin of an existing member is an overwrite, not a cap violation", func(t *testing.T) {
		patch, err := Join(lobbyWith(alice, bob), alice)
		require.NoError(t, err)
		assert.Contains(t, patch, "players/"+alice.ID)
	})

	t.Run("blank name is rejected", func(t *testing.T) {
		_, err := Join(lobbyWith(), Player{ID: "px", Name: "   "})
		assert.ErrorIs(t, err, ErrNoName)
	})
}

func TestStart(t *testing.T) {
	alice := Player{ID: "p1_a", Name: "Alice"}
	bob := Player{ID: "p2_b", Name: "Bob"}

	t.Run("two players in the lobby may start", func(t *testing.T) {
		patch, err := Start(lobbyWith(alice, bob), "s")
		require.NoError(t, err)
		assert.Equal(t, PhasePlaying, patch["phase"])
		assert.Equal(t, "S", patch["letter"])
	})

	t.Run("one player is not enough", func(t *testing.T) {
		patch, err := Start(lobbyWith(alice), "S")
		assert.ErrorIs(t, err, ErrNotEnoughPlayers)
		assert.Nil(t, patch)
	})

	t.Run("duplicate start observes the phase and stops", func(t *testing.T) {
		r := lobbyWith(alice, bob)
		r.Phase = PhasePlaying
		r.Letter = "S"
		_, err := Start(r, "T")
		assert.ErrorIs(t, err, ErrAlreadyStarted)
	})

	t.Run("letter must be a single A-Z character", func(t *testing.T) {
		for _, bad := range []string{"", "7", "AB", "ß"} {
			_, err := Start(lobbyWith(alice, bob), bad)
			assert.Error(t, err, "letter %q", bad)
		}
	})
}

func TestSubmit(t *testing.T) {
	alice := Player{ID: "p1_a", Name: "Alice"}
	bob := Player{ID: "p2_b", Name: "Bob"}
	good := Answers{City: "Seattle", Name: "Sam", Food: "Soup", Movie: "Speed"}

	playing := func() Room {
		r := lobbyWith(alice, bob)
		r.Phase = PhasePlaying
		r.Letter = "S"
		return r
	}

	t.Run("valid answers end the round for both players", func(t *testing.T) {
		patch, err := Submit(playing(), alice.ID, good)
		require.NoError(t, err)
		assert.Equal(t, PhaseResults, patch["phase"])
		assert.Equal(t, good, patch["players/"+alice.ID+"/answers"])
	})

	t.Run("submit outside of playing is refused", func(t *testing.T) {
		_, err := Submit(lobbyWith(alice, bob), alice.ID, good)
		assert.ErrorIs(t, err, ErrWrongPhase)
	})

	t.Run("non-member cannot submit", func(t *testing.T) {
		_, err := Submit(playing(), "p9_z", good)
		assert.ErrorIs(t, err, ErrNotMember)
	})

	t.Run("invalid answers write nothing", func(t *testing.T) {
		bad := good
		bad.City = "Boston"
		patch, err := Submit(playing(), alice.ID, bad)
		assert.Nil(t, patch)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "city", verr.Slot)
	})
}

func TestRecordScores(t *testing.T) {
	alice := Player{ID: "p1700000000000_a1", Name: "Alice"}
	bob := Player{ID: "p1700000000001_b2", Name: "Bob"}

	t.Run("scores map to players in join order", func(t *testing.T) {
		r := lobbyWith(alice, bob)
		r.Phase = PhaseResults
		r.Letter = "S"
		patch, err := RecordScores(r, 3, 1)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{alice.ID: 3, bob.ID: 1}, patch["scores"])
	})

	t.Run("undefined with fewer than two players", func(t *testing.T) {
		_, err := RecordScores(lobbyWith(alice), 3, 1)
		assert.ErrorIs(t, err, ErrNotEnoughPlayers)
	})

	t.Run("negative and zero scores are legal", func(t *testing.T) {
		patch, err := RecordScores(lobbyWith(alice, bob), -2, 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{alice.ID: -2, bob.ID: 0}, patch["scores"])
	})
}

func TestPlayerListSortsByJoinOrder(t *testing.T) {
	// Ids embed a millisecond timestamp, so lexical order is join order.
	late := Player{ID: "p1700000000500_zz", Name: "Late"}
	early := Player{ID: "p1700000000100_aa", Name: "Early"}
	list := PlayerList(lobbyWith(late, early))
	require.Len(t, list, 2)
	assert.Equal(t, "Early", list[0].Name)
	assert.Equal(t, "Late", list[1].Name)
}

func TestRandomLetter(t *testing.T) {
	for i := 0; i < 100; i++ {
		l := RandomLetter()
		require.Len(t, l, 1)
		assert.True(t, strings.Contains("ABCDEFGHIJKLMNOPQRSTUVWXYZ", l), "got %q", l)
	}
}

// Walks the full lifecycle through patches, checking the letter/phase
// invariant at every reachable state.
func TestLifecycleScenario(t *testing.T) {
	letterConsistent := func(r Room) bool {
		hasLetter := r.Letter != ""
		inRound := r.Phase == PhasePlaying || r.Phase == PhaseResults
		return hasLetter == inRound
	}

	room, err := Apply(Room{}, InitialPatch())
	require.NoError(t, err)
	assert.Equal(t, PhaseLobby, room.Phase)
	assert.Empty(t, room.Players)
	assert.True(t, letterConsistent(room))

	alice := Player{ID: "p1700000000000_a1", Name: "Alice"}
	bob := Player{ID: "p1700000000001_b2", Name: "Bob"}

	for _, p := range []Player{alice, bob} {
		patch, err := Join(room, p)
		require.NoError(t, err)
		room, err = Apply(room, patch)
		require.NoError(t, err)
		assert.True(t, letterConsistent(room))
	}
	assert.Equal(t, "Alice", room.Players[alice.ID].Name)

	patch, err := Start(room, "S")
	require.NoError(t, err)
	room, err = Apply(room, patch)
	require.NoError(t, err)
	assert.Equal(t, PhasePlaying, room.Phase)
	assert.Equal(t, "S", room.Letter)
	assert.True(t, letterConsistent(room))

	answers := Answers{City: "Seattle", Name: "Sam", Food: "Soup", Movie: "Speed"}
	patch, err = Submit(room, alice.ID, answers)
	require.NoError(t, err)
	room, err = Apply(room, patch)
	require.NoError(t, err)
	assert.Equal(t, PhaseResults, room.Phase)
	assert.Equal(t, answers, room.Players[alice.ID].Answers)
	assert.True(t, letterConsistent(room))

	patch, err = RecordScores(room, 3, 1)
	require.NoError(t, err)
	room, err = Apply(room, patch)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{alice.ID: 3, bob.ID: 1}, room.Scores)

	// Scores keys stay a subset of players keys.
	for id := range room.Scores {
		assert.Contains(t, room.Players, id)
	}

	// Re-scoring a dispute overwrites without a phase change.
	patch, err = RecordScores(room, 2, 2)
	require.NoError(t, err)
	room, err = Apply(room, patch)
	require.NoError(t, err)
	assert.Equal(t, PhaseResults, room.Phase)
	assert.Equal(t, map[string]int{alice.ID: 2, bob.ID: 2}, room.Scores)
}
