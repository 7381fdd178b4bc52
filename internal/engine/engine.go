package engine

import (
	"errors"
	"math/rand"
	"sort"
	"strings"
)

var ErrRoomFull = errors.New("room already has two players")
var ErrNoName = errors.New("player name is empty")
var ErrNotEnoughPlayers = errors.New("need two players")
var ErrAlreadyStarted = errors.New("round already started")
var ErrNotMember = errors.New("player is not in this room")
var ErrWrongPhase = errors.New("not legal in current phase")

// MaxPlayers is the hard cap per room. The whole ruleset assumes head-to-head
// play; a third identity is rejected, never queued.
const MaxPlayers = 2

type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhaseResults Phase = "results"
)

// Answers holds the four category slots of one round. Slots stay empty until
// the owning player submits, then are written exactly once.
type Answers struct {
	City  string `json:"city"`
	Name  string `json:"name"`
	Food  string `json:"food"`
	Movie string `json:"movie"`
}

type Player struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Answers Answers `json:"answers"`
}

// Room is the shared document both clients read and write. Letter is set iff
// the phase has reached playing; Scores appear only once recorded.
type Room struct {
	Phase   Phase             `json:"phase"`
	Players map[string]Player `json:"players"`
	Letter  string            `json:"letter,omitempty"`
	Scores  map[string]int    `json:"scores,omitempty"`
}

// Clone returns a deep copy so patch application never aliases the maps of
// the document it started from.
func (r Room) Clone() Room {
	out := r
	out.Players = make(map[string]Player, len(r.Players))
	for id, p := range r.Players {
		out.Players[id] = p
	}
	if r.Scores != nil {
		out.Scores = make(map[string]int, len(r.Scores))
		for id, s := range r.Scores {
			out.Scores[id] = s
		}
	}
	return out
}

// PlayerList returns players sorted by id. Ids minted by this module embed a
// millisecond timestamp, so id order is join order: index 0 is "player 1".
func PlayerList(r Room) []Player {
	list := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomLetter draws the round constraint uniformly from A-Z.
func RandomLetter() string {
	return string(alphabet[rand.Intn(len(alphabet))])
}

// InitialPatch is the lazy-creation write issued by whichever client first
// observes an absent document. Both clients racing this write produce the
// same fields, so last-writer-wins converges either way.
func InitialPatch() Patch {
	return Patch{
		"phase":   PhaseLobby,
		"players": map[string]Player{},
	}
}

// Join admits a player into the lobby, or refreshes an existing member on
// reconnect. The returned patch touches only that player's entry.
func Join(r Room, p Player) (Patch, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, ErrNoName
	}
	if _, member := r.Players[p.ID]; !member && len(r.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	return Patch{"players/" + p.ID: p}, nil
}

// Start begins the round with the given letter. Legal only from the lobby
// with exactly two players present; either player may trigger it, first
// writer wins.
func Start(r Room, letter string) (Patch, error) {
	if r.Phase != PhaseLobby {
		return nil, ErrAlreadyStarted
	}
	if len(r.Players) != MaxPlayers {
		return nil, ErrNotEnoughPlayers
	}
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if len(letter) != 1 || !strings.Contains(alphabet, letter) {
		return nil, errors.New("letter must be a single character A-Z")
	}
	return Patch{
		"phase":  PhasePlaying,
		"letter": letter,
	}, nil
}

// Submit validates the acting player's answers against the active letter and,
// on success, persists them and ends the round for both players in a single
// patch. Validation failure carries the first failing slot and writes nothing.
func Submit(r Room, playerID string, a Answers) (Patch, error) {
	if r.Phase != PhasePlaying {
		return nil, ErrWrongPhase
	}
	if _, member := r.Players[playerID]; !member {
		return nil, ErrNotMember
	}
	if err := CheckAnswers(r.Letter, a); err != nil {
		return nil, err
	}
	return Patch{
		"players/" + playerID + "/answers": a,
		"phase":                            PhaseResults,
	}, nil
}

// RecordScores maps manually refereed scores onto the two players in join
// order. Overwriting a previous score is allowed; any integers are legal.
func RecordScores(r Room, first, second int) (Patch, error) {
	players := PlayerList(r)
	if len(players) != MaxPlayers {
		return nil, ErrNotEnoughPlayers
	}
	return Patch{
		"scores": map[string]int{
			players[0].ID: first,
			players[1].ID: second,
		},
	}, nil
}
