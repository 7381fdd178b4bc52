package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"letterduel/internal/engine"
	"letterduel/internal/store"
)

// ErrNoRoom means no snapshot has arrived yet; intents need a known room
// state to check their preconditions against.
var ErrNoRoom = errors.New("room state not yet known")

// Session drives one player's view of one room. The store subscription is
// the only thing that changes derived state; every user intent re-checks its
// precondition against the latest snapshot and either writes a guarded patch
// or reports why it cannot, before any remote write is attempted.
//
// Draft answers and score entry live with the caller, never in here: the
// session holds no local copy of server-owned fields beyond the snapshot.
type Session struct {
	store    store.Store
	code     string
	playerID string
	log      *zap.Logger

	mu       sync.Mutex
	room     *engine.Room
	sub      store.Subscription
	onChange func(engine.Room)
}

func New(st store.Store, code, playerID string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{store: st, code: code, playerID: playerID, log: log}
}

// OnChange registers an observer for every accepted snapshot. Must be called
// before Open.
func (s *Session) OnChange(fn func(engine.Room)) {
	s.onChange = fn
}

// Open subscribes to the room document. If the first delivery reports an
// absent document, this client lazily creates the lobby; a second client
// racing the same write converges on identical initial fields.
func (s *Session) Open(ctx context.Context) error {
	sub, err := s.store.Subscribe(ctx, s.code, func(room *engine.Room) {
		s.onSnapshot(ctx, room)
	})
	if err != nil {
		return fmt.Errorf("subscribing to room %s: %w", s.code, err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Close cancels the room subscription.
func (s *Session) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

func (s *Session) onSnapshot(ctx context.Context, room *engine.Room) {
	if room == nil {
		// Lobby state surfaces on the echo of this write, not before.
		if err := s.store.Patch(ctx, s.code, engine.InitialPatch()); err != nil {
			s.log.Warn("room create failed", zap.String("code", s.code), zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	s.room = room
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(*room)
	}
}

func (s *Session) snapshot() (engine.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return engine.Room{}, ErrNoRoom
	}
	return *s.room, nil
}

// RoomCode returns the code this session is bound to.
func (s *Session) RoomCode() string { return s.code }

// PlayerID returns this client's identity within the room.
func (s *Session) PlayerID() string { return s.playerID }

// Phase returns the last observed phase, defaulting to lobby before the
// first snapshot.
func (s *Session) Phase() engine.Phase {
	room, err := s.snapshot()
	if err != nil {
		return engine.PhaseLobby
	}
	return room.Phase
}

// Letter returns the active round letter, empty outside a round.
func (s *Session) Letter() string {
	room, err := s.snapshot()
	if err != nil {
		return ""
	}
	return room.Letter
}

// Players returns the current players in join order.
func (s *Session) Players() []engine.Player {
	room, err := s.snapshot()
	if err != nil {
		return nil
	}
	return engine.PlayerList(room)
}

// Scores returns the recorded scores, nil until any are written.
func (s *Session) Scores() map[string]int {
	room, err := s.snapshot()
	if err != nil {
		return nil
	}
	return room.Scores
}

// Join writes this client into the player map, or refreshes its entry on
// reconnect. A full room is a user-visible rejection with no write.
func (s *Session) Join(ctx context.Context, name string) error {
	room, err := s.snapshot()
	if err != nil {
		return err
	}
	patch, err := engine.Join(room, engine.Player{ID: s.playerID, Name: name})
	if err != nil {
		return err
	}
	return s.patch(ctx, patch)
}

// Start begins the round with a random letter. Once another client has
// already started, this is a silent no-op: the phase guard absorbs the race
// where both players press start together.
func (s *Session) Start(ctx context.Context) error {
	room, err := s.snapshot()
	if err != nil {
		return err
	}
	patch, err := engine.Start(room, engine.RandomLetter())
	if errors.Is(err, engine.ErrAlreadyStarted) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.patch(ctx, patch)
}

// Submit validates the draft answers and, on success, ends the round for
// both players with a single patch. A round another client already ended is
// a silent no-op; a validation failure surfaces the first failing slot and
// writes nothing.
func (s *Session) Submit(ctx context.Context, answers engine.Answers) error {
	room, err := s.snapshot()
	if err != nil {
		return err
	}
	if room.Phase == engine.PhaseResults {
		return nil
	}
	patch, err := engine.Submit(room, s.playerID, answers)
	if err != nil {
		return err
	}
	return s.patch(ctx, patch)
}

// RecordScores writes refereed scores for player 1 and player 2 in join
// order. Re-scoring overwrites.
func (s *Session) RecordScores(ctx context.Context, first, second int) error {
	room, err := s.snapshot()
	if err != nil {
		return err
	}
	patch, err := engine.RecordScores(room, first, second)
	if err != nil {
		return err
	}
	return s.patch(ctx, patch)
}

func (s *Session) patch(ctx context.Context, p engine.Patch) error {
	if err := s.store.Patch(ctx, s.code, p); err != nil {
		// No retry here: fields are idempotent overwrites, so the caller
		// may simply re-issue the intent.
		return fmt.Errorf("patching room %s: %w", s.code, err)
	}
	return nil
}
