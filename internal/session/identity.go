package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Identity hands out a stable per-room player id for this client, persisted
// in a small local file so a reload rejoins as the same player. Losing the
// file means becoming a fresh, unrecognized player, which is the intended
// failure mode.
//
// Ids are minted as p<unixmilli>_<uuid fragment>: the embedded timestamp
// makes lexicographic id order equal join order, which is how the shared
// document encodes "player 1" without an explicit ordinal.
type Identity struct {
	path string

	mu sync.Mutex
}

func NewIdentity(path string) *Identity {
	return &Identity{path: path}
}

// PlayerID returns the remembered id for the room code, minting and
// persisting one on first use.
func (i *Identity) PlayerID(code string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	ids, err := i.load()
	if err != nil {
		return "", err
	}
	if id, ok := ids[code]; ok {
		return id, nil
	}

	id := mintPlayerID()
	ids[code] = id
	if err := i.save(ids); err != nil {
		return "", err
	}
	return id, nil
}

// Forget drops the remembered id for a room, e.g. after its game ended.
func (i *Identity) Forget(code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	ids, err := i.load()
	if err != nil {
		return err
	}
	if _, ok := ids[code]; !ok {
		return nil
	}
	delete(ids, code)
	return i.save(ids)
}

func (i *Identity) load() (map[string]string, error) {
	data, err := os.ReadFile(i.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	ids := map[string]string{}
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decoding identity file: %w", err)
	}
	return ids, nil
}

func (i *Identity) save(ids map[string]string) error {
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(i.path, data, 0o600); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	return nil
}

func mintPlayerID() string {
	fragment := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("p%d_%s", time.Now().UnixMilli(), fragment)
}
