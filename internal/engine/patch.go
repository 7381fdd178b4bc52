package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Patch is a partial room update: slash-separated field paths mapped to
// replacement values. Each path is merged last-writer-wins without touching
// any field the patch does not name, mirroring the remote store's semantics.
//
// Recognized paths:
//
//	phase                   Phase
//	letter                  string
//	players                 map[string]Player
//	players/<id>            Player
//	players/<id>/answers    Answers
//	scores                  map[string]int
type Patch map[string]any

// Apply merges p into a copy of r. The input room is never mutated, so a
// store can hand the pre-patch document to late subscribers safely. An
// unknown path or a value of the wrong type fails the whole patch.
func Apply(r Room, p Patch) (Room, error) {
	out := r.Clone()
	if out.Players == nil {
		out.Players = map[string]Player{}
	}
	for path, value := range p {
		if err := applyField(&out, path, value); err != nil {
			return Room{}, err
		}
	}
	return out, nil
}

func applyField(r *Room, path string, value any) error {
	switch {
	case path == "phase":
		v, ok := value.(Phase)
		if !ok {
			return typeErr(path, value)
		}
		r.Phase = v
	case path == "letter":
		v, ok := value.(string)
		if !ok {
			return typeErr(path, value)
		}
		r.Letter = v
	case path == "players":
		v, ok := value.(map[string]Player)
		if !ok {
			return typeErr(path, value)
		}
		players := make(map[string]Player, len(v))
		for id, p := range v {
			players[id] = p
		}
		r.Players = players
	case path == "scores":
		v, ok := value.(map[string]int)
		if !ok {
			return typeErr(path, value)
		}
		scores := make(map[string]int, len(v))
		for id, s := range v {
			scores[id] = s
		}
		r.Scores = scores
	case strings.HasPrefix(path, "players/"):
		rest := strings.TrimPrefix(path, "players/")
		id, sub, nested := strings.Cut(rest, "/")
		if id == "" {
			return fmt.Errorf("patch path %q: empty player id", path)
		}
		if !nested {
			v, ok := value.(Player)
			if !ok {
				return typeErr(path, value)
			}
			r.Players[id] = v
			return nil
		}
		if sub != "answers" {
			return fmt.Errorf("unknown patch path %q", path)
		}
		v, ok := value.(Answers)
		if !ok {
			return typeErr(path, value)
		}
		p := r.Players[id]
		p.ID = id
		p.Answers = v
		r.Players[id] = p
	default:
		return fmt.Errorf("unknown patch path %q", path)
	}
	return nil
}

func typeErr(path string, value any) error {
	return fmt.Errorf("patch path %q: unexpected value type %T", path, value)
}

// DecodePatch re-types raw JSON patch values per path, for patches arriving
// over the wire or read back out of a JSONB column.
func DecodePatch(raw map[string]json.RawMessage) (Patch, error) {
	p := make(Patch, len(raw))
	for path, data := range raw {
		value, err := decodeField(path, data)
		if err != nil {
			return nil, err
		}
		p[path] = value
	}
	return p, nil
}

func decodeField(path string, data json.RawMessage) (any, error) {
	switch {
	case path == "phase":
		var v Phase
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, decodeErr(path, err)
		}
		switch v {
		case PhaseLobby, PhasePlaying, PhaseResults:
		default:
			return nil, fmt.Errorf("patch path %q: unknown phase %q", path, v)
		}
		return v, nil
	case path == "letter":
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, decodeErr(path, err)
		}
		return v, nil
	case path == "players":
		var v map[string]Player
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, decodeErr(path, err)
		}
		if v == nil {
			v = map[string]Player{}
		}
		return v, nil
	case path == "scores":
		var v map[string]int
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, decodeErr(path, err)
		}
		return v, nil
	case strings.HasPrefix(path, "players/"):
		rest := strings.TrimPrefix(path, "players/")
		if _, sub, nested := strings.Cut(rest, "/"); nested {
			if sub != "answers" {
				return nil, fmt.Errorf("unknown patch path %q", path)
			}
			var v Answers
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, decodeErr(path, err)
			}
			return v, nil
		}
		var v Player
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, decodeErr(path, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown patch path %q", path)
	}
}

func decodeErr(path string, err error) error {
	return fmt.Errorf("patch path %q: %w", path, err)
}
