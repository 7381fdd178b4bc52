package store

import (
	"context"

	"letterduel/internal/engine"
)

// SnapshotFunc receives the full current room document on every observed
// change, including one initial delivery. A nil room means the code is
// unused. Callbacks must tolerate duplicate identical deliveries.
type SnapshotFunc func(room *engine.Room)

type Subscription interface {
	// Cancel stops snapshot delivery. Safe to call more than once.
	Cancel()
}

// Store is the capability a game client holds on the shared room documents.
// Patch merges the named field paths last-writer-wins without disturbing
// unnamed fields; a patch onto an absent document starts from the zero
// document, which is what makes concurrent lazy creation benign.
type Store interface {
	Subscribe(ctx context.Context, code string, fn SnapshotFunc) (Subscription, error)
	Patch(ctx context.Context, code string, p engine.Patch) error
}
