package store

import (
	"context"
	"fmt"

	"letterduel/internal/engine"
)

type memMsg interface{ isMemMsg() }

type subscribeMsg struct {
	Code   string
	Outbox chan *engine.Room
	Reply  chan int // subscriber id
}

func (subscribeMsg) isMemMsg() {}

type unsubscribeMsg struct {
	Code string
	ID   int
}

func (unsubscribeMsg) isMemMsg() {}

type patchMsg struct {
	Code  string
	Patch engine.Patch
	Reply chan error
}

func (patchMsg) isMemMsg() {}

// getDoc is test-only: reflect the canonical document without data races.
type getDoc struct {
	Code  string
	Reply chan *engine.Room
}

func (getDoc) isMemMsg() {}

type shutdownMsg struct{}

func (shutdownMsg) isMemMsg() {}

type memRoom struct {
	doc  *engine.Room // nil until first accepted patch
	subs map[int]chan *engine.Room
}

// Memory is an in-process Store: a single actor goroutine owns every room
// document and fans snapshots out to subscriber outboxes. It backs the relay
// daemon's default mode and every test that needs real store semantics
// without a network.
type Memory struct {
	inbox  chan memMsg
	rooms  map[string]*memRoom
	nextID int
	ctx    context.Context
	cancel context.CancelFunc
}

func NewMemory(parent context.Context) *Memory {
	ctx, cancel := context.WithCancel(parent)
	m := &Memory{
		inbox:  make(chan memMsg, 64),
		rooms:  make(map[string]*memRoom),
		ctx:    ctx,
		cancel: cancel,
	}
	go m.loop()
	return m
}

func (m *Memory) Subscribe(ctx context.Context, code string, fn SnapshotFunc) (Subscription, error) {
	outbox := make(chan *engine.Room, 16)
	reply := make(chan int, 1)
	select {
	case m.inbox <- subscribeMsg{Code: code, Outbox: outbox, Reply: reply}:
	case <-m.ctx.Done():
		return nil, fmt.Errorf("memory store: %w", m.ctx.Err())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	id := <-reply

	// One goroutine per subscriber keeps delivery ordered per subscription.
	go func() {
		for doc := range outbox {
			fn(doc)
		}
	}()

	return &memSubscription{store: m, code: code, id: id}, nil
}

func (m *Memory) Patch(ctx context.Context, code string, p engine.Patch) error {
	reply := make(chan error, 1)
	select {
	case m.inbox <- patchMsg{Code: code, Patch: p, Reply: reply}:
	case <-m.ctx.Done():
		return fmt.Errorf("memory store: %w", m.ctx.Err())
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes every subscriber outbox and stops the actor.
func (m *Memory) Shutdown() {
	select {
	case m.inbox <- shutdownMsg{}:
	case <-m.ctx.Done():
	}
}

func (m *Memory) loop() {
	for {
		select {
		case <-m.ctx.Done():
			m.closeAll()
			return

		case raw := <-m.inbox:
			switch msg := raw.(type) {
			case subscribeMsg:
				room := m.room(msg.Code)
				m.nextID++
				room.subs[m.nextID] = msg.Outbox
				// Initial delivery: the current document, nil when the
				// code is unused.
				msg.Outbox <- room.doc
				msg.Reply <- m.nextID

			case unsubscribeMsg:
				if room, ok := m.rooms[msg.Code]; ok {
					if outbox, ok := room.subs[msg.ID]; ok {
						close(outbox)
						delete(room.subs, msg.ID)
					}
				}

			case patchMsg:
				room := m.room(msg.Code)
				base := engine.Room{}
				if room.doc != nil {
					base = *room.doc
				}
				next, err := engine.Apply(base, msg.Patch)
				if err != nil {
					msg.Reply <- err
					break
				}
				room.doc = &next
				msg.Reply <- nil
				m.broadcast(room)

			case getDoc:
				if room, ok := m.rooms[msg.Code]; ok {
					msg.Reply <- room.doc
				} else {
					msg.Reply <- nil
				}

			case shutdownMsg:
				m.closeAll()
				m.cancel()
				return
			}
		}
	}
}

func (m *Memory) room(code string) *memRoom {
	room, ok := m.rooms[code]
	if !ok {
		room = &memRoom{subs: make(map[int]chan *engine.Room)}
		m.rooms[code] = room
	}
	return room
}

func (m *Memory) broadcast(room *memRoom) {
	for id, outbox := range room.subs {
		select {
		case outbox <- room.doc:
			// ok
		default:
			// Subscriber stopped draining; drop it rather than stall the
			// whole store.
			close(outbox)
			delete(room.subs, id)
		}
	}
}

func (m *Memory) closeAll() {
	for _, room := range m.rooms {
		for id, outbox := range room.subs {
			close(outbox)
			delete(room.subs, id)
		}
	}
}

type memSubscription struct {
	store *Memory
	code  string
	id    int
}

func (s *memSubscription) Cancel() {
	select {
	case s.store.inbox <- unsubscribeMsg{Code: s.code, ID: s.id}:
	case <-s.store.ctx.Done():
	}
}
