// Package wsstore implements the room store capability over a websocket
// connection to a relay server, so two clients on different machines can
// share a room document.
package wsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"letterduel/internal/engine"
	"letterduel/internal/store"
	"letterduel/pkg/types"
)

// Client is a store.Store talking to a relay. One Client carries at most one
// active room subscription, which matches how a game client behaves: it
// abandons a room before entering another.
type Client struct {
	conn *websocket.Conn
	log  *zap.Logger

	mu      sync.Mutex
	seq     int
	pending map[int]chan string // seq -> error text, empty string on ack
	room    string
	sub     *wsSubscription
	readErr error
	done    chan struct{}
}

func Dial(ctx context.Context, url string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay: %w", err)
	}
	c := &Client{
		conn:    conn,
		log:     log,
		pending: make(map[int]chan string),
		done:    make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Client) Subscribe(ctx context.Context, code string, fn store.SnapshotFunc) (store.Subscription, error) {
	sub := &wsSubscription{client: c, code: code, out: make(chan *engine.Room, 16)}

	// Callbacks run on their own goroutine so a callback that issues a
	// patch never blocks the read loop the ack arrives on.
	go func() {
		for doc := range sub.out {
			fn(doc)
		}
	}()

	c.mu.Lock()
	if old := c.sub; old != nil {
		old.closeOut()
	}
	c.room = code
	c.sub = sub
	c.mu.Unlock()

	if err := c.send(ctx, types.ClientMessage{Type: types.MsgSubscribe, Room: code}); err != nil {
		sub.Cancel()
		return nil, err
	}
	return sub, nil
}

func (c *Client) Patch(ctx context.Context, code string, p engine.Patch) error {
	fields := make(map[string]json.RawMessage, len(p))
	for path, value := range p {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding patch path %q: %w", path, err)
		}
		fields[path] = data
	}

	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return err
	}
	c.seq++
	seq := c.seq
	reply := make(chan string, 1)
	c.pending[seq] = reply
	c.mu.Unlock()

	if err := c.send(ctx, types.ClientMessage{Type: types.MsgPatch, Room: code, Seq: seq, Fields: fields}); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return err
	}

	select {
	case text := <-reply:
		if text != "" {
			return fmt.Errorf("relay rejected patch: %s", text)
		}
		return nil
	case <-c.done:
		return c.failure()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) send(ctx context.Context, msg types.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("writing to relay: %w", err)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			c.readErr = fmt.Errorf("relay connection lost: %w", err)
			if c.sub != nil {
				c.sub.closeOut()
				c.sub = nil
			}
			c.mu.Unlock()
			return
		}

		var sm types.ServerMessage
		if err := json.Unmarshal(data, &sm); err != nil {
			c.log.Warn("bad relay message", zap.Error(err))
			continue
		}

		switch sm.Type {
		case types.MsgSnapshot:
			c.mu.Lock()
			sub := c.sub
			room := c.room
			c.mu.Unlock()
			if sub == nil || sm.Room != room {
				break
			}
			select {
			case sub.out <- sm.Doc:
			default:
				// Subscriber stopped draining; dropping a snapshot is safe
				// because the next delivery carries the full document.
				c.log.Warn("snapshot dropped", zap.String("code", room))
			}

		case types.MsgAck, types.MsgError:
			c.mu.Lock()
			reply, ok := c.pending[sm.Seq]
			delete(c.pending, sm.Seq)
			c.mu.Unlock()
			if ok {
				reply <- sm.Error
			} else if sm.Type == types.MsgError {
				c.log.Warn("relay error", zap.String("error", sm.Error))
			}
		}
	}
}

func (c *Client) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return errors.New("relay connection closed")
}

type wsSubscription struct {
	client *Client
	code   string
	out    chan *engine.Room
	once   sync.Once
}

func (s *wsSubscription) closeOut() {
	s.once.Do(func() { close(s.out) })
}

// Cancel stops local delivery. The relay drops the server-side subscription
// when the connection closes or another room is subscribed, which is fine:
// a client abandoning a room closes the connection.
func (s *wsSubscription) Cancel() {
	s.client.mu.Lock()
	if s.client.sub == s {
		s.client.sub = nil
	}
	s.client.mu.Unlock()
	s.closeOut()
}
