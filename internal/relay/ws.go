package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"letterduel/internal/engine"
	"letterduel/internal/store"
	"letterduel/pkg/types"
)

const writeTimeout = 3 * time.Second

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx := r.Context()
	log := s.log.With(zap.String("remote", r.RemoteAddr))

	// Snapshot pushes come from the subscription goroutine and acks from the
	// read loop below, so writes are serialized here.
	var writeMu sync.Mutex
	send := func(msg types.ServerMessage) {
		payload, err := json.Marshal(msg)
		if err != nil {
			log.Warn("encoding server message", zap.Error(err))
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := conn.Write(wctx, websocket.MessageText, payload); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
		}
	}

	// Each connection carries at most one room subscription; a repeated
	// Subscribe moves it.
	var sub store.Subscription
	defer func() {
		if sub != nil {
			sub.Cancel()
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			send(types.ServerMessage{Type: types.MsgError, Error: "bad json"})
			continue
		}

		switch cm.Type {
		case types.MsgSubscribe:
			if cm.Room == "" {
				send(types.ServerMessage{Type: types.MsgError, Error: "missing room"})
				continue
			}
			if sub != nil {
				sub.Cancel()
				sub = nil
			}
			code := cm.Room
			next, err := s.store.Subscribe(ctx, code, func(room *engine.Room) {
				send(types.ServerMessage{Type: types.MsgSnapshot, Room: code, Doc: room})
			})
			if err != nil {
				send(types.ServerMessage{Type: types.MsgError, Room: code, Error: err.Error()})
				continue
			}
			sub = next
			log.Info("subscribed", zap.String("code", code))

		case types.MsgPatch:
			patch, err := engine.DecodePatch(cm.Fields)
			if err != nil {
				send(types.ServerMessage{Type: types.MsgError, Room: cm.Room, Seq: cm.Seq, Error: err.Error()})
				continue
			}
			if err := s.store.Patch(ctx, cm.Room, patch); err != nil {
				send(types.ServerMessage{Type: types.MsgError, Room: cm.Room, Seq: cm.Seq, Error: err.Error()})
				continue
			}
			send(types.ServerMessage{Type: types.MsgAck, Room: cm.Room, Seq: cm.Seq})

		default:
			send(types.ServerMessage{Type: types.MsgError, Error: "unknown type"})
		}
	}
}
