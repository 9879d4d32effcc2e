package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Makar0n1/art-automation/pkg/log"
	"github.com/Makar0n1/art-automation/pkg/types"
)

// session is one live websocket connection. Reads and writes each have a
// dedicated goroutine; the send channel is the only cross-goroutine path.
type session struct {
	gateway *Gateway
	conn    *websocket.Conn
	userID  string
	send    chan types.Event
	done    chan struct{}
	rooms   map[string]struct{}
}

// outboundFrame is the wire shape relayed to the browser.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (s *session) readLoop() {
	defer func() {
		s.gateway.unregister(s)
		s.conn.Close()
		// Relay may still hold a reference to this session, so the send
		// channel is never closed; done stops the write loop instead.
		close(s.done)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger := log.WithComponent("gateway")
				logger.Debug().Err(err).Msg("session closed unexpectedly")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		room := msg.Room
		if room == "" && msg.GenerationID != "" {
			room = types.GenerationRoom(msg.GenerationID)
		}
		if room == "" {
			continue
		}

		switch msg.Event {
		case "generation:subscribe":
			s.gateway.join(s, room)
		case "generation:unsubscribe":
			s.gateway.leave(s, room)
		}
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case event := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			frame := outboundFrame{Event: event.Event, Data: event.Data}
			if err := s.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
