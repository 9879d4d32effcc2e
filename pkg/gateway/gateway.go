package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Makar0n1/art-automation/pkg/log"
	"github.com/Makar0n1/art-automation/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Authenticator validates a session token and returns the principal id.
type Authenticator func(token string) (string, error)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP surface already enforces CORS; the gateway accepts any
	// origin that got this far.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Gateway owns all live sessions of one api process and the room
// membership map the bus relay consults.
type Gateway struct {
	auth Authenticator

	mu       sync.RWMutex
	rooms    map[string]map[*session]struct{}
	sessions map[*session]struct{}
}

// New creates a gateway.
func New(auth Authenticator) *Gateway {
	return &Gateway{
		auth:     auth,
		rooms:    make(map[string]map[*session]struct{}),
		sessions: make(map[*session]struct{}),
	}
}

// clientMessage is one inbound frame from a session.
type clientMessage struct {
	Event        string `json:"event"`
	GenerationID string `json:"generationId,omitempty"`
	Room         string `json:"room,omitempty"`
}

// ServeHTTP upgrades one connection. The token comes from the "token"
// query parameter or a bearer header; invalid tokens are rejected before
// the upgrade.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
			token = h[7:]
		}
	}
	userID, err := g.auth(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := log.WithComponent("gateway")
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &session{
		gateway: g,
		conn:    conn,
		userID:  userID,
		send:    make(chan types.Event, sendBuffer),
		done:    make(chan struct{}),
		rooms:   make(map[string]struct{}),
	}
	g.register(s)
	go s.writeLoop()
	go s.readLoop()
}

// Relay delivers one bus event to every session joined to its room.
func (g *Gateway) Relay(event types.Event) {
	g.mu.RLock()
	members := g.rooms[event.Room]
	targets := make([]*session, 0, len(members))
	for s := range members {
		targets = append(targets, s)
	}
	g.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.send <- event:
		default:
			// Slow consumer; drop the event rather than block the relay.
			logger := log.WithComponent("gateway")
			logger.Warn().
				Str("room", event.Room).
				Msg("dropping event for slow session")
		}
	}
}

// Run relays bus events until the channel closes or ctx is cancelled.
func (g *Gateway) Run(ctx context.Context, events <-chan types.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			g.Relay(event)
		}
	}
}

// SessionCount reports the number of live sessions.
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

func (g *Gateway) register(s *session) {
	g.mu.Lock()
	g.sessions[s] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) unregister(s *session) {
	g.mu.Lock()
	delete(g.sessions, s)
	for room := range s.rooms {
		g.leaveLocked(s, room)
	}
	g.mu.Unlock()
}

func (g *Gateway) join(s *session, room string) {
	g.mu.Lock()
	if g.rooms[room] == nil {
		g.rooms[room] = make(map[*session]struct{})
	}
	g.rooms[room][s] = struct{}{}
	s.rooms[room] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) leave(s *session, room string) {
	g.mu.Lock()
	g.leaveLocked(s, room)
	g.mu.Unlock()
}

func (g *Gateway) leaveLocked(s *session, room string) {
	if members, ok := g.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
	delete(s.rooms, room)
}
