package app

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"sharedlists/api/internal/auth"
	"sharedlists/api/internal/store"
	"sharedlists/api/internal/subscription"

	"github.com/gorilla/websocket"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = 50 * time.Second
	liveOutbox     = 32
)

const (
	scopeSpaces  = "spaces"
	scopeMembers = "members"
	scopeLists   = "lists"
	scopeItems   = "items"
)

type liveRequest struct {
	Op    string `json:"op"`
	Scope string `json:"scope"`
	ID    string `json:"id"`
}

type liveMessage struct {
	Scope string `json:"scope"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *HTTPServer) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.corsOrigin == "*" || origin == s.corsOrigin
		},
	}
}

// handleLive serves the websocket feed. Each scope holds at most one live
// query; watching a scope again replaces the previous one and closing the
// socket ends all of them.
func (s *HTTPServer) handleLive(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		writeMappedError(w, err)
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade: %v", err)
		return
	}

	client := &liveClient{
		conn:    conn,
		service: s.service,
		actor:   session.Actor(),
		out:     make(chan liveMessage, liveOutbox),
		done:    make(chan struct{}),
		subs:    map[string]subscription.Subscription{},
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.writeLoop()
	}()
	client.readLoop(r)
	client.stop()
	client.unwatchAll()
	<-writerDone
	_ = conn.Close()
}

type liveClient struct {
	conn    *websocket.Conn
	service *Service
	actor   Actor

	out      chan liveMessage
	done     chan struct{}
	stopOnce sync.Once

	// subs is only touched by the read loop.
	subs map[string]subscription.Subscription
}

func (c *liveClient) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// send queues a message for the writer. It gives up once the connection is
// closing so a live query callback never blocks teardown.
func (c *liveClient) send(msg liveMessage) {
	select {
	case c.out <- msg:
	case <-c.done:
	}
}

func (c *liveClient) readLoop(r *http.Request) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		var req liveRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("live: read: %v", err)
			}
			return
		}
		switch req.Op {
		case "watch":
			c.watch(r, req)
		case "unwatch":
			c.unwatch(req.Scope)
		default:
			c.send(liveMessage{Scope: req.Scope, ID: req.ID, Error: "op must be watch or unwatch"})
		}
	}
}

func (c *liveClient) writeLoop() {
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.stop()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteWait))
			return
		}
	}
}

func (c *liveClient) watch(r *http.Request, req liveRequest) {
	scope, id := req.Scope, strings.TrimSpace(req.ID)
	onError := func(err error) {
		_, _, message, _ := mapError(err)
		c.send(liveMessage{Scope: scope, ID: id, Error: message})
	}

	c.unwatch(scope)

	var (
		sub subscription.Subscription
		err error
	)
	switch scope {
	case scopeSpaces:
		sub = c.service.WatchSpaces(c.actor, func(spaces []store.Space) {
			c.send(liveMessage{Scope: scope, Data: spacesPayload(spaces)})
		}, onError)
	case scopeMembers:
		sub, err = c.service.WatchMembers(r.Context(), c.actor, id, func(members []store.Membership) {
			c.send(liveMessage{Scope: scope, ID: id, Data: membersPayload(members)})
		}, onError)
	case scopeLists:
		sub, err = c.service.WatchLists(r.Context(), c.actor, id, func(lists []store.List) {
			c.send(liveMessage{Scope: scope, ID: id, Data: listsPayload(lists)})
		}, onError)
	case scopeItems:
		sub, err = c.service.WatchItems(r.Context(), c.actor, id, func(items []store.Item) {
			c.send(liveMessage{Scope: scope, ID: id, Data: itemsPayload(items)})
		}, onError)
	default:
		c.send(liveMessage{Scope: scope, ID: id, Error: "unknown scope"})
		return
	}
	if err != nil {
		onError(err)
		return
	}
	c.subs[scope] = sub
}

func (c *liveClient) unwatch(scope string) {
	if sub, ok := c.subs[scope]; ok {
		delete(c.subs, scope)
		sub.Unsubscribe()
	}
}

func (c *liveClient) unwatchAll() {
	for scope := range c.subs {
		c.unwatch(scope)
	}
}
