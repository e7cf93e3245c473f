package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"pickside-quiz-service/internal/app"
)

// WSHandler upgrades HTTP requests to websockets and wires them into
// the session. It validates message shapes at the boundary; anything
// malformed is logged and dropped without a reply.
type WSHandler struct {
	session  *app.Session
	upgrader websocket.Upgrader
}

func NewWSHandler(session *app.Session) *WSHandler {
	return &WSHandler{
		session: session,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

type answerPayload struct {
	Value *int `json:"value"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

var errSlowClient = errors.New("send buffer full")

// client is one websocket connection. It satisfies app.Recipient with a
// non-blocking push into the writer goroutine's channel.
type client struct {
	conn  *websocket.Conn
	send  chan outboundMessage
	token string
	host  bool
}

func (c *client) Deliver(kind string, payload any) error {
	select {
	case c.send <- outboundMessage{Type: kind, Payload: payload}:
		return nil
	default:
		return errSlowClient
	}
}

// ServeWS handles one client connection for its whole lifetime.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan outboundMessage, 32),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(c, inbound)
	}

	h.session.Disconnect(c)
	close(c.send)
	<-writerDone
	_ = conn.Close()
}

func (h *WSHandler) dispatch(c *client, msg inboundMessage) {
	switch msg.Type {
	case "join":
		var payload joinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Token == "" {
			log.Printf("drop join: bad payload")
			return
		}
		c.token = payload.Token
		h.session.Join(payload.Token, payload.Name, c)

	case "host_join":
		c.host = true
		h.session.JoinHost(c)

	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Value == nil {
			log.Printf("drop answer: bad payload")
			return
		}
		if c.token == "" {
			log.Printf("drop answer: client never joined")
			return
		}
		h.session.Submit(c.token, *payload.Value)

	case "start_round":
		if h.requireHost(c, msg.Type) {
			h.session.StartRound()
		}

	case "show_leaderboard":
		if h.requireHost(c, msg.Type) {
			h.session.ShowLeaderboard()
		}

	case "hide_leaderboard":
		if h.requireHost(c, msg.Type) {
			h.session.HideLeaderboard()
		}

	case "reset":
		if h.requireHost(c, msg.Type) {
			h.session.Reset()
		}

	default:
		log.Printf("drop message: unknown type %q", msg.Type)
	}
}

func (h *WSHandler) requireHost(c *client, kind string) bool {
	if !c.host {
		log.Printf("drop %s: sender is not a host", kind)
		return false
	}
	return true
}
