package events

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Server exposes a Hub to windows running in other processes. A peer
// connects with ?label=<window> and exchanges Event frames as JSON.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local control channel only
			},
		},
	}
}

// remotePeer is a hub sink backed by a websocket connection.
type remotePeer struct {
	out chan Event
}

func (p *remotePeer) deliver(ev Event) bool {
	select {
	case p.out <- ev:
		return true
	default:
		return false
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := label.Label(r.URL.Query().Get("label"))
	if !l.Valid() {
		http.Error(w, fmt.Sprintf("unknown window label %q", l), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("events").Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := logger.WithWindow("events", string(l))
	log.Info().Str("remote", r.RemoteAddr).Msg("Remote window connected")

	peer := &remotePeer{out: make(chan Event, queueSize)}
	s.hub.attach(l, peer)
	defer s.hub.detach(l, peer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Msg("Remote window read failed")
				}
				return
			}
			ev.Source = l
			s.hub.route(ev)
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			log.Info().Msg("Remote window disconnected")
			return
		case <-r.Context().Done():
			return
		case ev := <-peer.out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Warn().Err(err).Msg("Failed to forward event")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Client is a Bus for a window living in another process than the hub.
type Client struct {
	*dispatcher
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects window l to the event endpoint at rawURL (ws:// or http://).
func Dial(ctx context.Context, rawURL string, l label.Label) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse event url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("label", string(l))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &Client{dispatcher: newDispatcher(l), conn: conn}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.dispatcher.close()
	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if !c.closed() {
				logger.WithWindow("events", string(c.label)).Warn().Err(err).Msg("Event connection lost")
			}
			return
		}
		c.deliver(ev)
	}
}

func (c *Client) Label() label.Label { return c.label }

func (c *Client) Emit(_ context.Context, name Name, target label.Label) error {
	if c.closed() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(Event{Name: name, Source: c.label, Target: target})
}

func (c *Client) Listen(name Name, h Handler) func() {
	return c.listen(name, h)
}

// Flush blocks until events already received are handled.
func (c *Client) Flush() { c.flush() }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	c.dispatcher.close()
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}
