package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wricardo/quizrooms/game/directory"
	"github.com/wricardo/quizrooms/game/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Default time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Default maximum message size allowed from peer.
	defaultReadLimit = 8192

	// Default number of outbound frames buffered per client.
	defaultSendBuffer = 256
)

// Handler consumes what clients send
type Handler interface {
	// HandleMessage is called for every frame a client reads, in order
	HandleMessage(ctx context.Context, conn directory.Conn, data []byte)

	// HandleDisconnect is called once after a client's connection ends
	HandleDisconnect(ctx context.Context, conn directory.Conn)

	// Reject answers err to conn without routing a frame
	Reject(conn directory.Conn, err error)
}

// Options configures a Hub. Zero values select defaults.
type Options struct {
	ReadLimit      int64
	SendBuffer     int
	RatePerSecond  float64 // 0 disables inbound rate limiting
	Burst          int
	PongWait       time.Duration
	AllowedOrigins []string // empty allows every origin
	Logger         *zap.Logger

	// OnCountChange is called with the number of open clients after every
	// register and unregister
	OnCountChange func(n int)
}

// Hub maintains the set of active clients
type Hub struct {
	handler  Handler
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	count      atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	once   sync.Once
}

// NewHub creates a hub that hands inbound frames to handler
func NewHub(handler Handler, opts Options) *Hub {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		handler:    handler,
		opts:       opts,
		logger:     opts.Logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		quit:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run starts the hub's event loop. It returns when ctx is done or Close is
// called, closing every client. The hub cannot be run again afterwards.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.Close()
		h.closeAll()
	}()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.logger.Debug("client registered",
				zap.String("conn", client.id),
				zap.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.setCount(len(h.clients))
				h.logger.Debug("client unregistered",
					zap.String("conn", client.id),
					zap.Int("clients", len(h.clients)))
			}

		case <-ctx.Done():
			return
		case <-h.quit:
			return
		}
	}
}

// Close stops the event loop and cancels in-flight handler calls
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.quit)
		h.cancel()
	})
}

// Count returns the number of open clients
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// ServeWS upgrades the request and starts the client's pumps
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.opts.SendBuffer),
	}
	if h.opts.RatePerSecond > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(h.opts.RatePerSecond), h.opts.Burst)
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

func (h *Hub) closeAll() {
	for client := range h.clients {
		delete(h.clients, client)
		client.close()
	}
	h.setCount(0)
}

func (h *Hub) setCount(n int) {
	h.count.Store(int64(n))
	if h.opts.OnCountChange != nil {
		h.opts.OnCountChange(n)
	}
}

// Client is one websocket connection
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// Send queues data without blocking. A client whose buffer is full is
// closed and the frame dropped.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.hub.logger.Warn("slow client closed", zap.String("conn", c.id))
		c.closed = true
		close(c.send)
		return false
	}
}

// close ends the write pump; safe to call more than once
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps frames from the connection to the handler
func (c *Client) readPump() {
	defer func() {
		c.hub.handler.HandleDisconnect(c.hub.ctx, c)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	pongWait := c.hub.opts.PongWait
	c.conn.SetReadLimit(c.hub.opts.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			c.hub.handler.Reject(c, fmt.Errorf("%w: expected a text frame", protocol.ErrMalformed))
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.handler.Reject(c, protocol.ErrRateLimited)
			continue
		}
		c.hub.handler.HandleMessage(c.hub.ctx, c, data)
	}
}

// writePump pumps frames from the send buffer to the connection, one frame
// per message
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the buffer was closed
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
