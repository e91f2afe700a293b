package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/utils"
)

// ErrNotConnected is returned when sending while the connection is down
var ErrNotConnected = errors.New("not connected to collector")

// Client keeps a WebSocket connection to an event collector, reconnecting
// with exponential backoff whenever it drops
type Client struct {
	url        string
	apiKey     string
	instanceID string
	version    string

	conn      *websocket.Conn
	connMutex sync.RWMutex
	writeMu   sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc

	messageHandlers   map[string]MessageHandler
	onConnectHandlers []OnConnectHandler
	handlerMutex      sync.RWMutex

	outboundChan chan *Message
	dropped      atomic.Uint64

	logger *logger.Logger

	backoff      time.Duration
	maxBackoff   time.Duration
	pingInterval time.Duration

	reconnecting   bool
	reconnectMutex sync.Mutex
}

// NewClient creates a client for the collector at collectorURL. http and
// https URLs are dialed as ws and wss.
func NewClient(collectorURL, version string, queueSize int, log *logger.Logger) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{
		url:             collectorURL,
		version:         version,
		messageHandlers: make(map[string]MessageHandler),
		outboundChan:    make(chan *Message, queueSize),
		logger:          log,
		backoff:         time.Second,
		maxBackoff:      time.Minute,
		pingInterval:    30 * time.Second,
	}
}

// SetBackoff sets the first and the longest wait between connection attempts
func (c *Client) SetBackoff(initial, longest time.Duration) {
	c.backoff, c.maxBackoff = initial, longest
}

// Connect dials the collector. A failed first attempt is retried in the
// background, so Connect never fails.
func (c *Client) Connect(ctx context.Context, apiKey, instanceID string) {
	c.apiKey = apiKey
	c.instanceID = instanceID
	c.ctx, c.cancel = context.WithCancel(ctx)

	go c.processOutboundMessages()

	if err := c.connectOnce(); err != nil {
		c.logger.Warn("[Uplink] Connection failed: %v", err)
		c.logger.Info("[Uplink] Will retry in background...")
		go c.reconnect()
	}
}

func (c *Client) dialURL() (string, error) {
	raw := c.url
	if after, ok := strings.CutPrefix(raw, "http://"); ok {
		raw = "ws://" + after
	} else if after, ok := strings.CutPrefix(raw, "https://"); ok {
		raw = "wss://" + after
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid collector url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported collector scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("id", c.instanceID)
	q.Set("os", runtime.GOOS)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connectOnce performs a single connection attempt
func (c *Client) connectOnce() error {
	wsURL, err := c.dialURL()
	if err != nil {
		return err
	}
	c.logger.Verb("[Uplink] Connecting to %s", wsURL)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, _, err := dialer.DialContext(c.ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to collector: %w", err)
	}

	c.connMutex.Lock()
	c.conn = conn
	c.connMutex.Unlock()

	c.logger.Info("[Uplink] Connected to collector")

	hello := Hello{Instance: c.instanceID, Hosts: utils.HostAddresses(), OS: runtime.GOOS, Version: c.version}
	if err := c.Send(TypeHello, hello); err != nil {
		c.drop(conn)
		return err
	}

	c.handlerMutex.RLock()
	handlers := make([]OnConnectHandler, len(c.onConnectHandlers))
	copy(handlers, c.onConnectHandlers)
	c.handlerMutex.RUnlock()

	for _, handler := range handlers {
		if err := handler(c.ctx); err != nil {
			c.logger.Warn("[Uplink] OnConnect handler error: %v", err)
		}
	}

	connCtx, stop := context.WithCancel(c.ctx)
	go c.readMessages(conn, stop)
	go c.keepalive(connCtx, conn)

	return nil
}

// drop forgets conn if it is still the current connection
func (c *Client) drop(conn *websocket.Conn) {
	c.connMutex.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMutex.Unlock()
	conn.Close()
}

// readMessages reads frames from conn until it fails
func (c *Client) readMessages(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("[Uplink] Read error: %v", err)
			c.drop(conn)
			go c.reconnect()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("[Uplink] Failed to unmarshal message: %v", err)
			continue
		}

		c.handlerMutex.RLock()
		handler, exists := c.messageHandlers[msg.Type]
		c.handlerMutex.RUnlock()

		if !exists {
			c.logger.Verb("[Uplink] No handler for message type: %s", msg.Type)
			continue
		}
		if err := handler(c.ctx, &msg); err != nil {
			c.logger.Warn("[Uplink] Handler error for %s: %v", msg.Type, err)
		}
	}
}

// Send writes one frame now
func (c *Client) Send(msgType string, data any) error {
	c.connMutex.RLock()
	conn := c.conn
	c.connMutex.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	msgBytes, err := json.Marshal(Message{Type: msgType, Data: dataBytes})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Enqueue queues a frame for the sender goroutine. It never blocks; frames
// that do not fit are dropped and counted.
func (c *Client) Enqueue(msgType string, data json.RawMessage) bool {
	select {
	case c.outboundChan <- &Message{Type: msgType, Data: data}:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Dropped returns how many frames were discarded
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// SetMessageHandler adds a message handler for a specific type
func (c *Client) SetMessageHandler(msgType string, handler MessageHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.messageHandlers[msgType] = handler
}

// AddOnConnectHandler adds a handler to be called on connection
func (c *Client) AddOnConnectHandler(handler OnConnectHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.onConnectHandlers = append(c.onConnectHandlers, handler)
}

// keepalive pings conn until ctx ends
func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warn("[Uplink] Ping failed: %v", err)
			}
		}
	}
}

// processOutboundMessages sends queued frames while connected
func (c *Client) processOutboundMessages() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.outboundChan:
			if err := c.Send(msg.Type, msg.Data); err != nil {
				c.dropped.Add(1)
				c.logger.Huge("[Uplink] Dropping %s frame: %v", msg.Type, err)
			}
		}
	}
}

// reconnect retries with exponential backoff until connected or closed
func (c *Client) reconnect() {
	c.reconnectMutex.Lock()
	if c.reconnecting {
		c.reconnectMutex.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMutex.Unlock()

	defer func() {
		c.reconnectMutex.Lock()
		c.reconnecting = false
		c.reconnectMutex.Unlock()
	}()

	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}

		c.logger.Verb("[Uplink] Reconnection attempt #%d...", attempt)
		if err := c.connectOnce(); err != nil {
			c.logger.Warn("[Uplink] Reconnect failed: %v (retrying in %v)", err, backoff)
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		c.logger.Info("[Uplink] Reconnected on attempt #%d", attempt)
		return
	}
}

// Close stops reconnecting and closes the connection
func (c *Client) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()

	c.connMutex.Lock()
	conn := c.conn
	c.conn = nil
	c.connMutex.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.logger.Info("[Uplink] Connection closed")
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.conn != nil
}
