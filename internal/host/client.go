// Package host talks to the page that embeds the streamer over a websocket.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"rtcstreamer/native/internal/domain"
)

const (
	MethodSetComponentValue = "SET_COMPONENT_VALUE"
	MethodDevicesOpened     = "DEVICES_OPENED"
	MethodReady             = "READY"
	MethodRender            = "RENDER"
)

const (
	defaultPingInterval = 20 * time.Second
	writeWait           = 5 * time.Second
	outboxSize          = 64
)

// ErrNotConnected is returned when sending before Connect or after Close.
var ErrNotConnected = errors.New("host channel not connected")

// message is the envelope for both directions.
type message struct {
	Method  string                 `json:"method"`
	Value   *domain.ComponentValue `json:"value,omitempty"`
	Devices *domain.DeviceIDs      `json:"devices,omitempty"`
	Args    *domain.RenderArgs     `json:"args,omitempty"`
}

// Client is the host channel. It implements domain.Publisher.
type Client struct {
	url          string
	handler      domain.Handler
	log          logrus.Ext1FieldLogger
	PingInterval time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed chan struct{}
	once   sync.Once
	done   chan struct{}

	// outbox is drained by writeLoop so publishing never waits on the network.
	outbox  chan message
	quit    chan struct{}
	flushed chan struct{}
}

func NewClient(url string, handler domain.Handler, log logrus.Ext1FieldLogger) *Client {
	return &Client{
		url:          url,
		handler:      handler,
		log:          log,
		PingInterval: defaultPingInterval,
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
		outbox:       make(chan message, outboxSize),
		quit:         make(chan struct{}),
		flushed:      make(chan struct{}),
	}
}

// SetHandler replaces the handler receiving RENDER messages. The handler
// usually depends on the client as its publisher, so it is set after both exist.
func (c *Client) SetHandler(h domain.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect dials the host, announces READY and starts the read and write loops.
func (c *Client) Connect(ctx context.Context) error {
	c.log.Infof("connecting to %s", c.url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	ready, err := json.Marshal(message{Method: MethodReady})
	if err != nil {
		conn.Close()
		return fmt.Errorf("marshal %s: %w", MethodReady, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, ready); err != nil {
		conn.Close()
		return fmt.Errorf("write %s: %w", MethodReady, err)
	}

	c.mu.Lock()
	select {
	case <-c.quit:
		c.mu.Unlock()
		conn.Close()
		return ErrNotConnected
	default:
	}
	c.conn = conn
	go c.writeLoop()
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Done is closed once the connection is gone, whether the host hung up or
// Close was called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close flushes queued messages and shuts down the connection. It is safe
// to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		close(c.quit)
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			close(c.closed)
			close(c.done)
			return
		}
		<-c.flushed
		close(c.closed)

		c.mu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.mu.Unlock()
		conn.Close()
	})
}

// Publish queues the component value. Failures are logged, never returned.
func (c *Client) Publish(v domain.ComponentValue) {
	c.enqueue(message{Method: MethodSetComponentValue, Value: &v})
}

// DevicesOpened reports the devices a capture actually opened.
func (c *Client) DevicesOpened(ids domain.DeviceIDs) {
	c.enqueue(message{Method: MethodDevicesOpened, Devices: &ids})
}

func (c *Client) enqueue(msg message) {
	select {
	case <-c.quit:
		c.log.WithError(ErrNotConnected).Warnf("drop %s", msg.Method)
		return
	default:
	}
	select {
	case c.outbox <- msg:
	default:
		c.log.Warnf("outbox full, drop %s", msg.Method)
	}
}

// writeLoop sends queued messages in order. On Close it sends whatever is
// still queued, then exits.
func (c *Client) writeLoop() {
	defer close(c.flushed)
	for {
		select {
		case msg := <-c.outbox:
			c.write(msg)
		case <-c.quit:
			for {
				select {
				case msg := <-c.outbox:
					c.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (c *Client) write(msg message) {
	if err := c.send(msg); err != nil {
		c.log.WithError(err).Warnf("send %s", msg.Method)
	}
}

func (c *Client) send(msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Method, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case <-c.closed:
		return ErrNotConnected
	default:
	}

	c.log.Tracef(">>> %s", data)
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Method, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.quit:
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Info("host closed the connection")
				} else {
					c.log.WithError(err).Warn("read")
				}
			}
			return
		}

		c.log.Tracef("<<< %s", data)

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WithError(err).Warn("unmarshal host message")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg message) {
	switch msg.Method {
	case MethodRender:
		args := domain.RenderArgs{}
		if msg.Args != nil {
			args = *msg.Args
		}
		c.log.WithFields(logrus.Fields{
			"desired": describeDesired(args.DesiredPlayingState),
			"answer":  args.SDPAnswerJSON != "",
		}).Debug("render")
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h == nil {
			c.log.Warn("render received before a handler was set")
			return
		}
		h.OnRender(args)
	default:
		c.log.Debugf("unhandled method: %s", msg.Method)
	}
}

func describeDesired(v *bool) string {
	switch {
	case v == nil:
		return "unset"
	case *v:
		return "playing"
	default:
		return "stopped"
	}
}

func (c *Client) pingLoop() {
	if c.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
				default:
					c.log.WithError(err).Warn("ping")
				}
				return
			}
		}
	}
}
