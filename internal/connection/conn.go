package connection

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a self-healing WebSocket connection to a single endpoint.
//
// The Conn value persists across reconnects; only the underlying
// *websocket.Conn handle is replaced. Every unexpected close schedules
// exactly one reconnect attempt. Disconnect is the only call that
// suppresses automatic reconnection.
type Conn struct {
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	ws           *websocket.Conn
	gen          int           // handle generation; stale goroutines check it and bail
	done         chan struct{} // closed when the current handle is torn down
	queue        [][]byte      // FIFO outbound queue, bounded by cfg.SendQueueSize
	queueDropped int64
	attempts     int // consecutive failed attempts since last successful open
	timer        *time.Timer
	detached     bool // true until Connect, and again after Disconnect
	lastActivity time.Time

	// Serializes writes on the active handle.
	writeMu sync.Mutex

	onOpen    []func()
	onClose   []func(err error)
	onError   []func(err error)
	onMessage []func(data []byte)
}

// New creates a Conn. It does not dial until Connect is called.
func New(cfg Config, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		state:    StateNone,
		detached: true,
	}
}

// OnOpen registers a listener invoked after each successful open.
// Listeners run in registration order.
func (c *Conn) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = append(c.onOpen, fn)
	c.mu.Unlock()
}

// OnClose registers a listener invoked when the connection closes.
// err is nil for an explicit Disconnect.
func (c *Conn) OnClose(fn func(err error)) {
	c.mu.Lock()
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// OnError registers a listener for transport-level errors.
func (c *Conn) OnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = append(c.onError, fn)
	c.mu.Unlock()
}

// OnMessage registers a listener for inbound text frames.
func (c *Conn) OnMessage(fn func(data []byte)) {
	c.mu.Lock()
	c.onMessage = append(c.onMessage, fn)
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of connection counters.
func (c *Conn) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:             c.state,
		QueueLen:          len(c.queue),
		QueueDropped:      c.queueDropped,
		ReconnectAttempts: c.attempts,
	}
}

// Connect starts the dial loop. It is idempotent: calling it while a
// connection or reconnect attempt is in flight is a no-op. It never blocks
// on network I/O.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen || c.timer != nil {
		c.mu.Unlock()
		return
	}
	c.detached = false
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.dial(gen)
}

// Disconnect closes the connection and cancels all pending reconnect,
// heartbeat, and watchdog activity. No automatic activity occurs afterward
// until Connect is called again.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.detached = true
	c.gen++ // invalidate any in-flight dial
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	ws := c.ws
	c.ws = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.attempts = 0
	if ws != nil {
		c.state = StateClosing
	} else {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if ws != nil {
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		ws.Close()

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		c.emitClose(nil)
	}
}

// Send serializes v as JSON and transmits it. While open with an empty
// queue the frame is written immediately; otherwise it is queued FIFO and
// flushed when the connection (re)opens. Sending while closed triggers a
// reconnect attempt unless the Conn was explicitly disconnected.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.Lock()
	if c.state == StateOpen && len(c.queue) == 0 && c.ws != nil {
		ws := c.ws
		c.mu.Unlock()
		return c.write(ws, data)
	}

	c.enqueueLocked(data)
	kick := !c.detached && c.timer == nil &&
		(c.state == StateClosed || c.state == StateNone)
	c.mu.Unlock()

	if kick {
		c.scheduleReconnect()
	}
	return nil
}

// enqueueLocked appends to the outbound queue, dropping the oldest entry
// when the queue is full. Caller holds c.mu.
func (c *Conn) enqueueLocked(data []byte) {
	if len(c.queue) >= c.cfg.SendQueueSize {
		c.queue = c.queue[1:]
		c.queueDropped++
		c.logger.Warn("send queue full, dropping oldest message",
			"size", c.cfg.SendQueueSize,
			"dropped_total", c.queueDropped,
		)
	}
	c.queue = append(c.queue, data)
}

// dial establishes the transport for the given generation.
func (c *Conn) dial(gen int) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	ws, _, err := dialer.Dial(c.cfg.URL, nil)

	c.mu.Lock()
	if c.detached || gen != c.gen {
		c.mu.Unlock()
		if err == nil {
			ws.Close()
		}
		return
	}

	if err != nil {
		c.state = StateClosed
		c.mu.Unlock()
		c.logger.Warn("dial failed", "url", c.cfg.URL, "error", err)
		c.emitError(err)
		c.scheduleReconnect()
		return
	}

	done := make(chan struct{})
	c.ws = ws
	c.done = done
	c.state = StateOpen
	c.attempts = 0
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	go c.readLoop(ws, gen, done)
	go c.heartbeatLoop(ws, done)
	go c.watchdogLoop(gen, done)

	c.emitOpen()
	c.flushQueue(ws, gen)
}

// write sends a single text frame on the given handle.
func (c *Conn) write(ws *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// flushQueue drains the outbound queue in FIFO order. Each entry is sent
// exactly once; a failed write is pushed back to the head so it survives
// the next reconnect.
func (c *Conn) flushQueue(ws *websocket.Conn, gen int) {
	for {
		c.mu.Lock()
		if gen != c.gen || c.state != StateOpen || len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		data := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := c.write(ws, data); err != nil {
			c.mu.Lock()
			if gen == c.gen {
				c.queue = append([][]byte{data}, c.queue...)
			}
			c.mu.Unlock()
			c.logger.Warn("queue flush interrupted", "error", err)
			return
		}
	}
}

// readLoop reads frames from the handle until it fails or is torn down.
func (c *Conn) readLoop(ws *websocket.Conn, gen int, done chan struct{}) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Torn down by Disconnect or the watchdog.
				return
			default:
			}
			c.emitError(err)
			c.teardown(gen, err)
			return
		}

		c.mu.Lock()
		c.lastActivity = time.Now()
		c.mu.Unlock()

		c.emitMessage(data)
	}
}

// heartbeatLoop emits an application-level ping while the handle is open.
// Keeps intermediary proxies and load balancers from idling the connection.
func (c *Conn) heartbeatLoop(ws *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ping, _ := json.Marshal(heartbeat{Type: "ping", TS: time.Now().Unix()})
			if err := c.write(ws, ping); err != nil {
				c.logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

// watchdogLoop force-closes the connection when no inbound traffic arrives
// within InactivityTimeout. Recovers half-open connections where the peer
// stopped responding without a clean close.
func (c *Conn) watchdogLoop(gen int, done chan struct{}) {
	interval := c.cfg.InactivityTimeout
	if interval > 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			idle := time.Since(c.lastActivity)
			c.mu.Unlock()

			if idle > c.cfg.InactivityTimeout {
				c.logger.Warn("no inbound activity, forcing reconnect",
					"idle", idle,
					"timeout", c.cfg.InactivityTimeout,
				)
				c.teardown(gen, ErrStaleConnection)
				return
			}
		}
	}
}

// teardown closes the current handle and schedules a reconnect. It is a
// no-op for stale generations, so concurrent failure paths collapse into
// a single reconnect.
func (c *Conn) teardown(gen int, reason error) {
	c.mu.Lock()
	if gen != c.gen || c.ws == nil {
		c.mu.Unlock()
		return
	}
	ws := c.ws
	c.ws = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.state = StateClosed
	detached := c.detached
	c.mu.Unlock()

	ws.Close()
	c.emitClose(reason)

	if !detached {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the reconnect timer. At most one timer is pending
// per Conn regardless of how many failure events fire.
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.detached || c.timer != nil || c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}

	c.attempts++
	if c.cfg.MaxReconnectAttempts > 0 && c.attempts > c.cfg.MaxReconnectAttempts {
		attempts := c.attempts - 1
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted",
			"url", c.cfg.URL,
			"attempts", attempts,
		)
		c.emitError(ErrReconnectExhausted)
		return
	}

	delay := backoffDelay(c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, c.attempts)
	c.logger.Info("reconnect scheduled",
		"url", c.cfg.URL,
		"attempt", c.attempts,
		"delay", delay,
	)
	c.timer = time.AfterFunc(delay, c.reconnectNow)
	c.mu.Unlock()
}

// reconnectNow fires when the reconnect timer elapses.
func (c *Conn) reconnectNow() {
	c.mu.Lock()
	c.timer = nil
	if c.detached || c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.dial(gen)
}

func (c *Conn) emitOpen() {
	c.mu.Lock()
	fns := append([]func(){}, c.onOpen...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Conn) emitClose(err error) {
	c.mu.Lock()
	fns := append([]func(error){}, c.onClose...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (c *Conn) emitError(err error) {
	c.mu.Lock()
	fns := append([]func(error){}, c.onError...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (c *Conn) emitMessage(data []byte) {
	c.mu.Lock()
	fns := append([]func([]byte){}, c.onMessage...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}
