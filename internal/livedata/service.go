package livedata

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/quantview/livefeed/internal/config"
	"github.com/quantview/livefeed/internal/connection"
)

// Config configures the coordinator.
type Config struct {
	BaseURL  string            // Resolved ws(s):// origin
	Channels []Channel         // Channels to dial; empty = DefaultChannels
	Conn     connection.Config // Per-connection template (URL filled per channel)
}

// FromStream builds a coordinator Config from the stream section of the
// application config.
func FromStream(sc config.StreamConfig) (Config, error) {
	base, err := ResolveBaseURL(sc.BaseURL)
	if err != nil {
		return Config{}, err
	}

	channels := make([]Channel, 0, len(sc.Channels))
	for _, name := range sc.Channels {
		ch := Channel(name)
		if !ch.valid() {
			return Config{}, &UnknownChannelError{Name: name}
		}
		channels = append(channels, ch)
	}

	return Config{
		BaseURL:  base,
		Channels: channels,
		Conn: connection.Config{
			ReconnectBaseDelay:   sc.ReconnectBaseDelay,
			ReconnectMaxDelay:    sc.ReconnectMaxDelay,
			MaxReconnectAttempts: sc.MaxReconnectAttempts,
			HeartbeatInterval:    sc.HeartbeatInterval,
			InactivityTimeout:    sc.InactivityTimeout,
			HandshakeTimeout:     sc.HandshakeTimeout,
			WriteTimeout:         sc.WriteTimeout,
			SendQueueSize:        sc.SendQueueSize,
		},
	}, nil
}

// UnknownChannelError reports a configured channel name that is not part
// of the wire contract.
type UnknownChannelError struct {
	Name string
}

func (e *UnknownChannelError) Error() string {
	return "unknown channel: " + e.Name
}

type listenerEntry struct {
	l Listener
}

// Service multiplexes one resilient connection per channel and translates
// wire envelopes into typed listener callbacks.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	conns     map[Channel]*connection.Conn
	listeners []*listenerEntry
	started   bool

	statsMu  sync.Mutex
	received int64
	routed   int64
	parseErr int64
	unknown  int64
}

// New creates a coordinator. Connections are not dialed until Connect.
func New(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultChannels()
	}
	return &Service{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[Channel]*connection.Conn),
	}
}

// AddListener registers a listener and returns its remove function.
// Listeners are independent: registering a new one never displaces
// previously registered ones, and all are invoked in registration order.
func (s *Service) AddListener(l Listener) func() {
	entry := &listenerEntry{l: l}

	s.mu.Lock()
	s.listeners = append(s.listeners, entry)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			for i, e := range s.listeners {
				if e == entry {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

// Connect establishes one connection per configured channel. Idempotent.
func (s *Service) Connect() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true

	for _, ch := range s.cfg.Channels {
		ch := ch
		cfg := s.cfg.Conn
		cfg.URL = s.cfg.BaseURL + ch.Path()

		c := connection.New(cfg, s.logger.With("channel", string(ch)))
		c.OnOpen(func() {
			s.eachListener(func(l Listener) {
				if l.OnConnect != nil {
					l.OnConnect(ch)
				}
			})
		})
		c.OnClose(func(err error) {
			s.eachListener(func(l Listener) {
				if l.OnDisconnect != nil {
					l.OnDisconnect(ch, err)
				}
			})
		})
		c.OnError(func(err error) {
			s.eachListener(func(l Listener) {
				if l.OnError != nil {
					l.OnError(ch, err)
				}
			})
		})
		c.OnMessage(func(data []byte) {
			s.handleMessage(ch, data)
		})

		s.conns[ch] = c
	}

	conns := make([]*connection.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Connect()
	}

	s.logger.Info("live data service connected", "channels", len(conns))
}

// Disconnect closes every channel connection. Idempotent.
func (s *Service) Disconnect() {
	s.mu.Lock()
	conns := make([]*connection.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[Channel]*connection.Conn)
	s.started = false
	s.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}

	if len(conns) > 0 {
		s.logger.Info("live data service disconnected", "channels", len(conns))
	}
}

// SubscribeSymbols requests quote streaming for the given symbols on the
// market channel. The request is queued if the connection is not open yet.
func (s *Service) SubscribeSymbols(symbols []string) error {
	return s.sendControl(ChannelMarket, controlMessage{
		Action:  "subscribe",
		Symbols: symbols,
	})
}

// UnsubscribeSymbols stops quote streaming for the given symbols.
func (s *Service) UnsubscribeSymbols(symbols []string) error {
	return s.sendControl(ChannelMarket, controlMessage{
		Action:  "unsubscribe",
		Symbols: symbols,
	})
}

// ForcePortfolioUpdate asks the server for an immediate portfolio snapshot.
func (s *Service) ForcePortfolioUpdate() error {
	return s.sendControl(ChannelPortfolio, controlMessage{Action: "force_update"})
}

// TestAlert asks the server to emit a synthetic alert, tagged with a
// request id so it can be correlated in logs.
func (s *Service) TestAlert() error {
	return s.sendControl(ChannelAlerts, controlMessage{
		Action:    "test_alert",
		RequestID: uuid.NewString(),
	})
}

// SendChartCommand forwards an arbitrary command on the charts channel.
func (s *Service) SendChartCommand(v any) error {
	s.mu.Lock()
	c := s.conns[ChannelCharts]
	s.mu.Unlock()

	if c == nil {
		s.logger.Warn("chart command before connect, ignoring")
		return nil
	}
	return c.Send(v)
}

// Status reports, per channel, whether the connection is currently open.
// Computed on demand, never cached.
func (s *Service) Status() map[Channel]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[Channel]bool, len(s.conns))
	for ch, c := range s.conns {
		status[ch] = c.State() == connection.StateOpen
	}
	return status
}

// Stats returns coordinator counters.
func (s *Service) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{
		MessagesReceived: s.received,
		MessagesRouted:   s.routed,
		ParseErrors:      s.parseErr,
		UnknownMessages:  s.unknown,
	}
}

// sendControl sends a control frame on one channel's connection.
// Misuse (sending before Connect) is a logged no-op, not an error: a
// long-lived session should degrade, not crash.
func (s *Service) sendControl(ch Channel, msg controlMessage) error {
	s.mu.Lock()
	c := s.conns[ch]
	s.mu.Unlock()

	if c == nil {
		s.logger.Warn("control message before connect, ignoring",
			"channel", string(ch),
			"action", msg.Action,
		)
		return nil
	}
	return c.Send(msg)
}

// handleMessage parses one inbound frame and dispatches the typed event.
// Parse failures are logged and dropped; they never close the channel and
// never reach the transport-error listeners.
func (s *Service) handleMessage(ch Channel, data []byte) {
	s.statsMu.Lock()
	s.received++
	s.statsMu.Unlock()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("malformed frame",
			"channel", string(ch),
			"error", err,
		)
		s.countParseError()
		return
	}

	switch env.Type {
	case typeMarketData, typeQuoteUpdate:
		q, err := parseQuote(env)
		if err != nil {
			s.warnParse(ch, env.Type, err)
			return
		}
		s.eachListener(func(l Listener) {
			if l.OnQuote != nil {
				l.OnQuote(q)
			}
		})

	case typeNewsUpdate:
		n, err := parseNews(env)
		if err != nil {
			s.warnParse(ch, env.Type, err)
			return
		}
		s.eachListener(func(l Listener) {
			if l.OnNews != nil {
				l.OnNews(n)
			}
		})

	case typeAlertTriggered:
		a, err := parseAlert(env)
		if err != nil {
			s.warnParse(ch, env.Type, err)
			return
		}
		s.eachListener(func(l Listener) {
			if l.OnAlert != nil {
				l.OnAlert(a)
			}
		})

	case typeSignalGenerated:
		sig, err := parseSignal(env)
		if err != nil {
			s.warnParse(ch, env.Type, err)
			return
		}
		s.eachListener(func(l Listener) {
			if l.OnSignal != nil {
				l.OnSignal(sig)
			}
		})

	case typePortfolioUpdate, typePortfolioSnapshot:
		p, err := parsePortfolio(env)
		if err != nil {
			s.warnParse(ch, env.Type, err)
			return
		}
		s.eachListener(func(l Listener) {
			if l.OnPortfolio != nil {
				l.OnPortfolio(p)
			}
		})

	default:
		// Heartbeat echoes and future message kinds land here.
		s.statsMu.Lock()
		s.unknown++
		s.statsMu.Unlock()
		s.logger.Debug("skipping message type",
			"channel", string(ch),
			"type", env.Type,
		)
		return
	}

	s.statsMu.Lock()
	s.routed++
	s.statsMu.Unlock()
}

func (s *Service) warnParse(ch Channel, msgType string, err error) {
	s.logger.Warn("failed to parse frame",
		"channel", string(ch),
		"type", msgType,
		"error", err,
	)
	s.countParseError()
}

func (s *Service) countParseError() {
	s.statsMu.Lock()
	s.parseErr++
	s.statsMu.Unlock()
}

func (s *Service) eachListener(fn func(Listener)) {
	s.mu.Lock()
	entries := append([]*listenerEntry{}, s.listeners...)
	s.mu.Unlock()

	for _, e := range entries {
		fn(e.l)
	}
}
