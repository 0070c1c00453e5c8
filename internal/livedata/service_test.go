package livedata

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantview/livefeed/internal/config"
	"github.com/quantview/livefeed/internal/model"
)

// mockFeedServer serves WebSocket endpoints keyed by request path.
func mockFeedServer(t *testing.T, handlers map[string]func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", msg)
}

func TestService_DispatchesQuotes(t *testing.T) {
	frame := `{"type":"market_data","symbol":"AAPL","timestamp":1705320000,"data":{"price":189.45}}`

	server := mockFeedServer(t, map[string]func(*websocket.Conn){
		"/ws/market": func(conn *websocket.Conn) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		},
	})
	defer server.Close()

	s := New(Config{
		BaseURL:  wsURL(server),
		Channels: []Channel{ChannelMarket},
	}, nil)
	defer s.Disconnect()

	quotes := make(chan model.Quote, 1)
	s.AddListener(Listener{
		OnQuote: func(q model.Quote) { quotes <- q },
	})

	s.Connect()

	select {
	case q := <-quotes:
		if q.Symbol != "AAPL" {
			t.Errorf("Symbol = %s, want AAPL", q.Symbol)
		}
		if q.Price != 189.45 {
			t.Errorf("Price = %v, want 189.45", q.Price)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for quote dispatch")
	}

	waitFor(t, time.Second, func() bool { return s.Status()[ChannelMarket] }, "market status open")

	stats := s.Stats()
	if stats.MessagesRouted < 1 {
		t.Errorf("MessagesRouted = %d, want >= 1", stats.MessagesRouted)
	}
}

func TestService_SubscribeSymbols(t *testing.T) {
	received := make(chan string, 4)

	server := mockFeedServer(t, map[string]func(*websocket.Conn){
		"/ws/market": func(conn *websocket.Conn) {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				received <- string(data)
			}
		},
	})
	defer server.Close()

	s := New(Config{
		BaseURL:  wsURL(server),
		Channels: []Channel{ChannelMarket},
	}, nil)
	defer s.Disconnect()

	s.Connect()
	waitFor(t, time.Second, func() bool { return s.Status()[ChannelMarket] }, "market status open")

	if err := s.SubscribeSymbols([]string{"AAPL", "TSLA"}); err != nil {
		t.Fatalf("SubscribeSymbols() error = %v", err)
	}

	select {
	case raw := <-received:
		var msg controlMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			t.Fatalf("unmarshal control message: %v", err)
		}
		if msg.Action != "subscribe" {
			t.Errorf("Action = %s, want subscribe", msg.Action)
		}
		if len(msg.Symbols) != 2 || msg.Symbols[0] != "AAPL" || msg.Symbols[1] != "TSLA" {
			t.Errorf("Symbols = %v, want [AAPL TSLA]", msg.Symbols)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscribe frame")
	}
}

// Subscriptions issued before Connect queue on the connection and flush
// once it opens.
func TestService_SubscribeBeforeOpen_Queues(t *testing.T) {
	received := make(chan string, 4)

	server := mockFeedServer(t, map[string]func(*websocket.Conn){
		"/ws/market": func(conn *websocket.Conn) {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				received <- string(data)
			}
		},
	})
	defer server.Close()

	s := New(Config{
		BaseURL:  wsURL(server),
		Channels: []Channel{ChannelMarket},
	}, nil)
	defer s.Disconnect()

	s.Connect()
	// No wait for open: the control frame may race the dial and must
	// still arrive exactly once.
	if err := s.SubscribeSymbols([]string{"NVDA"}); err != nil {
		t.Fatalf("SubscribeSymbols() error = %v", err)
	}

	select {
	case raw := <-received:
		if !strings.Contains(raw, `"NVDA"`) {
			t.Errorf("frame = %s, want NVDA subscribe", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for queued subscribe frame")
	}
}

func TestService_ControlBeforeConnect_NoOp(t *testing.T) {
	s := New(Config{BaseURL: "ws://localhost:1"}, nil)

	if err := s.SubscribeSymbols([]string{"AAPL"}); err != nil {
		t.Errorf("SubscribeSymbols() before Connect error = %v, want nil", err)
	}
	if err := s.ForcePortfolioUpdate(); err != nil {
		t.Errorf("ForcePortfolioUpdate() before Connect error = %v, want nil", err)
	}
	if err := s.TestAlert(); err != nil {
		t.Errorf("TestAlert() before Connect error = %v, want nil", err)
	}
}

func TestService_AddListener_Remove(t *testing.T) {
	s := New(Config{BaseURL: "ws://localhost:1"}, nil)

	var first, second atomic.Int64
	remove := s.AddListener(Listener{
		OnQuote: func(model.Quote) { first.Add(1) },
	})
	s.AddListener(Listener{
		OnQuote: func(model.Quote) { second.Add(1) },
	})

	frame := []byte(`{"type":"quote_update","symbol":"AAPL","data":{"price":1}}`)

	s.handleMessage(ChannelMarket, frame)
	if first.Load() != 1 || second.Load() != 1 {
		t.Fatalf("listeners fired (%d, %d), want (1, 1)", first.Load(), second.Load())
	}

	remove()
	remove() // second call is a no-op

	s.handleMessage(ChannelMarket, frame)
	if first.Load() != 1 {
		t.Errorf("removed listener fired %d times, want 1", first.Load())
	}
	if second.Load() != 2 {
		t.Errorf("remaining listener fired %d times, want 2", second.Load())
	}
}

// Malformed frames are counted and dropped without reaching listeners.
func TestService_HandleMessage_Malformed(t *testing.T) {
	s := New(Config{BaseURL: "ws://localhost:1"}, nil)

	var dispatched atomic.Int64
	s.AddListener(Listener{
		OnQuote: func(model.Quote) { dispatched.Add(1) },
		OnError: func(Channel, error) { dispatched.Add(1) },
	})

	s.handleMessage(ChannelMarket, []byte(`{not json`))

	if dispatched.Load() != 0 {
		t.Errorf("listeners fired %d times for malformed frame, want 0", dispatched.Load())
	}

	stats := s.Stats()
	if stats.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", stats.ParseErrors)
	}
	if stats.MessagesRouted != 0 {
		t.Errorf("MessagesRouted = %d, want 0", stats.MessagesRouted)
	}
}

func TestService_HandleMessage_UnknownType(t *testing.T) {
	s := New(Config{BaseURL: "ws://localhost:1"}, nil)

	var dispatched atomic.Int64
	s.AddListener(Listener{
		OnQuote: func(model.Quote) { dispatched.Add(1) },
	})

	s.handleMessage(ChannelMarket, []byte(`{"type":"pong"}`))

	if dispatched.Load() != 0 {
		t.Errorf("listeners fired %d times for unknown type, want 0", dispatched.Load())
	}
	if got := s.Stats().UnknownMessages; got != 1 {
		t.Errorf("UnknownMessages = %d, want 1", got)
	}
}

func TestService_Disconnect_ClearsStatus(t *testing.T) {
	server := mockFeedServer(t, map[string]func(*websocket.Conn){
		"/ws/market": func(conn *websocket.Conn) {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		},
	})
	defer server.Close()

	s := New(Config{
		BaseURL:  wsURL(server),
		Channels: []Channel{ChannelMarket},
	}, nil)

	s.Connect()
	waitFor(t, time.Second, func() bool { return s.Status()[ChannelMarket] }, "market status open")

	s.Disconnect()
	if len(s.Status()) != 0 {
		t.Errorf("Status() after Disconnect has %d entries, want 0", len(s.Status()))
	}
}

func TestFromStream(t *testing.T) {
	cfg, err := FromStream(config.StreamConfig{
		BaseURL:  "https://feed.example.com",
		Channels: []string{"market", "news"},
	})
	if err != nil {
		t.Fatalf("FromStream() error = %v", err)
	}

	if cfg.BaseURL != "wss://feed.example.com" {
		t.Errorf("BaseURL = %s, want wss://feed.example.com", cfg.BaseURL)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[0] != ChannelMarket {
		t.Errorf("Channels = %v, want [market news]", cfg.Channels)
	}
}

func TestFromStream_UnknownChannel(t *testing.T) {
	_, err := FromStream(config.StreamConfig{
		Channels: []string{"market", "weather"},
	})
	if err == nil {
		t.Fatal("FromStream() error = nil, want unknown channel error")
	}

	var unknownErr *UnknownChannelError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("error type = %T, want *UnknownChannelError", err)
	}
	if unknownErr.Name != "weather" {
		t.Errorf("Name = %s, want weather", unknownErr.Name)
	}
}
