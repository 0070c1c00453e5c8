package livedata

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/quantview/livefeed/internal/model"
)

// Channel identifies one logical real-time data feed.
type Channel string

const (
	ChannelMarket    Channel = "market"
	ChannelNews      Channel = "news"
	ChannelAlerts    Channel = "alerts"
	ChannelSignals   Channel = "signals"
	ChannelPortfolio Channel = "portfolio"
	ChannelCharts    Channel = "charts"

	// ChannelSentiment is reserved: the path is part of the wire contract
	// but the channel is not dialed by default.
	ChannelSentiment Channel = "sentiment"
)

// DefaultChannels returns the channels dialed when none are configured.
func DefaultChannels() []Channel {
	return []Channel{
		ChannelMarket,
		ChannelNews,
		ChannelAlerts,
		ChannelSignals,
		ChannelPortfolio,
		ChannelCharts,
	}
}

// Path returns the endpoint path for the channel, relative to the base URL.
func (ch Channel) Path() string {
	return "/ws/" + string(ch)
}

func (ch Channel) valid() bool {
	switch ch {
	case ChannelMarket, ChannelNews, ChannelAlerts, ChannelSignals,
		ChannelPortfolio, ChannelCharts, ChannelSentiment:
		return true
	}
	return false
}

// Listener receives typed events from the coordinator. Any nil field is
// skipped. Transport-level callbacks are parameterized by channel; parse
// failures never reach OnError.
type Listener struct {
	OnConnect    func(ch Channel)
	OnDisconnect func(ch Channel, err error)
	OnError      func(ch Channel, err error)

	OnQuote     func(q model.Quote)
	OnNews      func(n model.NewsItem)
	OnAlert     func(a model.Alert)
	OnSignal    func(sig model.Signal)
	OnPortfolio func(p model.PortfolioSnapshot)
}

// controlMessage is the outbound subscribe/unsubscribe/control frame.
type controlMessage struct {
	Action    string   `json:"action"`
	Symbols   []string `json:"symbols,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// Stats contains coordinator runtime counters.
type Stats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
}

// ResolveBaseURL normalizes a stream base URL. http(s) schemes are
// upgraded to ws(s); an empty value falls back to the localhost default.
func ResolveBaseURL(raw string) (string, error) {
	if raw == "" {
		return "ws://localhost:8000", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in base url %q", u.Scheme, raw)
	}

	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", raw)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}
