package livedata

import (
	"encoding/json"

	"github.com/quantview/livefeed/internal/model"
)

// Recognized inbound message types. Unknown types are skipped so servers
// can add new kinds without breaking older clients.
const (
	typeMarketData        = "market_data"
	typeQuoteUpdate       = "quote_update"
	typeNewsUpdate        = "news_update"
	typeAlertTriggered    = "alert_triggered"
	typeSignalGenerated   = "signal_generated"
	typePortfolioUpdate   = "portfolio_update"
	typePortfolioSnapshot = "portfolio_snapshot"
)

// envelope is the wire shape shared by every inbound frame.
type envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	Timestamp float64         `json:"timestamp"` // seconds since epoch
}

// data returns the payload, substituting an empty object when absent so
// missing fields fall through to defensive zero values.
func (e envelope) data() []byte {
	if len(e.Data) == 0 {
		return []byte("{}")
	}
	return e.Data
}

func (e envelope) unixSeconds() int64 {
	return int64(e.Timestamp)
}

// quoteWire carries both field spellings seen on the wire
// (day_high vs high, open_price vs open).
type quoteWire struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	DayHigh       float64 `json:"day_high"`
	High          float64 `json:"high"`
	DayLow        float64 `json:"day_low"`
	Low           float64 `json:"low"`
	OpenPrice     float64 `json:"open_price"`
	Open          float64 `json:"open"`
	Close         float64 `json:"close"`
}

func parseQuote(env envelope) (model.Quote, error) {
	var w quoteWire
	if err := json.Unmarshal(env.data(), &w); err != nil {
		return model.Quote{}, err
	}

	symbol := w.Symbol
	if symbol == "" {
		symbol = env.Symbol
	}

	return model.Quote{
		Symbol:        symbol,
		Price:         w.Price,
		Change:        w.Change,
		ChangePercent: w.ChangePercent,
		Volume:        w.Volume,
		DayHigh:       firstNonZero(w.DayHigh, w.High),
		DayLow:        firstNonZero(w.DayLow, w.Low),
		Open:          firstNonZero(w.OpenPrice, w.Open),
		PrevClose:     w.Close,
		Timestamp:     env.unixSeconds(),
	}, nil
}

type newsWire struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Content   string   `json:"content"`
	URL       string   `json:"url"`
	Source    string   `json:"source"`
	Published int64    `json:"published"`
	Tickers   []string `json:"tickers"`
}

func parseNews(env envelope) (model.NewsItem, error) {
	var w newsWire
	if err := json.Unmarshal(env.data(), &w); err != nil {
		return model.NewsItem{}, err
	}

	tickers := w.Tickers
	if tickers == nil {
		tickers = []string{}
	}

	return model.NewsItem{
		ID:        w.ID,
		Title:     w.Title,
		Summary:   w.Summary,
		Content:   w.Content,
		URL:       w.URL,
		Source:    w.Source,
		Published: w.Published,
		Tickers:   tickers,
		Timestamp: env.unixSeconds(),
	}, nil
}

type alertWire struct {
	Alert struct {
		ID           string  `json:"id"`
		Type         string  `json:"type"`
		Symbol       string  `json:"symbol"`
		Condition    string  `json:"condition"`
		TargetValue  float64 `json:"target_value"`
		Value        float64 `json:"value"`
		CurrentValue float64 `json:"current_value"`
		Message      string  `json:"message"`
	} `json:"alert"`
}

func parseAlert(env envelope) (model.Alert, error) {
	var w alertWire
	if err := json.Unmarshal(env.data(), &w); err != nil {
		return model.Alert{}, err
	}

	symbol := w.Alert.Symbol
	if symbol == "" {
		symbol = env.Symbol
	}

	return model.Alert{
		ID:           w.Alert.ID,
		Type:         w.Alert.Type,
		Symbol:       symbol,
		Condition:    w.Alert.Condition,
		TargetValue:  firstNonZero(w.Alert.TargetValue, w.Alert.Value),
		CurrentValue: w.Alert.CurrentValue,
		Message:      w.Alert.Message,
		Timestamp:    env.unixSeconds(),
	}, nil
}

type signalWire struct {
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"`
	SignalType  string  `json:"signal_type"`
	Confidence  float64 `json:"confidence"`
	Price       float64 `json:"price"`
	PriceTarget float64 `json:"price_target"`
	Reasoning   string  `json:"reasoning"`
	Strength    float64 `json:"strength"`
}

func parseSignal(env envelope) (model.Signal, error) {
	var w signalWire
	if err := json.Unmarshal(env.data(), &w); err != nil {
		return model.Signal{}, err
	}

	symbol := w.Symbol
	if symbol == "" {
		symbol = env.Symbol
	}

	action := w.Action
	if action == "" {
		action = w.SignalType
	}

	return model.Signal{
		Symbol:      symbol,
		Action:      action,
		Confidence:  w.Confidence,
		PriceTarget: firstNonZero(w.Price, w.PriceTarget),
		Reasoning:   w.Reasoning,
		Strength:    w.Strength,
		Timestamp:   env.unixSeconds(),
	}, nil
}

type portfolioWire struct {
	Portfolio struct {
		TotalValue      float64 `json:"total_value"`
		CashBalance     float64 `json:"cash_balance"`
		DailyPnL        float64 `json:"daily_pnl"`
		DailyPnLPercent float64 `json:"daily_pnl_percent"`
	} `json:"portfolio"`
	Positions []struct {
		Symbol               string  `json:"symbol"`
		Quantity             float64 `json:"quantity"`
		AvgPrice             float64 `json:"avg_price"`
		CurrentPrice         float64 `json:"current_price"`
		MarketValue          float64 `json:"market_value"`
		UnrealizedPnL        float64 `json:"unrealized_pnl"`
		UnrealizedPnLPercent float64 `json:"unrealized_pnl_percent"`
	} `json:"positions"`
}

func parsePortfolio(env envelope) (model.PortfolioSnapshot, error) {
	var w portfolioWire
	if err := json.Unmarshal(env.data(), &w); err != nil {
		return model.PortfolioSnapshot{}, err
	}

	positions := make([]model.Position, 0, len(w.Positions))
	for _, p := range w.Positions {
		positions = append(positions, model.Position{
			Symbol:               p.Symbol,
			Quantity:             p.Quantity,
			AvgPrice:             p.AvgPrice,
			CurrentPrice:         p.CurrentPrice,
			MarketValue:          p.MarketValue,
			UnrealizedPnL:        p.UnrealizedPnL,
			UnrealizedPnLPercent: p.UnrealizedPnLPercent,
		})
	}

	return model.PortfolioSnapshot{
		Portfolio: model.Portfolio{
			TotalValue:      w.Portfolio.TotalValue,
			CashBalance:     w.Portfolio.CashBalance,
			DailyPnL:        w.Portfolio.DailyPnL,
			DailyPnLPercent: w.Portfolio.DailyPnLPercent,
		},
		Positions: positions,
		Timestamp: env.unixSeconds(),
	}, nil
}

func firstNonZero(a, b float64) float64 {
	if a != 0 {
		return a
	}
	return b
}
