package model

// Quote is a market price update for a single symbol.
type Quote struct {
	Symbol        string  // Ticker symbol (e.g., "AAPL")
	Price         float64 // Last price
	Change        float64 // Absolute change since previous close
	ChangePercent float64 // Percent change since previous close
	Volume        int64   // Session volume
	DayHigh       float64 // Session high
	DayLow        float64 // Session low
	Open          float64 // Session open
	PrevClose     float64 // Previous close
	Timestamp     int64   // Exchange timestamp (seconds since epoch)
}

// NewsItem is a published news article relevant to one or more tickers.
type NewsItem struct {
	ID        string   // Server-assigned article ID
	Title     string   // Headline
	Summary   string   // Short summary
	Content   string   // Full body (may be empty)
	URL       string   // Canonical link
	Source    string   // Publisher name
	Published int64    // Publication time (seconds since epoch)
	Tickers   []string // Symbols the article mentions
	Timestamp int64    // Delivery time (seconds since epoch)
}

// Alert is a triggered price or condition alert.
type Alert struct {
	ID           string  // Alert ID
	Type         string  // Alert kind (e.g., "price_above")
	Symbol       string  // Ticker symbol
	Condition    string  // Human-readable condition
	TargetValue  float64 // Threshold that was crossed
	CurrentValue float64 // Value at trigger time
	Message      string  // Display message
	Timestamp    int64   // Trigger time (seconds since epoch)
}

// Signal is a generated trading signal.
type Signal struct {
	Symbol      string  // Ticker symbol
	Action      string  // "buy", "sell", "hold"
	Confidence  float64 // Model confidence, 0-1
	PriceTarget float64 // Suggested target price
	Reasoning   string  // Free-text rationale
	Strength    float64 // Signal strength score
	Timestamp   int64   // Generation time (seconds since epoch)
}

// Position is one holding inside a portfolio snapshot.
type Position struct {
	Symbol               string
	Quantity             float64
	AvgPrice             float64
	CurrentPrice         float64
	MarketValue          float64
	UnrealizedPnL        float64
	UnrealizedPnLPercent float64
}

// Portfolio holds account-level totals.
type Portfolio struct {
	TotalValue      float64
	CashBalance     float64
	DailyPnL        float64
	DailyPnLPercent float64
}

// PortfolioSnapshot is a full portfolio state at a point in time.
type PortfolioSnapshot struct {
	Portfolio Portfolio
	Positions []Position
	Timestamp int64 // Snapshot time (seconds since epoch)
}
