// streamprobe connects to the live data stream and prints typed events to
// the console.
// Usage: go run ./cmd/streamprobe --url ws://localhost:8000 --symbols AAPL,TSLA
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quantview/livefeed/internal/livedata"
	"github.com/quantview/livefeed/internal/model"
)

func main() {
	baseURL := flag.String("url", "", "stream base URL (default ws://localhost:8000)")
	symbols := flag.String("symbols", "", "comma-separated symbols to subscribe on the market channel")
	channels := flag.String("channels", "", "comma-separated channels (default: all)")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	base, err := livedata.ResolveBaseURL(*baseURL)
	if err != nil {
		logger.Error("invalid base url", "error", err)
		os.Exit(1)
	}

	var chs []livedata.Channel
	if *channels != "" {
		for _, name := range strings.Split(*channels, ",") {
			chs = append(chs, livedata.Channel(strings.TrimSpace(name)))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	svc := livedata.New(livedata.Config{
		BaseURL:  base,
		Channels: chs,
	}, logger)

	svc.AddListener(livedata.Listener{
		OnConnect: func(ch livedata.Channel) {
			fmt.Printf("[CONNECT] channel=%s\n", ch)
		},
		OnDisconnect: func(ch livedata.Channel, err error) {
			fmt.Printf("[DISCONNECT] channel=%s err=%v\n", ch, err)
		},
		OnError: func(ch livedata.Channel, err error) {
			fmt.Printf("[ERROR] channel=%s err=%v\n", ch, err)
		},
		OnQuote: func(q model.Quote) {
			if *verbose {
				printJSON("QUOTE", q)
			} else {
				fmt.Printf("[QUOTE] symbol=%s price=%.2f change=%+.2f (%.2f%%) vol=%d\n",
					q.Symbol, q.Price, q.Change, q.ChangePercent, q.Volume)
			}
		},
		OnNews: func(n model.NewsItem) {
			if *verbose {
				printJSON("NEWS", n)
			} else {
				fmt.Printf("[NEWS] source=%s title=%q tickers=%v\n", n.Source, n.Title, n.Tickers)
			}
		},
		OnAlert: func(a model.Alert) {
			if *verbose {
				printJSON("ALERT", a)
			} else {
				fmt.Printf("[ALERT] symbol=%s type=%s message=%q\n", a.Symbol, a.Type, a.Message)
			}
		},
		OnSignal: func(sig model.Signal) {
			if *verbose {
				printJSON("SIGNAL", sig)
			} else {
				fmt.Printf("[SIGNAL] symbol=%s action=%s confidence=%.2f target=%.2f\n",
					sig.Symbol, sig.Action, sig.Confidence, sig.PriceTarget)
			}
		},
		OnPortfolio: func(p model.PortfolioSnapshot) {
			if *verbose {
				printJSON("PORTFOLIO", p)
			} else {
				fmt.Printf("[PORTFOLIO] total=%.2f cash=%.2f pnl=%+.2f positions=%d\n",
					p.Portfolio.TotalValue, p.Portfolio.CashBalance, p.Portfolio.DailyPnL, len(p.Positions))
			}
		},
	})

	svc.Connect()
	defer svc.Disconnect()

	if *symbols != "" {
		var syms []string
		for _, s := range strings.Split(*symbols, ",") {
			syms = append(syms, strings.TrimSpace(s))
		}
		if err := svc.SubscribeSymbols(syms); err != nil {
			logger.Error("failed to subscribe", "error", err)
		}
		logger.Info("subscribed", "symbols", syms)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := svc.Stats()
				open := 0
				for _, up := range svc.Status() {
					if up {
						open++
					}
				}
				logger.Info("stats",
					"channels_open", open,
					"received", stats.MessagesReceived,
					"routed", stats.MessagesRouted,
					"parse_errors", stats.ParseErrors,
					"unknown", stats.UnknownMessages,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info("shutdown complete")
}

func printJSON(kind string, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("[%s] %s\n", kind, data)
}
