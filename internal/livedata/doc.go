// Package livedata implements the live-data coordinator.
//
// The coordinator owns one resilient connection per logical channel
// (market, news, alerts, signals, portfolio, charts), parses inbound JSON
// envelopes into typed domain events, and fans them out to registered
// listeners. One bad frame never kills a channel: parse failures are
// logged and dropped, and unknown message types are ignored.
package livedata
