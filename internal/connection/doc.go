// Package connection implements the resilient WebSocket primitive.
//
// A Conn owns one transport endpoint and:
//   - Queues outbound messages FIFO until the connection is open
//   - Reconnects with exponential backoff and jitter
//   - Emits an application-level heartbeat while open
//   - Force-closes half-open connections via an inactivity watchdog
//   - Fans lifecycle and message events out to registered listeners
package connection
