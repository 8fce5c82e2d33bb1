// Package server defines shared message types and utility helpers that are
// reused across client and hub logic.
package server

import (
	"strings"

	"github.com/Tyrowin/gochat-rooms/internal/protocol"
)

// inboundEvent is a decoded client envelope waiting for the hub's run loop.
type inboundEvent struct {
	client *Client
	env    protocol.Envelope
}

// RoomStatus describes one room in the /rooms listing.
type RoomStatus struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
