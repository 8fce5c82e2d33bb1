// Package server implements the HTTP and WebSocket side of the chat relay.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers. Room membership and
// notification fan-out live in package room; the hub adapts them to live
// WebSocket connections.
package server
