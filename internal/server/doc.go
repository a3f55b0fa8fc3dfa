// Package server implements the HTTP server using Echo framework.
//
// Routes: REST API for users, polls and votes (handlers_user.go, handlers_poll.go,
// handlers_vote.go), the per-poll WebSocket feed (handlers_ws.go) and
// observability endpoints (handlers_health.go).
package server
