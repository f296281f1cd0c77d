// Package mcp serves the Model Context Protocol over a single streamable
// HTTP endpoint. POST carries JSON-RPC requests, GET opens a server-sent
// event stream for pushed notifications, and DELETE ends the session.
//
// Sessions are allocated by the initialize handshake and identified by the
// Mcp-Session-Id header on every later request. Resource subscriptions and
// their update notifications hang off the session.
package mcp
