// Package daemon assembles the long-running service: the single-instance
// lock, the HTTP server hosting the MCP endpoint and health surface, the
// session idle sweeper, and the upload directory watcher.
package daemon
