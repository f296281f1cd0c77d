// Command scrivener is the operator CLI for the scrivener daemon. It
// speaks the daemon's own MCP endpoint, so anything an agent can do the
// operator can do from a shell.
package main
