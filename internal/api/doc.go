// Package api implements the queue control operations exposed through the
// tool surface: status partitioning, item lookup, retry, and cancel. It
// holds the business rules; transport stays elsewhere.
package api
