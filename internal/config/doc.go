// Package config loads and validates scrivener's TOML configuration.
//
// Configuration resolves from an explicit path, then
// ~/.config/scrivener/config.toml, then ./scrivener.toml, falling back to
// built-in defaults when no file exists. Paths are tilde-expanded and made
// absolute during normalization so downstream packages never deal with
// relative or user-shorthand paths.
package config
