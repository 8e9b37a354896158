// Package auth persists captured bearer tokens between runs.
//
// Persistence is opt-in (token.store in the config). A Manager consults its
// stores in order: the system keyring, an AES-GCM encrypted file under the
// XDG data directory, then the read-only BHASCRAPER_TOKEN variable. Tokens
// older than the configured max age are ignored so a run falls back to a
// fresh browser capture.
package auth
