// Package domain holds errors shared across transport and infrastructure.
// Keep it free of HTTP, Redis and Postgres concerns.
package domain

import "errors"

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrTokenStoreNotReady = errors.New("token store not ready")
	// ErrSessionNotFound is returned for unknown or expired merge sessions.
	ErrSessionNotFound = errors.New("merge session not found")
	// ErrTooManyDocuments is returned when an upload would exceed the per-session limit.
	ErrTooManyDocuments = errors.New("too many documents in session")
)
