// Package session owns the authenticated session against the reporting
// API: obtaining a bearer token via TOTP login, caching it in a shared
// store, and persisting it across restarts.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrAuthFailed is returned when every login time window was rejected.
var ErrAuthFailed = errors.New("session: authentication failed for all time windows")

// Session is one issued bearer token with its validity interval.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// Expired reports whether the session is unusable at time now.
func (s Session) Expired(now time.Time) bool {
	return s.Token == "" || !now.Before(s.ExpiresAt)
}

// Store is the process-wide session cache shared by every collaborator
// issuing authenticated requests. Exactly one session is current at a
// time; implementations key it internally.
type Store interface {
	Get(ctx context.Context) (Session, bool, error)
	Set(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}
