package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reportsync/internal/metrics"
	"reportsync/internal/reportapi"
	"reportsync/internal/totp"

	"github.com/rs/zerolog"
)

// The authentication server's clock has been observed to lag ours by
// minutes, so skew tolerance is biased toward negative offsets.
var loginOffsets = []int{-5, -4, -3, -2, -1, 0, 1, 2}

const defaultTokenTTL = 24 * time.Hour

// LoginClient performs one login attempt with a specific TOTP code.
type LoginClient interface {
	LoginWithCode(ctx context.Context, code string) (reportapi.LoginResult, error)
}

// Manager obtains and refreshes the bearer token. All collaborators
// share one Manager (or at least one Store) so they observe the same
// token.
type Manager struct {
	mu     sync.Mutex
	store  Store
	file   *FileStore
	client LoginClient
	secret string
	logger zerolog.Logger
	now    func() time.Time
}

func NewManager(store Store, file *FileStore, client LoginClient, totpSecret string, logger *zerolog.Logger) *Manager {
	m := &Manager{
		store:  store,
		file:   file,
		client: client,
		secret: totpSecret,
		logger: logger.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
	m.seedFromFile()
	return m
}

// seedFromFile pre-populates the store from the durable record so a
// restart reuses a still-valid token.
func (m *Manager) seedFromFile() {
	if m.file == nil {
		return
	}
	s, ok, err := m.file.Load(m.now())
	if err != nil {
		m.logger.Warn().Err(err).Msg("token file unreadable, ignoring")
		return
	}
	if !ok {
		m.logger.Info().Msg("no valid persisted token, login required")
		return
	}
	if err := m.store.Set(context.Background(), s); err != nil {
		m.logger.Warn().Err(err).Msg("seed session store failed")
		return
	}
	m.logger.Info().Time("expires_at", s.ExpiresAt).Msg("restored persisted token")
}

// Token returns the cached token, logging in when none is valid.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok, err := m.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("session store: %w", err)
	}
	if ok && !s.Expired(m.now()) {
		return s.Token, nil
	}
	return m.login(ctx)
}

// Login forces a fresh login regardless of cached state.
func (m *Manager) Login(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.login(ctx)
}

// Invalidate drops the cached session. The durable record is left in
// place; it is only ever overwritten by the next successful login.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Clear(ctx)
}

// EnsureValid reports whether a valid token is held after refreshing
// an expired one.
func (m *Manager) EnsureValid(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok, err := m.store.Get(ctx)
	if err == nil && ok && !s.Expired(m.now()) {
		return true
	}

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("clear stale session failed")
	}
	if _, err := m.login(ctx); err != nil {
		m.logger.Error().Err(err).Msg("re-login failed")
		return false
	}
	return true
}

// login walks the current code first, then the remaining clock-skew
// windows, stopping at the first accepted attempt. Callers hold mu.
func (m *Manager) login(ctx context.Context) (string, error) {
	now := m.now()

	current, err := totp.Code(m.secret, now)
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}

	windows, err := totp.CodesWithOffsets(m.secret, now, loginOffsets)
	if err != nil {
		return "", fmt.Errorf("generate totp windows: %w", err)
	}

	attempts := make([]totp.Window, 0, len(windows))
	attempts = append(attempts, totp.Window{Offset: 0, Time: now, Code: current})
	for _, w := range windows {
		if w.Code == current {
			continue
		}
		attempts = append(attempts, w)
	}

	var lastErr error
	for _, w := range attempts {
		result, err := m.client.LoginWithCode(ctx, w.Code)
		if err != nil {
			lastErr = err
			m.logger.Debug().Int("offset", w.Offset).Err(err).Msg("login window rejected")
			continue
		}

		s := Session{
			Token:     result.Token,
			ExpiresAt: result.ExpiresAt,
			CreatedAt: now,
		}
		if s.ExpiresAt.IsZero() {
			s.ExpiresAt = now.Add(defaultTokenTTL)
		}

		if err := m.store.Set(ctx, s); err != nil {
			return "", fmt.Errorf("cache session: %w", err)
		}
		if m.file != nil {
			if err := m.file.Save(s); err != nil {
				m.logger.Warn().Err(err).Msg("persist token failed")
			}
		}

		m.logger.Info().Int("offset", w.Offset).Time("expires_at", s.ExpiresAt).Msg("login succeeded")
		metrics.IncLogin("success")
		return s.Token, nil
	}

	metrics.IncLogin("failed")
	return "", fmt.Errorf("%w: %v", ErrAuthFailed, lastErr)
}
