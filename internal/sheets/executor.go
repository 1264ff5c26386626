package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"reportsync/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

const (
	defaultMinInterval = 1200 * time.Millisecond
	defaultMaxRetries  = 5
	defaultBaseDelay   = 3 * time.Second
)

// ExecutorConfig tunes pacing and retry behavior. Zero values take
// the defaults, which sit comfortably under the per-user write quota.
type ExecutorConfig struct {
	MinInterval time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
}

// Executor dispatches operations to the API with a shared minimum
// spacing between requests and exponential backoff on quota and
// server errors.
type Executor struct {
	api        API
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	logger     zerolog.Logger
}

func NewExecutor(api API, cfg ExecutorConfig, logger *zerolog.Logger) *Executor {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}

	return &Executor{
		api:        api,
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		logger:     logger.With().Str("component", "sheets_executor").Logger(),
	}
}

// Execute runs op, waiting out the rate limiter before every attempt.
// Quota (429), server (5xx) and transport errors get maxRetries
// retries on top of the initial attempt, with baseDelay * 2^attempt
// between attempts; any other client error fails immediately.
func (e *Executor) Execute(ctx context.Context, op Operation) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := e.run(ctx, op)
		if err == nil {
			metrics.IncSheetsOp(op.Name)
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, fmt.Errorf("%s: %w", op.Name, err)
		}
		if attempt == e.maxRetries {
			break
		}

		delay := e.backoff(attempt)
		e.logger.Warn().
			Str("op_id", op.ID).
			Str("op", op.Name).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("sheets call failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%s: retries exhausted: %w", op.Name, lastErr)
}

// run performs the API call an operation describes.
func (e *Executor) run(ctx context.Context, op Operation) (interface{}, error) {
	switch op.Kind {
	case OpSpreadsheetGet:
		return e.api.Spreadsheet(ctx, op.SpreadsheetID)
	case OpValuesGet:
		return e.api.ValuesGet(ctx, op.SpreadsheetID, op.Range)
	case OpValuesUpdate:
		return nil, e.api.ValuesUpdate(ctx, op.SpreadsheetID, op.Range, op.Values)
	case OpBatchUpdate:
		return nil, e.api.BatchUpdate(ctx, op.SpreadsheetID, op.Batch)
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (e *Executor) backoff(attempt int) time.Duration {
	d := e.baseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// retryable classifies an API error. Transport failures come back as
// plain errors rather than *googleapi.Error and are always worth
// another attempt.
func retryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return true
		}
		return apiErr.Code >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
