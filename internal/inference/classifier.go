package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatmood/internal/metrics"
)

// RetryPolicy bounds how transport failures are retried.
type RetryPolicy struct {
	Attempts  int           // Total attempts, including the first
	BaseDelay time.Duration // Delay after attempt n is BaseDelay * 2^n
}

// DefaultRetryPolicy returns 3 attempts with 1s, 2s delays between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Second}
}

// Backoff returns the delay to wait after the given zero-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

// ErrEmptyText is returned when asked to classify an empty message.
var ErrEmptyText = errors.New("inference: empty message text")

// Classifier turns message text into the raw model reply, retrying
// transport failures with exponential backoff.
type Classifier struct {
	backend Completer
	policy  RetryPolicy
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClassifier creates a Classifier over backend.
func NewClassifier(backend Completer, policy RetryPolicy, logger zerolog.Logger) *Classifier {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Classifier{
		backend: backend,
		policy:  policy,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Classify builds the prompt for text and returns the first choice text.
func (c *Classifier) Classify(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}
	prompt := BuildPrompt(text)

	var lastErr error
	for attempt := 0; attempt < c.policy.Attempts; attempt++ {
		start := time.Now()
		raw, err := c.backend.Complete(ctx, prompt)
		metrics.InferenceDuration.Observe(time.Since(start).Seconds())
		metrics.InferenceAttempts.WithLabelValues(Kind(err)).Inc()

		if err == nil {
			return raw, nil
		}
		if !IsTransient(err) {
			return "", err
		}

		lastErr = err
		c.loggerFor(ctx).Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", c.policy.Attempts).
			Msg("inference request failed")

		if attempt == c.policy.Attempts-1 {
			break
		}
		if err := c.sleep(ctx, c.policy.Backoff(attempt)); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("giving up after %d attempts: %w", c.policy.Attempts, lastErr)
}

// loggerFor prefers the per-message logger carried by ctx.
func (c *Classifier) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &c.logger
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
