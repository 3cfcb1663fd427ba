package membership

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryOptions bounds the retries of a conflicting append.
type RetryOptions struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type retryingService struct {
	next   Service
	opts   RetryOptions
	logger *zap.Logger
}

// NewRetryingService re-runs the whole append of next, starting from a fresh
// read, when it fails with ErrConflict. Other errors are returned as they are.
// MaxAttempts below 2 returns next unchanged.
func NewRetryingService(next Service, opts RetryOptions, logger *zap.Logger) Service {
	if opts.MaxAttempts < 2 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryingService{next: next, opts: opts, logger: logger}
}

func (s *retryingService) Append(ctx context.Context, record MemberRecord) (*Ack, error) {
	b := backoff.NewExponentialBackOff()
	if s.opts.InitialInterval > 0 {
		b.InitialInterval = s.opts.InitialInterval
	}
	if s.opts.MaxInterval > 0 {
		b.MaxInterval = s.opts.MaxInterval
	}

	attempt := 0
	return backoff.Retry(ctx, func() (*Ack, error) {
		attempt++
		ack, err := s.next.Append(ctx, record)
		if err == nil {
			return ack, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, backoff.Permanent(err)
		}
		s.logger.Info("retrying conflicting append",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.opts.MaxAttempts),
		)
		return nil, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.opts.MaxAttempts)),
	)
}
