package sink

import (
	"context"
	"errors"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

// RetryingSink retries failed puts a bounded number of times. Access denied errors
// and cancelled contexts are not retried.
type RetryingSink struct {
	sink    Sink
	retries uint
	wait    time.Duration
	logger  log.Logger
}

// Retrying wraps sink so that each put is tried at most retries+1 times.
func Retrying(sink Sink, retries int, wait time.Duration, logger log.Logger) Sink {
	if retries <= 0 {
		return sink
	}
	return &RetryingSink{sink: sink, retries: uint(retries), wait: wait, logger: logger}
}

// Put ...
func (r *RetryingSink) Put(ctx context.Context, key string, data []byte, contentType string, acl ACL) error {
	return retry.Times(r.retries).Wait(r.wait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			r.logger.Debugf("Retrying %s (attempt %d)", key, attempt+1)
		}

		err := r.sink.Put(ctx, key, data, contentType, acl)
		if err == nil {
			return nil, true
		}
		if errors.Is(err, ErrAccessDenied) || ctx.Err() != nil {
			return err, true
		}
		return err, false
	})
}

// Close closes the wrapped sink.
func (r *RetryingSink) Close() error {
	return Close(r.sink)
}
