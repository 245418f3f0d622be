package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
)

type retryPolicy struct {
	MaxAttempts int
	MinDelay    int
	MaxDelay    int
}

// stubbed out in tests
var retrySleep = time.Sleep

// withRetry runs fn up to MaxAttempts times, sleeping a random number of
// seconds between MinDelay and MaxDelay before each new attempt. Terminal
// errors stop the loop immediately. The last error is returned once the
// attempts are exhausted.
func withRetry(policy retryPolicy, kind, subject string, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == attempts {
			break
		}
		delay := policy.MinDelay
		if policy.MaxDelay > policy.MinDelay {
			delay += rand.Intn(policy.MaxDelay - policy.MinDelay + 1)
		}
		log.Info(fmt.Sprintf("[%s RETRY in %ds] %s", kind, delay, subject))
		retrySleep(time.Duration(delay) * time.Second)
	}
	return lastErr
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermissionDenied) {
		return false
	}
	var synErr *synapseError
	if errors.As(err, &synErr) {
		return synErr.Retryable()
	}
	// transport errors and timeouts are worth another attempt
	return true
}
