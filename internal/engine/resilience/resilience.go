// Package resilience wraps external generation calls with retry, backoff,
// and fallback policy.
//
// Failures are partitioned by a pluggable classifier into transient errors,
// which are retried with capped exponential backoff, and permanent errors,
// which are not. Results are an explicit status rather than exceptions: Ok,
// Degraded (a configured fallback was substituted), or Fatal (no result).
package resilience

import (
	"context"
	"time"
)

// Status tags the outcome of a wrapped call.
type Status string

const (
	StatusOK       Status = "OK"
	StatusDegraded Status = "DEGRADED"
	StatusFatal    Status = "FATAL"
)

// ErrorClass partitions call failures for retry eligibility.
type ErrorClass string

const (
	// ClassTransient covers timeouts, connection failures, and rate limits.
	ClassTransient ErrorClass = "transient"
	// ClassPermanent covers malformed requests and policy rejections.
	ClassPermanent ErrorClass = "permanent"
)

// Classifier partitions an error into transient or permanent. Implementations
// should key on structured error codes, never on message substrings.
type Classifier interface {
	Classify(err error) ErrorClass
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) ErrorClass

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) ErrorClass { return f(err) }

// Call performs one external invocation attempt.
type Call func(ctx context.Context) (string, error)

// AttemptObserver is invoked after every attempt, success or failure, for
// observability. class is empty on success.
type AttemptObserver func(attempt int, class ErrorClass, err error)

// Outcome is the explicit result of running a call under policy.
type Outcome struct {
	Status Status
	// Value is the call result, or the fallback text when Status is Degraded.
	Value string
	// Recovered reports that at least one attempt failed before success.
	Recovered bool
	// Attempts is the number of invocation attempts made.
	Attempts int
	// Err is the last call error; set when Status is Degraded or Fatal.
	Err error
}

// Fallback configures the degraded result substituted when attempts exhaust.
type Fallback struct {
	Text       string
	Configured bool
}

// Executor runs calls under a retry/backoff policy.
type Executor struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	Classifier     Classifier

	// sleep is injected by tests; the default waits on a timer or context.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor with the given policy. Non-positive
// maxAttempts is treated as a single attempt.
func NewExecutor(maxAttempts int, backoffBase, backoffCeiling time.Duration, classifier Classifier) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{
		MaxAttempts:    maxAttempts,
		BackoffBase:    backoffBase,
		BackoffCeiling: backoffCeiling,
		Classifier:     classifier,
		sleep:          contextSleep,
	}
}

// Run invokes call under the executor's policy. Each attempt is reported to
// observe when non-nil. The wrapped call must be free of side effects on
// session state; mutation happens only after a returned Outcome passes
// validation upstream.
func (e *Executor) Run(ctx context.Context, call Call, fallback Fallback, observe AttemptObserver) Outcome {
	attempts := e.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := e.sleep
	if sleep == nil {
		sleep = contextSleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = ctxErr
			return e.exhausted(fallback, attempt-1, lastErr)
		}

		value, err := call(ctx)
		if err == nil {
			if observe != nil {
				observe(attempt, "", nil)
			}
			return Outcome{
				Status:    StatusOK,
				Value:     value,
				Recovered: attempt > 1,
				Attempts:  attempt,
			}
		}

		lastErr = err
		class := e.classify(err)
		if observe != nil {
			observe(attempt, class, err)
		}
		if class == ClassPermanent || attempt == attempts {
			return e.exhausted(fallback, attempt, lastErr)
		}

		if sleepErr := sleep(ctx, e.backoff(attempt)); sleepErr != nil {
			return e.exhausted(fallback, attempt, lastErr)
		}
	}
	return e.exhausted(fallback, attempts, lastErr)
}

func (e *Executor) exhausted(fallback Fallback, attempts int, lastErr error) Outcome {
	if fallback.Configured {
		return Outcome{
			Status:   StatusDegraded,
			Value:    fallback.Text,
			Attempts: attempts,
			Err:      lastErr,
		}
	}
	return Outcome{Status: StatusFatal, Attempts: attempts, Err: lastErr}
}

func (e *Executor) classify(err error) ErrorClass {
	if e.Classifier == nil {
		return ClassTransient
	}
	return e.Classifier.Classify(err)
}

// backoff returns the wait before the attempt following attempt n:
// base * 2^(n-1), capped at the ceiling.
func (e *Executor) backoff(attempt int) time.Duration {
	base := e.BackoffBase
	if base <= 0 {
		return 0
	}
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if e.BackoffCeiling > 0 && wait >= e.BackoffCeiling {
			return e.BackoffCeiling
		}
	}
	if e.BackoffCeiling > 0 && wait > e.BackoffCeiling {
		return e.BackoffCeiling
	}
	return wait
}

// contextSleep waits for d without blocking other sessions; it returns early
// with the context error when the context ends.
func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
