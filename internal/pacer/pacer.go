// Package pacer retries fallible network operations with a bounded attempt count and a fixed wait.
//
// Only errors accepted by the classifier (by default [IsTransient]) are retried. Anything else is
// returned to the caller untouched on the first failure.
package pacer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultMaxAttempts = 5
	DefaultWait        = 5 * time.Second
)

// ErrRetriesExhausted wraps the last transient error once every attempt has failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Paced is an operation run under a [Pacer].
type Paced func(ctx context.Context) error

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer state
type Pacer struct {
	maxAttempts int
	wait        time.Duration
	classify    func(error) bool
	notify      func(string)
	sleep       SleepFunc
	logger      *log.Logger
}

// Option configures a [Pacer].
type Option func(*Pacer)

// WithMaxAttempts sets the total number of attempts, including the first. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(p *Pacer) {
		if n >= 1 {
			p.maxAttempts = n
		}
	}
}

// WithWait sets the fixed interval between attempts.
func WithWait(d time.Duration) Option {
	return func(p *Pacer) {
		if d >= 0 {
			p.wait = d
		}
	}
}

// WithClassifier replaces [IsTransient] as the retry predicate.
func WithClassifier(fn func(error) bool) Option {
	return func(p *Pacer) { p.classify = fn }
}

// WithNotify routes human-readable retry and give-up messages to fn.
func WithNotify(fn func(string)) Option {
	return func(p *Pacer) { p.notify = fn }
}

// WithSleep replaces the wait implementation.
func WithSleep(fn SleepFunc) Option {
	return func(p *Pacer) { p.sleep = fn }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(p *Pacer) { p.logger = l }
}

// New returns a Pacer with 5 attempts and a 5 second wait unless overridden.
func New(opts ...Option) *Pacer {
	p := &Pacer{
		maxAttempts: DefaultMaxAttempts,
		wait:        DefaultWait,
		classify:    IsTransient,
		sleep:       contextSleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the configured attempt bound.
func (p *Pacer) MaxAttempts() int { return p.maxAttempts }

// Call runs fn until it succeeds, fails with a non-transient error, or the attempt bound is reached.
//
// label names the operation in progress messages. Exhaustion returns an error matching
// [ErrRetriesExhausted] that also wraps the final failure.
func (p *Pacer) Call(ctx context.Context, label string, fn Paced) error {
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if IsPermanent(err) || !p.classify(err) {
			return err
		}

		if attempt == p.maxAttempts {
			break
		}

		p.report(fmt.Sprintf("%s: %v; retrying in %s (attempt %d/%d)", label, err, p.wait, attempt, p.maxAttempts))
		if p.logger != nil {
			p.logger.Warn("transient failure", "op", label, "attempt", attempt, "err", err)
		}
		if serr := p.sleep(ctx, p.wait); serr != nil {
			return serr
		}
	}

	p.report(fmt.Sprintf("%s: giving up after %d attempts: %v", label, p.maxAttempts, err))
	if p.logger != nil {
		p.logger.Error("retries exhausted", "op", label, "attempts", p.maxAttempts, "err", err)
	}
	return fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, label, err)
}

func (p *Pacer) report(msg string) {
	if p.notify != nil {
		p.notify(msg)
	}
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
