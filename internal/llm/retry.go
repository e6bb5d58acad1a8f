package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// ErrRateLimited marks a provider failure caused by rate limiting.
var ErrRateLimited = errors.New("rate limited")

// IsRateLimited reports whether err is a rate limit signal from a provider.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "ratelimit", "resource_exhausted", "too many requests"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Retrying retries rate limited calls with exponential backoff. Any other
// error is returned at once.
type Retrying struct {
	Provider
	Retries int
	Delay   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetrying retries up to 3 times, waiting 2s, 4s and 8s.
func NewRetrying(p Provider) *Retrying {
	return &Retrying{Provider: p, Retries: 3, Delay: 2 * time.Second, sleep: sleepCtx}
}

func (r *Retrying) GenerateTemplate(ctx context.Context, prompt string) (string, error) {
	return r.do(ctx, func() (string, error) {
		return r.Provider.GenerateTemplate(ctx, prompt)
	})
}

func (r *Retrying) Chat(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	return r.do(ctx, func() (string, error) {
		return r.Provider.Chat(ctx, messages, systemPrompt)
	})
}

func (r *Retrying) do(ctx context.Context, op func() (string, error)) (string, error) {
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	delay := r.Delay
	for attempt := 0; ; attempt++ {
		out, err := op()
		if err == nil {
			return out, nil
		}
		if !IsRateLimited(err) {
			return "", err
		}
		if attempt >= r.Retries {
			return "", fmt.Errorf("%w after %d retries: %w", ErrRateLimited, r.Retries, err)
		}
		log.Printf("[llm] rate limit hit, retrying in %v", delay)
		if err := sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
