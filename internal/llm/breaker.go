package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// ErrCircuitOpen is returned without calling the provider while the breaker is open.
var ErrCircuitOpen = errors.New("llm: provider circuit open")

type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Cooldown         time.Duration
	// Timeout bounds each call. Zero leaves the caller's context untouched.
	Timeout time.Duration
}

// BreakerClient fails fast while a provider is unhealthy. It never retries: a call either
// reaches the provider once or is rejected with ErrCircuitOpen.
type BreakerClient struct {
	next    Client
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewBreakerClient(next Client, cfg BreakerConfig, logger *logging.Logger) *BreakerClient {
	if next == nil {
		panic("llm: breaker requires a client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Caller cancellation says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &BreakerClient{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker(settings),
		timeout: cfg.Timeout,
	}
}

func (c *BreakerClient) Complete(ctx context.Context, req Request) (Response, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		return c.next.Complete(callCtx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Response{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		if resp, ok := out.(Response); ok {
			return resp, err
		}
		return Response{}, err
	}
	return out.(Response), nil
}

// State exposes the breaker state for health reporting.
func (c *BreakerClient) State() string {
	return c.cb.State().String()
}
