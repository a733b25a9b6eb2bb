package retry

import (
    "context"
    "time"
)

const (
    DefaultSendAttempts       = 3
    DefaultSendDelay          = 5 * time.Second
    DefaultMinJitter          = 1 * time.Second
    DefaultMaxJitter          = 4 * time.Second

    DefaultReconnectAttempts  = 150
    DefaultReconnectDelay     = 15 * time.Second
)

// Task is one attempt of a retried operation.
type Task = func( context.Context )( error )

// Policy retries a task while its translated error is retryable, waiting
// Delay plus a random jitter in [MinJitter, MaxJitter) between attempts.
type Policy struct {
    MaxAttempts int
    Delay       time.Duration
    MinJitter   time.Duration
    MaxJitter   time.Duration
}
