package namedlock

import (
    "sync"

    "golang.org/x/sync/semaphore"
)

// Locks hands out one exclusive lock per key. Keys are created on first use.
type Locks struct {
    mu      sync.Mutex
    locks   map[ string ]*semaphore.Weighted
}
