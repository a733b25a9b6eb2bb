package position

import (
    "time"
)

const (
    offsetAnnotation         = "amqp.annotation.x-opt-offset"
    sequenceNumberAnnotation = "amqp.annotation.x-opt-sequence-number"
    enqueuedTimeAnnotation   = "amqp.annotation.x-opt-enqueued-time"
)

// Position describes where a receiver starts reading a partition. Exactly one
// of offset, sequence number, enqueued time or custom filter is set.
type Position struct {
    offset          *string
    sequenceNumber  *int64
    enqueuedTime    *time.Time
    customFilter    string

    // IsInclusive only applies to offsets and sequence numbers.
    IsInclusive     bool
}
