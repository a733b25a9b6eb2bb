package eventdata

import (
    "time"

    "github.com/Azure/go-amqp"
)

// Message annotation keys set by the service on every event.
const (
    PartitionKeyAnnotation   = "x-opt-partition-key"
    SequenceNumberAnnotation = "x-opt-sequence-number"
    EnqueuedTimeAnnotation   = "x-opt-enqueued-time"
    OffsetAnnotation         = "x-opt-offset"
)

// Delivery annotation keys, present only on links that asked for runtime metrics.
const (
    LastEnqueuedSequenceNumberAnnotation = "last_enqueued_sequence_number"
    LastEnqueuedOffsetAnnotation         = "last_enqueued_offset"
    LastEnqueuedTimeAnnotation           = "last_enqueued_time_utc"
    RuntimeInfoRetrievalTimeAnnotation   = "runtime_info_retrieval_time_utc"
)

// BatchMessageFormat is the message format of a multi message batch envelope.
const BatchMessageFormat uint32 = 0x80013700

type bodyType int

const (
    dataBody bodyType = iota
    valueBody
    sequenceBody
)

// Transformer converts event bodies to and from the bytes of an AMQP data section.
type Transformer interface {
    Encode( body interface{ } )( [ ]byte, error )
    Decode( data [ ]byte )( interface{ } )
}

// JSONTransformer passes byte slices through and JSON encodes everything else.
// Decoding yields the JSON value when the payload is valid JSON, the raw bytes otherwise.
type JSONTransformer struct {
}

// RawTransformer moves bytes and strings untouched and always decodes to []byte.
type RawTransformer struct {
}

// EventData is a single event as seen by senders and receivers.
type EventData struct {
    Body                        interface{ }

    PartitionKey                *string
    SequenceNumber              *int64
    EnqueuedTime                *time.Time
    Offset                      *string

    // All message annotations as received, including the well known keys above.
    Annotations                 map[ string ]interface{ }
    ApplicationProperties       map[ string ]interface{ }
    Properties                  *amqp.MessageProperties
    Header                      *amqp.MessageHeader

    LastEnqueuedSequenceNumber  *int64
    LastEnqueuedOffset          *string
    LastEnqueuedTime            *time.Time
    RetrievalTime               *time.Time

    bodyType                    bodyType

    // Received data section and the transformer's encoding of its decoded
    // body; the received bytes are resent while the body still encodes the same.
    raw                         [ ]byte
    rawKey                      [ ]byte
}

// RuntimeInfo is the last enqueued snapshot carried by delivery annotations.
type RuntimeInfo struct {
    LastEnqueuedSequenceNumber  int64
    LastEnqueuedOffset          string
    LastEnqueuedTime            time.Time
    RetrievalTime               time.Time
}
