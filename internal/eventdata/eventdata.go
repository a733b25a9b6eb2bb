package eventdata

import (
    "bytes"
    "time"

    "github.com/Azure/go-amqp"
    "github.com/Azure/go-autorest/autorest/to"

    "github.com/azevhubclient/internal/evherr"
)

func New( body interface{ } )( *EventData ) {
    return &EventData {
        Body : body,
    }
}

// WithPartitionKey sets the key the service hashes to pick a partition.
func ( ed *EventData )WithPartitionKey( key string )( *EventData ) {
    ed.PartitionKey = to.StringPtr( key )
    return ed
}

// FromAmqpMessage builds an EventData from a received message. The body of a
// single data section is decoded by t.
func FromAmqpMessage( msg *amqp.Message, t Transformer )( *EventData ) {
    ed := &EventData{ }

    switch {
        case msg.Value != nil:
            ed.Body     = msg.Value
            ed.bodyType = valueBody

        case len( msg.Data ) == 1:
            ed.Body     = t.Decode( msg.Data[ 0 ] )
            ed.bodyType = dataBody
            ed.raw      = append( [ ]byte( nil ), msg.Data[ 0 ]... )
            ed.rawKey, _ = t.Encode( ed.Body )

        case len( msg.Data ) > 1:
            sections := make( [ ][ ]byte, len( msg.Data ) )
            copy( sections, msg.Data )
            ed.Body     = sections
            ed.bodyType = sequenceBody
    }

    if msg.Header != nil {
        header := *msg.Header
        ed.Header = &header
    }

    if msg.Properties != nil {
        properties := *msg.Properties
        ed.Properties = &properties
    }

    if len( msg.ApplicationProperties ) > 0 {
        ed.ApplicationProperties = make( map[ string ]interface{ }, len( msg.ApplicationProperties ) )
        for k, v := range msg.ApplicationProperties {
            ed.ApplicationProperties[ k ] = v
        }
    }

    if annotations := stringKeys( msg.Annotations ); len( annotations ) > 0 {
        ed.Annotations = annotations

        if v, ok := annotations[ PartitionKeyAnnotation ].( string ); ok {
            ed.PartitionKey = &v
        }

        if v, ok := toInt64( annotations[ SequenceNumberAnnotation ] ); ok {
            ed.SequenceNumber = &v
        }

        if v, ok := toTime( annotations[ EnqueuedTimeAnnotation ] ); ok {
            ed.EnqueuedTime = &v
        }

        if v, ok := annotations[ OffsetAnnotation ].( string ); ok {
            ed.Offset = &v
        }
    }

    if delivery := stringKeys( msg.DeliveryAnnotations ); len( delivery ) > 0 {
        if v, ok := toInt64( delivery[ LastEnqueuedSequenceNumberAnnotation ] ); ok {
            ed.LastEnqueuedSequenceNumber = &v
        }

        if v, ok := delivery[ LastEnqueuedOffsetAnnotation ].( string ); ok {
            ed.LastEnqueuedOffset = &v
        }

        if v, ok := toTime( delivery[ LastEnqueuedTimeAnnotation ] ); ok {
            ed.LastEnqueuedTime = &v
        }

        if v, ok := toTime( delivery[ RuntimeInfoRetrievalTimeAnnotation ] ); ok {
            ed.RetrievalTime = &v
        }
    }

    return ed
}

// ToAmqpMessage builds the wire message for ed, encoding a data body with t.
func ToAmqpMessage( ed *EventData, t Transformer )( *amqp.Message, error ) {
    if ed == nil {
        return nil, evherr.NewArgumentError( "event data must not be nil" )
    }

    if key, ok := ed.Annotations[ PartitionKeyAnnotation ]; ok && key != nil {
        if _, isString := key.( string ); !isString {
            return nil, evherr.NewArgumentError( "partition key must be a string, got %T", key )
        }
    }

    msg := &amqp.Message{ }

    switch ed.bodyType {
        case valueBody:
            msg.Value = ed.Body

        case sequenceBody:
            sections, ok := ed.Body.( [ ][ ]byte )
            if !ok {
                return nil, evherr.NewArgumentError( "sequence body must be [][]byte, got %T", ed.Body )
            }
            msg.Data = sections

        default:
            if ed.Body != nil {
                data, err := t.Encode( ed.Body )
                if err != nil {
                    return nil, evherr.Wrap( err, evherr.ArgumentError, false, "failed to encode event body: %v", err )
                }
                if ed.raw != nil && bytes.Equal( data, ed.rawKey ) {
                    data = ed.raw
                }
                msg.Data = [ ][ ]byte{ data }
            }
    }

    if ed.Header != nil {
        header := *ed.Header
        msg.Header = &header
    }

    if ed.Properties != nil {
        properties := *ed.Properties
        msg.Properties = &properties
    }

    if len( ed.ApplicationProperties ) > 0 {
        msg.ApplicationProperties = make( map[ string ]interface{ }, len( ed.ApplicationProperties ) )
        for k, v := range ed.ApplicationProperties {
            msg.ApplicationProperties[ k ] = v
        }
    }

    annotations := make( amqp.Annotations )
    for k, v := range ed.Annotations {
        annotations[ k ] = v
    }

    if ed.PartitionKey != nil {
        annotations[ PartitionKeyAnnotation ] = *ed.PartitionKey
    }

    if ed.SequenceNumber != nil {
        annotations[ SequenceNumberAnnotation ] = *ed.SequenceNumber
    }

    if ed.EnqueuedTime != nil {
        annotations[ EnqueuedTimeAnnotation ] = *ed.EnqueuedTime
    }

    if ed.Offset != nil {
        annotations[ OffsetAnnotation ] = *ed.Offset
    }

    if len( annotations ) > 0 {
        msg.Annotations = annotations
    }

    return msg, nil
}

// BatchMessage wraps events into one envelope whose data sections are the
// encoded messages. Only the first event's annotations, application properties
// and header are carried on the envelope.
func BatchMessage( events [ ]*EventData, t Transformer )( *amqp.Message, error ) {
    if len( events ) == 0 {
        return nil, evherr.NewArgumentError( "a batch must contain at least one event" )
    }

    envelope := &amqp.Message {
        Format : BatchMessageFormat,
        Data   : make( [ ][ ]byte, 0, len( events ) ),
    }

    for i, ed := range events {
        msg, err := ToAmqpMessage( ed, t )
        if err != nil {
            return nil, err
        }

        if i == 0 {
            envelope.Annotations           = msg.Annotations
            envelope.ApplicationProperties = msg.ApplicationProperties
            envelope.Header                = msg.Header
        }

        encoded, err := msg.MarshalBinary( )
        if err != nil {
            return nil, evherr.Wrap( err, evherr.ArgumentError, false, "failed to encode event %d of batch: %v", i, err )
        }

        envelope.Data = append( envelope.Data, encoded )
    }

    return envelope, nil
}

// RuntimeInfo returns the last enqueued snapshot when the event carried one.
func ( ed *EventData )RuntimeInfo( )( *RuntimeInfo, bool ) {
    if ed.LastEnqueuedSequenceNumber == nil && ed.LastEnqueuedOffset == nil {
        return nil, false
    }

    info := &RuntimeInfo{ }
    if ed.LastEnqueuedSequenceNumber != nil {
        info.LastEnqueuedSequenceNumber = *ed.LastEnqueuedSequenceNumber
    }

    if ed.LastEnqueuedOffset != nil {
        info.LastEnqueuedOffset = *ed.LastEnqueuedOffset
    }

    if ed.LastEnqueuedTime != nil {
        info.LastEnqueuedTime = *ed.LastEnqueuedTime
    }

    if ed.RetrievalTime != nil {
        info.RetrievalTime = *ed.RetrievalTime
    }

    return info, true
}

func stringKeys( annotations amqp.Annotations )( map[ string ]interface{ } ) {
    if len( annotations ) == 0 {
        return nil
    }

    out := make( map[ string ]interface{ }, len( annotations ) )
    for k, v := range annotations {
        if key, ok := k.( string ); ok {
            out[ key ] = v
        }
    }

    return out
}

func toInt64( v interface{ } )( int64, bool ) {
    switch n := v.( type ) {
        case int64:
            return n, true
        case int32:
            return int64( n ), true
        case int:
            return int64( n ), true
        case uint64:
            return int64( n ), true
        case uint32:
            return int64( n ), true
    }

    return 0, false
}

func toTime( v interface{ } )( time.Time, bool ) {
    switch ts := v.( type ) {
        case time.Time:
            return ts, true
        case int64:
            return time.UnixMilli( ts ).UTC( ), true
    }

    return time.Time{ }, false
}
