package position

import (
    "fmt"
    "strconv"
    "time"

    evhub_persist "github.com/Azure/azure-event-hubs-go/v3/persist"

    "github.com/azevhubclient/internal/evherr"
)

func FromOffset( offset string, isInclusive bool )( *Position ) {
    return &Position {
        offset      : &offset,
        IsInclusive : isInclusive,
    }
}

func FromSequenceNumber( sequenceNumber int64, isInclusive bool )( *Position ) {
    return &Position {
        sequenceNumber : &sequenceNumber,
        IsInclusive    : isInclusive,
    }
}

func FromEnqueuedTime( enqueuedTime time.Time )( *Position ) {
    return &Position {
        enqueuedTime : &enqueuedTime,
    }
}

func WithCustomFilter( filter string )( *Position ) {
    return &Position {
        customFilter : filter,
    }
}

// FromStart positions a receiver at the first event still retained.
func FromStart( )( *Position ) {
    return FromOffset( evhub_persist.StartOfStream, false )
}

// FromEnd positions a receiver after the last event in the partition.
func FromEnd( )( *Position ) {
    return FromOffset( evhub_persist.EndOfStream, false )
}

// FromCheckpoint resumes after a persisted checkpoint, or from the start of the
// stream when nothing was ever recorded.
func FromCheckpoint( checkPoint evhub_persist.Checkpoint )( *Position ) {
    if len( checkPoint.Offset ) == 0 || checkPoint.Offset == evhub_persist.StartOfStream {
        return FromStart( )
    }

    return FromOffset( checkPoint.Offset, false )
}

func ( p *Position )Offset( )( string, bool ) {
    if p == nil || p.offset == nil {
        return "", false
    }

    return *p.offset, true
}

func ( p *Position )SequenceNumber( )( int64, bool ) {
    if p == nil || p.sequenceNumber == nil {
        return 0, false
    }

    return *p.sequenceNumber, true
}

func ( p *Position )EnqueuedTime( )( time.Time, bool ) {
    if p == nil || p.enqueuedTime == nil {
        return time.Time{ }, false
    }

    return *p.enqueuedTime, true
}

func ( p *Position )CustomFilter( )( string ) {
    if p == nil {
        return ""
    }

    return p.customFilter
}

// Expression renders the selector filter attached to the receive link source.
func ( p *Position )Expression( )( string, error ) {
    if p == nil {
        return "", evherr.NewArgumentError( "no event position was provided" )
    }

    operator := ">"
    if p.IsInclusive {
        operator = ">="
    }

    switch {
        case p.offset != nil:
            return fmt.Sprintf( "%s %s '%s'", offsetAnnotation, operator, *p.offset ), nil

        case p.sequenceNumber != nil:
            return fmt.Sprintf( "%s %s '%d'", sequenceNumberAnnotation, operator, *p.sequenceNumber ), nil

        case p.enqueuedTime != nil:
            return fmt.Sprintf( "%s > '%s'", enqueuedTimeAnnotation, strconv.FormatInt( p.enqueuedTime.UnixMilli( ), 10 ) ), nil

        case len( p.customFilter ) > 0:
            return p.customFilter, nil
    }

    return "", evherr.NewArgumentError( "event position must have one of offset, sequence number, enqueued time or custom filter set" )
}

func ( p *Position )String( )( string ) {
    expr, err := p.Expression( )
    if err != nil {
        return "<unset>"
    }

    return expr
}
