package helpers

import (
    "encoding/json"
    "fmt"
    "strings"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
)

// Payload is the JSON body every bench sender publishes.
type Payload struct {
    TestId      string  `json:"testId"`
    Sender      string  `json:"sender"`
    SenderIdx   int     `json:"senderIdx"`
    Seq         uint64  `json:"seq"`
    TimeStamp   int64   `json:"ts"`
    Fill        string  `json:"fill,omitempty"`
}

type PayloadGen struct {
    testId      string
    sender      string
    senderIdx   int
    fill        string
    seq         uint64
}

func GetCurTimeStamp( )( int64 ) {
    return time.Now( ).UnixMicro( )
}

func NewPayloadGen( testId, sender string, senderIdx, fillSize int )( *PayloadGen, error ) {
    if len( sender ) == 0 {
        return nil, fmt.Errorf( "sender id cannot be empty" )
    }

    if fillSize < 0 {
        return nil, fmt.Errorf( "invalid fill size %v", fillSize )
    }

    var fill strings.Builder
    for fill.Len( ) < fillSize {
        fill.WriteString( strings.ReplaceAll( uuid.NewString( ), "-", "" ) )
    }

    return &PayloadGen {
        testId    : testId,
        sender    : sender,
        senderIdx : senderIdx,
        fill      : fill.String( )[ :fillSize ],
    }, nil
}

// Next stamps the next sequence number and the current time.
func ( gen *PayloadGen )Next( )( payload *Payload ) {
    return &Payload {
        TestId    : gen.testId,
        Sender    : gen.sender,
        SenderIdx : gen.senderIdx,
        Seq       : atomic.AddUint64( &gen.seq, 1 ),
        TimeStamp : GetCurTimeStamp( ),
        Fill      : gen.fill,
    }
}

func ( gen *PayloadGen )NextBytes( )( [ ]byte, error ) {
    return json.Marshal( gen.Next( ) )
}

func ( gen *PayloadGen )Count( )( uint64 ) {
    return atomic.LoadUint64( &gen.seq )
}

func ParsePayload( data [ ]byte )( payload *Payload, err error ) {
    payload = &Payload{ }
    if err = json.Unmarshal( data, payload ); err != nil {
        return nil, fmt.Errorf( "failed to parse payload: %v", err )
    }

    return payload, nil
}

func ( payload *Payload )Validate( testId string )( err error ) {
    if len( payload.Sender ) == 0 {
        return fmt.Errorf( "payload without sender" )
    }

    if payload.Seq == 0 {
        return fmt.Errorf( "%v: payload without sequence number", payload.Sender )
    }

    if len( testId ) > 0 && payload.TestId != testId {
        return fmt.Errorf( "%v: test id mismatch, expected %v saw %v", payload.Sender, testId, payload.TestId )
    }

    return nil
}

// Latency is measured in microseconds; clock skew never yields a negative value.
func ( payload *Payload )Latency( now int64 )( uint64 ) {
    if now <= payload.TimeStamp {
        return 0
    }

    return uint64( now - payload.TimeStamp )
}
