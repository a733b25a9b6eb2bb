package eventhub

import (
    "context"
    "sync/atomic"
    "time"

    "github.com/devigned/tab"

    "github.com/azevhubclient/internal/eventdata"
    "github.com/azevhubclient/internal/evherr"
)

func newBatchingReceiver( cc *connectionContext, partitionId string, opts ReceiveOptions )( *BatchingReceiver, error ) {
    base, err := newReceiver( cc, partitionId, opts )
    if err != nil {
        return nil, err
    }

    b := &BatchingReceiver {
        Receiver  : base,
        batchSize : 1,
    }

    base.self          = b
    base.initialCredit = func( )( uint32 ) { return atomic.LoadUint32( &b.batchSize ) }

    return b, nil
}

// Receive collects up to maxCount events. It returns as soon as maxCount events
// arrived, or with whatever arrived once maxWait elapsed. Running out of time
// is not an error.
func ( b *BatchingReceiver )Receive( ctx context.Context, maxCount int, maxWait time.Duration )( [ ]*eventdata.EventData, error ) {
    if maxCount < 1 {
        return nil, evherr.NewArgumentError( "maximum message count must be at least 1, got %d", maxCount )
    }

    if maxWait <= 0 {
        maxWait = DefaultBatchWait
    }

    b.receiveMu.Lock( )
    defer b.receiveMu.Unlock( )

    ctx, span := tab.StartSpan( ctx, "eventhub.BatchingReceiver.Receive" )
    defer span.End( )
    span.AddAttributes(
        tab.StringAttribute( "eh.partition_id", b.receivePid ),
        tab.Int64Attribute( "eh.max_message_count", int64( maxCount ) ),
    )

    atomic.StoreUint32( &b.batchSize, uint32( maxCount ) )
    if err := b.cc.opts.SendRetry.Do( ctx, b.logPrefix( ) + " open", b.init ); err != nil {
        tab.For( ctx ).Error( err )
        return nil, err
    }

    link := b.current( )
    if link == nil {
        return nil, evherr.New( evherr.ServiceCommunicationError, true, "%s: the link is not open", b.logPrefix( ) )
    }

    b.mu.Lock( )
    credit := int64( maxCount ) - b.pendingCredit
    b.mu.Unlock( )

    if credit > 0 {
        b.issueCredit( uint32( credit ) )
    }

    waitCtx, cancel := context.WithTimeout( ctx, maxWait )
    defer cancel( )

    events := make( [ ]*eventdata.EventData, 0, maxCount )
    for len( events ) < maxCount {
        msg, err := link.Receive( waitCtx )
        if err != nil {
            if ctx.Err( ) != nil {
                err = evherr.Translate( ctx.Err( ) )
                tab.For( ctx ).Error( err )
                return events, err
            }

            if waitCtx.Err( ) != nil {
                break
            }

            err = evherr.Translate( err )
            tab.For( ctx ).Error( err )
            go b.detached( err )
            return nil, err
        }

        events = append( events, b.process( ctx, link, msg ) )
    }

    span.AddAttributes( tab.Int64Attribute( "eh.message_count", int64( len( events ) ) ) )
    return events, nil
}
