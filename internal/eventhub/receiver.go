package eventhub

import (
    "context"
    "sync/atomic"

    evhub_persist "github.com/Azure/azure-event-hubs-go/v3/persist"
    "github.com/Azure/go-amqp"
    "github.com/golang/glog"

    "github.com/azevhubclient/internal/config"
    "github.com/azevhubclient/internal/eventdata"
    "github.com/azevhubclient/internal/evherr"
    "github.com/azevhubclient/internal/position"
    "github.com/azevhubclient/internal/transport"
)

func newReceiver( cc *connectionContext, partitionId string, opts ReceiveOptions )( *Receiver, error ) {
    if err := config.ValidatePartitionId( partitionId ); err != nil {
        return nil, err
    }

    if len( opts.ConsumerGroup ) == 0 {
        opts.ConsumerGroup = config.DefaultConsumerGroup
    }

    if opts.Prefetch == 0 {
        opts.Prefetch = cc.opts.Prefetch
    }

    start := opts.Position
    if start == nil {
        start = cc.startPosition( opts.ConsumerGroup, partitionId )
    }

    if _, err := start.Expression( ); err != nil {
        return nil, err
    }

    pid := partitionId
    entity := newLinkEntity( cc, "receiver",
                             cc.cfg.ReceiverAddress( partitionId, opts.ConsumerGroup ),
                             cc.cfg.ReceiverAudience( partitionId, opts.ConsumerGroup ),
                             &pid )

    return &Receiver {
        linkEntity    : entity,
        consumerGroup : opts.ConsumerGroup,
        receivePid    : partitionId,
        opts          : opts,
        position      : start,
        initialCredit : func( )( uint32 ) { return opts.Prefetch },
    }, nil
}

// startPosition resumes from the persisted checkpoint when one exists.
func ( cc *connectionContext )startPosition( consumerGroup, partitionId string )( *position.Position ) {
    if cc.opts.CheckpointPersister == nil {
        return position.FromStart( )
    }

    checkPoint, err := cc.opts.CheckpointPersister.Read( cc.cfg.Host, cc.cfg.EntityPath, consumerGroup, partitionId )
    if err != nil {
        glog.V( 2 ).Infof( "[%s] No checkpoint for partition %s of %s: %v", cc.id, partitionId, consumerGroup, err )
        return position.FromStart( )
    }

    return position.FromCheckpoint( checkPoint )
}

func ( r *Receiver )PartitionId( )( string ) {
    return r.receivePid
}

func ( r *Receiver )ConsumerGroup( )( string ) {
    return r.consumerGroup
}

// Checkpoint is the position of the last received event.
func ( r *Receiver )Checkpoint( )( evhub_persist.Checkpoint, bool ) {
    r.mu.Lock( )
    defer r.mu.Unlock( )
    return r.checkpoint, r.hasCheckpoint
}

// RuntimeInfo is the last enqueued snapshot, kept only when runtime metrics were requested.
func ( r *Receiver )RuntimeInfo( )( *eventdata.RuntimeInfo, bool ) {
    r.mu.Lock( )
    defer r.mu.Unlock( )

    if r.runtimeInfo == nil {
        return nil, false
    }

    info := *r.runtimeInfo
    return &info, true
}

func ( r *Receiver )current( )( transport.Receiver ) {
    r.mu.Lock( )
    defer r.mu.Unlock( )
    return r.link
}

func ( r *Receiver )IsOpen( )( bool ) {
    link := r.current( )
    return link != nil && !isDone( link.Done( ) )
}

func ( r *Receiver )attachedTo( conn transport.Connection )( bool ) {
    r.mu.Lock( )
    defer r.mu.Unlock( )
    return r.link != nil && r.conn == conn
}

func ( r *Receiver )linkOptions( filter string, credit uint32 )( *transport.ReceiverOptions ) {
    opts := &transport.ReceiverOptions {
        Name          : r.Name( ),
        Filter        : filter,
        Credit        : credit,
        ManualCredits : true,
    }

    if r.opts.Epoch != nil || len( r.opts.Identifier ) > 0 {
        opts.Properties = make( map[ string ]interface{ } )

        if r.opts.Epoch != nil {
            opts.Properties[ epochProperty ] = *r.opts.Epoch
        }

        if len( r.opts.Identifier ) > 0 {
            opts.Properties[ receiverNameProperty ] = r.opts.Identifier
        }
    }

    if r.opts.EnableRuntimeMetric {
        opts.Capabilities = [ ]string{ runtimeMetricCapability }
    }

    return opts
}

func ( r *Receiver )init( ctx context.Context )( error ) {
    if r.IsOpen( ) {
        return nil
    }

    if r.isClosed( ) {
        return r.closedError( )
    }

    return r.cc.locks.Acquire( ctx, r.lockKey, func( ctx context.Context )( error ) {
        if r.IsOpen( ) {
            return nil
        }

        if r.isClosed( ) {
            return r.closedError( )
        }

        atomic.AddInt32( &r.connecting, 1 )
        defer atomic.AddInt32( &r.connecting, -1 )

        ctx, cancel := context.WithTimeout( ctx, r.cc.opts.OperationTimeout )
        defer cancel( )

        r.mu.Lock( )
        start := r.position
        r.mu.Unlock( )

        filter, err := start.Expression( )
        if err != nil {
            return err
        }

        if err = r.negotiateClaim( ctx, true ); err != nil {
            return err
        }

        conn, err := r.cc.connection( ctx )
        if err != nil {
            return err
        }

        session, err := conn.NewSession( ctx )
        if err != nil {
            return evherr.Translate( err )
        }

        credit := r.initialCredit( )
        link, err := session.NewReceiver( ctx, r.address, r.linkOptions( filter, credit ) )
        if err != nil {
            r.closeLink( ctx, nil, session )
            return evherr.Translate( err )
        }

        r.mu.Lock( )
        r.conn, r.session, r.link = conn, session, link
        r.pendingCredit = int64( credit )
        r.mu.Unlock( )

        if r.isClosed( ) {
            r.teardown( ctx )
            return r.closedError( )
        }

        r.cc.register( r.self, false )
        go r.watch( link )

        glog.Infof( "%s: opened on '%s' with filter %s", r.logPrefix( ), r.address, filter )

        if r.opened != nil {
            r.opened( link )
        }

        return nil
    } )
}

func ( r *Receiver )watch( link transport.Receiver ) {
    <-link.Done( )

    if r.current( ) != link {
        return
    }

    r.self.detached( link.Err( ) )
}

func ( r *Receiver )detached( err error ) {
    r.reconnect( r, err )
}

func ( r *Receiver )teardown( ctx context.Context ) {
    r.mu.Lock( )
    link, session := r.link, r.session
    r.conn, r.session, r.link = nil, nil, nil
    r.pendingCredit = 0
    r.mu.Unlock( )

    var l transport.Link
    if link != nil {
        l = link
    }

    r.closeLink( ctx, l, session )
}

// beforeReconnect moves the start position past the last received event.
func ( r *Receiver )beforeReconnect( ) {
    r.mu.Lock( )
    defer r.mu.Unlock( )

    if r.hasCheckpoint {
        r.position = position.FromSequenceNumber( r.checkpoint.SequenceNumber, false )
    }
}

func ( r *Receiver )fail( err error ) {
    if r.failed != nil {
        r.failed( err )
        return
    }

    glog.Errorf( "%s: closed after failure: %v", r.logPrefix( ), err )
}

func ( r *Receiver )Close( ctx context.Context )( error ) {
    if !atomic.CompareAndSwapInt32( &r.closed, 0, 1 ) {
        return nil
    }

    r.teardown( ctx )
    r.retire( )

    glog.Infof( "%s: closed", r.logPrefix( ) )
    return nil
}

func ( r *Receiver )issueCredit( credit uint32 ) {
    link := r.current( )
    if link == nil || credit == 0 {
        return
    }

    if err := link.IssueCredit( credit ); err != nil {
        glog.Warningf( "%s: failed to issue %d credits: %v", r.logPrefix( ), credit, err )
        return
    }

    r.mu.Lock( )
    r.pendingCredit += int64( credit )
    r.mu.Unlock( )
}

// process converts a delivery into an EventData and records it as the
// latest checkpoint.
func ( r *Receiver )process( ctx context.Context, link transport.Receiver, msg *amqp.Message )( *eventdata.EventData ) {
    ed := eventdata.FromAmqpMessage( msg, r.cc.opts.Transformer )

    r.mu.Lock( )
    if r.pendingCredit > 0 {
        r.pendingCredit--
    }

    if ed.SequenceNumber != nil {
        r.checkpoint.SequenceNumber = *ed.SequenceNumber
        r.hasCheckpoint = true
    }

    if ed.Offset != nil {
        r.checkpoint.Offset = *ed.Offset
    }

    if ed.EnqueuedTime != nil {
        r.checkpoint.EnqueueTime = *ed.EnqueuedTime
    }

    if r.opts.EnableRuntimeMetric {
        if info, ok := ed.RuntimeInfo( ); ok {
            r.runtimeInfo = info
        }
    }

    checkPoint, persist := r.checkpoint, r.hasCheckpoint && r.cc.opts.CheckpointPersister != nil
    r.mu.Unlock( )

    if persist {
        err := r.cc.opts.CheckpointPersister.Write( r.cc.cfg.Host, r.cc.cfg.EntityPath, r.consumerGroup, r.receivePid, checkPoint )
        if err != nil {
            glog.Warningf( "%s: failed to persist checkpoint: %v", r.logPrefix( ), err )
        }
    }

    if err := link.Accept( ctx, msg ); err != nil {
        glog.V( 2 ).Infof( "%s: failed to settle message: %v", r.logPrefix( ), err )
    }

    return ed
}
