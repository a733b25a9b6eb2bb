package eventhub

import (
    "context"
    "sync/atomic"

    "github.com/Azure/go-amqp"
    "github.com/devigned/tab"
    "github.com/golang/glog"

    "github.com/azevhubclient/internal/eventdata"
    "github.com/azevhubclient/internal/evherr"
    "github.com/azevhubclient/internal/transport"
)

func newSender( cc *connectionContext, partitionId *string )( *Sender ) {
    return &Sender {
        linkEntity : newLinkEntity( cc, "sender", cc.cfg.SenderAddress( partitionId ), cc.cfg.SenderAudience( partitionId ), partitionId ),
    }
}

func ( s *Sender )current( )( transport.Sender ) {
    s.mu.Lock( )
    defer s.mu.Unlock( )
    return s.link
}

func ( s *Sender )IsOpen( )( bool ) {
    link := s.current( )
    return link != nil && !isDone( link.Done( ) )
}

func ( s *Sender )attachedTo( conn transport.Connection )( bool ) {
    s.mu.Lock( )
    defer s.mu.Unlock( )
    return s.link != nil && s.conn == conn
}

// init opens the send link unless it is already open. Concurrent callers are
// serialized by the sender's named lock.
func ( s *Sender )init( ctx context.Context )( error ) {
    if s.IsOpen( ) {
        return nil
    }

    if s.isClosed( ) {
        return s.closedError( )
    }

    return s.cc.locks.Acquire( ctx, s.lockKey, func( ctx context.Context )( error ) {
        if s.IsOpen( ) {
            return nil
        }

        if s.isClosed( ) {
            return s.closedError( )
        }

        atomic.AddInt32( &s.connecting, 1 )
        defer atomic.AddInt32( &s.connecting, -1 )

        ctx, cancel := context.WithTimeout( ctx, s.cc.opts.OperationTimeout )
        defer cancel( )

        if err := s.negotiateClaim( ctx, true ); err != nil {
            return err
        }

        conn, err := s.cc.connection( ctx )
        if err != nil {
            return err
        }

        session, err := conn.NewSession( ctx )
        if err != nil {
            return evherr.Translate( err )
        }

        link, err := session.NewSender( ctx, s.address, &transport.SenderOptions{ Name : s.Name( ) } )
        if err != nil {
            s.closeLink( ctx, nil, session )
            return evherr.Translate( err )
        }

        s.mu.Lock( )
        s.conn, s.session, s.link = conn, session, link
        s.mu.Unlock( )

        if s.isClosed( ) {
            s.teardown( ctx )
            return s.closedError( )
        }

        s.cc.register( s, true )
        go s.watch( link )

        glog.Infof( "%s: opened on '%s'", s.logPrefix( ), s.address )
        return nil
    } )
}

func ( s *Sender )watch( link transport.Sender ) {
    <-link.Done( )

    if s.current( ) != link {
        return
    }

    s.detached( link.Err( ) )
}

func ( s *Sender )detached( err error ) {
    s.reconnect( s, err )
}

func ( s *Sender )teardown( ctx context.Context ) {
    s.mu.Lock( )
    link, session := s.link, s.session
    s.conn, s.session, s.link = nil, nil, nil
    s.mu.Unlock( )

    var l transport.Link
    if link != nil {
        l = link
    }

    s.closeLink( ctx, l, session )
}

func ( s *Sender )beforeReconnect( ) {
}

func ( s *Sender )fail( err error ) {
    glog.Errorf( "%s: closed after failure: %v", s.logPrefix( ), err )
}

// Close detaches the sender. Teardown failures are logged, never returned.
func ( s *Sender )Close( ctx context.Context )( error ) {
    if !atomic.CompareAndSwapInt32( &s.closed, 0, 1 ) {
        return nil
    }

    s.teardown( ctx )
    s.retire( )

    glog.Infof( "%s: closed", s.logPrefix( ) )
    return nil
}

func ( s *Sender )startSpan( ctx context.Context, operation string )( context.Context, tab.Spanner ) {
    ctx, span := tab.StartSpan( ctx, operation )
    span.AddAttributes(
        tab.StringAttribute( "eh.link_name", s.Name( ) ),
        tab.StringAttribute( "eh.address", s.address ),
    )

    if s.partitionId != nil {
        span.AddAttributes( tab.StringAttribute( "eh.partition_id", *s.partitionId ) )
    }

    return ctx, span
}

// Send delivers a single event and waits for the service to accept it.
func ( s *Sender )Send( ctx context.Context, ed *eventdata.EventData )( error ) {
    ctx, span := s.startSpan( ctx, "eventhub.Sender.Send" )
    defer span.End( )

    msg, err := eventdata.ToAmqpMessage( ed, s.cc.opts.Transformer )
    if err != nil {
        tab.For( ctx ).Error( err )
        return err
    }

    if err = s.send( ctx, msg ); err != nil {
        tab.For( ctx ).Error( err )
    }

    return err
}

// SendBatch delivers events as one batch envelope.
func ( s *Sender )SendBatch( ctx context.Context, events [ ]*eventdata.EventData )( error ) {
    ctx, span := s.startSpan( ctx, "eventhub.Sender.SendBatch" )
    defer span.End( )
    span.AddAttributes( tab.Int64Attribute( "eh.message_count", int64( len( events ) ) ) )

    envelope, err := eventdata.BatchMessage( events, s.cc.opts.Transformer )
    if err != nil {
        tab.For( ctx ).Error( err )
        return err
    }

    if err = s.send( ctx, envelope ); err != nil {
        tab.For( ctx ).Error( err )
    }

    return err
}

func ( s *Sender )send( ctx context.Context, msg *amqp.Message )( error ) {
    return s.cc.opts.SendRetry.Do( ctx, s.logPrefix( ) + " send", func( ctx context.Context )( error ) {
        if err := s.init( ctx ); err != nil {
            return err
        }

        return s.trySend( ctx, msg )
    } )
}

// trySend submits msg once. Exactly one of the delivery outcome, the
// operation timeout or the caller's cancellation settles the attempt.
func ( s *Sender )trySend( ctx context.Context, msg *amqp.Message )( error ) {
    link := s.current( )
    if link == nil {
        return evherr.New( evherr.ServiceCommunicationError, true, "%s: the link is not open", s.logPrefix( ) )
    }

    if !link.Sendable( ) {
        return evherr.NewSenderBusyError( "%s: cannot send the message right now, the link has no credit", s.logPrefix( ) )
    }

    sendCtx, cancel := context.WithTimeout( ctx, s.cc.opts.OperationTimeout )
    defer cancel( )

    outcome := make( chan error, 1 )
    go func( ) {
        outcome <- link.Send( sendCtx, msg )
    }( )

    select {
        case err := <-outcome:
            return evherr.Translate( err )

        case <-sendCtx.Done( ):
            if ctx.Err( ) != nil {
                return evherr.Translate( ctx.Err( ) )
            }

            return evherr.NewTimeoutError( "%s: no delivery outcome within %v", s.logPrefix( ), s.cc.opts.OperationTimeout )
    }
}
