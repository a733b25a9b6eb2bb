package eventhub

import (
    "context"

    "github.com/golang/glog"

    "github.com/azevhubclient/internal/eventdata"
    "github.com/azevhubclient/internal/evherr"
    "github.com/azevhubclient/internal/transport"
)

func newStreamingReceiver( cc *connectionContext, partitionId string, opts ReceiveOptions )( *StreamingReceiver, error ) {
    base, err := newReceiver( cc, partitionId, opts )
    if err != nil {
        return nil, err
    }

    s := &StreamingReceiver {
        Receiver : base,
        events   : make( chan *eventdata.EventData, base.opts.Prefetch ),
        done     : make( chan struct{ } ),
    }

    s.handler          = &ReceiveHandler{ receiver : s }
    base.self          = s
    base.initialCredit = s.initialCredit
    base.opened        = s.startPump
    base.failed        = s.finish

    return s, nil
}

// initialCredit leaves room for the events still buffered from a previous link.
func ( s *StreamingReceiver )initialCredit( )( uint32 ) {
    credit := int( s.opts.Prefetch ) - len( s.events )
    if credit < 1 {
        credit = 1
    }

    return uint32( credit )
}

// Receive starts streaming, or replaces the callbacks and refills the credit
// window when the receiver is already streaming. A nil onMessage leaves the
// events to be pulled with ReceiveHandler.Next.
func ( s *StreamingReceiver )Receive( ctx context.Context, onMessage OnMessage, onError OnError )( *ReceiveHandler, error ) {
    if s.IsOpen( ) {
        s.resetCredit( )
    } else if err := s.cc.opts.SendRetry.Do( ctx, s.logPrefix( ) + " open", s.init ); err != nil {
        return nil, err
    }

    s.cbMu.Lock( )
    s.onMessage, s.onError = onMessage, onError
    start := onMessage != nil && !s.dispatching
    if start {
        s.dispatching = true
    }
    s.cbMu.Unlock( )

    if start {
        go s.dispatch( )
    }

    return s.handler, nil
}

func ( s *StreamingReceiver )resetCredit( ) {
    s.mu.Lock( )
    credit := int64( s.opts.Prefetch ) - int64( len( s.events ) ) - s.pendingCredit
    s.mu.Unlock( )

    if credit > 0 {
        s.issueCredit( uint32( credit ) )
    }
}

func ( s *StreamingReceiver )startPump( link transport.Receiver ) {
    s.pumpMu.Lock( )
    defer s.pumpMu.Unlock( )

    if s.isClosed( ) {
        return
    }

    if s.pumpCancel != nil {
        s.pumpCancel( )
    }

    ctx, cancel := context.WithCancel( s.cc.ctx )
    s.pumpCancel = cancel

    s.pumps.Add( 1 )
    go s.pump( ctx, link )
}

// pump moves deliveries from link into the event buffer until the link fails
// or the receiver stops.
func ( s *StreamingReceiver )pump( ctx context.Context, link transport.Receiver ) {
    defer s.pumps.Done( )

    for {
        msg, err := link.Receive( ctx )
        if err != nil {
            if ctx.Err( ) != nil || isDone( link.Done( ) ) {
                return
            }

            glog.Warningf( "%s: receive failed: %v", s.logPrefix( ), err )
            go s.detached( evherr.Translate( err ) )
            return
        }

        ed := s.process( ctx, link, msg )

        select {
            case s.events <- ed:
            case <-ctx.Done( ):
                return
        }
    }
}

// dispatch feeds buffered events to the callbacks until the receiver stops or fails.
func ( s *StreamingReceiver )dispatch( ) {
    defer func( ) {
        s.cbMu.Lock( )
        s.dispatching = false
        s.cbMu.Unlock( )
    }( )

    for {
        ed, err := s.handler.Next( context.Background( ) )

        s.cbMu.Lock( )
        onMessage, onError := s.onMessage, s.onError
        s.cbMu.Unlock( )

        if err != nil {
            if s.Err( ) != nil && onError != nil {
                onError( err )
            }
            return
        }

        if onMessage != nil {
            onMessage( ed )
        }
    }
}

// finish ends the stream. A nil err means the receiver was stopped.
func ( s *StreamingReceiver )finish( err error ) {
    s.doneOnce.Do( func( ) {
        s.errMu.Lock( )
        s.err = err
        s.errMu.Unlock( )
        close( s.done )
    } )
}

// Err is the failure that ended the stream, nil while streaming or after Stop.
func ( s *StreamingReceiver )Err( )( error ) {
    s.errMu.Lock( )
    defer s.errMu.Unlock( )
    return s.err
}

func ( s *StreamingReceiver )Close( ctx context.Context )( error ) {
    err := s.Receiver.Close( ctx )

    s.pumpMu.Lock( )
    if s.pumpCancel != nil {
        s.pumpCancel( )
    }
    s.pumpMu.Unlock( )

    s.pumps.Wait( )
    s.finish( nil )
    return err
}
