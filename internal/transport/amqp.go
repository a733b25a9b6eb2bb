package transport

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "runtime"

    "github.com/Azure/go-amqp"
    "github.com/Azure/azure-amqp-common-go/v3/rpc"
    "github.com/golang/glog"
)

const (
    productName    = "azevhubclient"
    productVersion = "1.0.0"
)

// AmqpDialer dials the namespace with go-amqp over TLS.
var AmqpDialer Dialer = DialerFunc( Dial )

func newLinkState( )( *linkState ) {
    return &linkState {
        done : make( chan struct{ } ),
    }
}

func ( s *linkState )fail( err error ) {
    s.once.Do( func( ) {
        s.mu.Lock( )
        s.err = err
        s.mu.Unlock( )
        close( s.done )
    } )
}

func ( s *linkState )Done( )( <-chan struct{ } ) {
    return s.done
}

func ( s *linkState )Err( )( error ) {
    s.mu.Lock( )
    defer s.mu.Unlock( )
    return s.err
}

func isConnectionGone( err error )( bool ) {
    if errors.Is( err, amqp.ErrConnClosed ) || errors.Is( err, io.EOF ) || errors.Is( err, io.ErrUnexpectedEOF ) {
        return true
    }

    var netErr net.Error
    return errors.As( err, &netErr )
}

func isLinkGone( err error )( bool ) {
    var detachErr *amqp.DetachError
    if errors.As( err, &detachErr ) {
        return true
    }

    return errors.Is( err, amqp.ErrLinkClosed ) || errors.Is( err, amqp.ErrSessionClosed ) || isConnectionGone( err )
}

// observe propagates transport failures to the detach signals of the link and
// its connection.
func ( c *amqpConnection )observe( link *linkState, err error ) {
    if err == nil {
        return
    }

    if isConnectionGone( err ) {
        c.fail( err )
    }

    if link != nil && isLinkGone( err ) {
        link.fail( err )
    }
}

func Dial( ctx context.Context, host string, opts *ConnOptions )( Connection, error ) {
    if opts == nil {
        opts = &ConnOptions{ }
    }

    hostName := opts.HostName
    if len( hostName ) == 0 {
        hostName = host
    }

    connOpts := [ ]amqp.ConnOption {
        amqp.ConnSASLAnonymous( ),
        amqp.ConnServerHostname( hostName ),
        amqp.ConnProperty( "product", productName ),
        amqp.ConnProperty( "version", productVersion ),
        amqp.ConnProperty( "platform", runtime.GOOS + "/" + runtime.GOARCH ),
        amqp.ConnProperty( "framework", runtime.Version( ) ),
        amqp.ConnProperty( "user-agent", opts.UserAgent ),
    }

    if opts.IdleTimeout > 0 {
        connOpts = append( connOpts, amqp.ConnIdleTimeout( opts.IdleTimeout ) )
    }

    type dialResult struct {
        client *amqp.Client
        err    error
    }

    results := make( chan dialResult, 1 )
    go func( ) {
        client, err := amqp.Dial( "amqps://" + host, connOpts... )
        results <- dialResult{ client, err }
    }( )

    select {
        case r := <-results:
            if r.err != nil {
                return nil, r.err
            }

            glog.V( 2 ).Infof( "Connected to %s", host )
            return &amqpConnection{ client : r.client, linkState : newLinkState( ) }, nil

        case <-ctx.Done( ):
            go func( ) {
                if r := <-results; r.client != nil {
                    r.client.Close( )
                }
            }( )
            return nil, ctx.Err( )
    }
}

func ( c *amqpConnection )NewSession( ctx context.Context )( Session, error ) {
    session, err := c.client.NewSession( )
    if err != nil {
        c.observe( nil, err )
        return nil, err
    }

    return &amqpSession{ conn : c, session : session }, nil
}

func ( c *amqpConnection )NewRPCLink( ctx context.Context, address string )( RPCLink, error ) {
    link, err := rpc.NewLink( c.client, address )
    if err != nil {
        c.observe( nil, err )
        return nil, err
    }

    return &amqpRPCLink{ conn : c, link : link }, nil
}

func ( c *amqpConnection )Close( )( error ) {
    err := c.client.Close( )
    c.fail( nil )
    return err
}

func ( s *amqpSession )NewSender( ctx context.Context, address string, opts *SenderOptions )( Sender, error ) {
    sender, err := s.session.NewSender(
        amqp.LinkTargetAddress( address ),
        amqp.LinkName( opts.Name ),
    )
    if err != nil {
        s.conn.observe( nil, err )
        return nil, err
    }

    return &amqpSender{ conn : s.conn, sender : sender, linkState : newLinkState( ) }, nil
}

// receiverLinkOptions maps opts onto go-amqp link options. Link properties
// must be int64 or string.
func receiverLinkOptions( address string, opts *ReceiverOptions )( [ ]amqp.LinkOption, error ) {
    receiverOpts := [ ]amqp.LinkOption {
        amqp.LinkSourceAddress( address ),
        amqp.LinkName( opts.Name ),
        amqp.LinkCredit( opts.Credit ),
    }

    if opts.ManualCredits {
        receiverOpts = append( receiverOpts, amqp.LinkWithManualCredits( ) )
    }

    if len( opts.Filter ) > 0 {
        receiverOpts = append( receiverOpts, amqp.LinkSelectorFilter( opts.Filter ) )
    }

    for key, value := range opts.Properties {
        switch v := value.( type ) {
            case int64:
                receiverOpts = append( receiverOpts, amqp.LinkPropertyInt64( key, v ) )

            case string:
                receiverOpts = append( receiverOpts, amqp.LinkProperty( key, v ) )

            default:
                return nil, fmt.Errorf( "unsupported link property %s of type %T", key, value )
        }
    }

    if len( opts.Capabilities ) > 0 {
        receiverOpts = append( receiverOpts, amqp.LinkSourceCapabilities( opts.Capabilities... ) )
    }

    return receiverOpts, nil
}

func ( s *amqpSession )NewReceiver( ctx context.Context, address string, opts *ReceiverOptions )( Receiver, error ) {
    receiverOpts, err := receiverLinkOptions( address, opts )
    if err != nil {
        return nil, err
    }

    receiver, err := s.session.NewReceiver( receiverOpts... )
    if err != nil {
        s.conn.observe( nil, err )
        return nil, err
    }

    return &amqpReceiver{ conn : s.conn, receiver : receiver, linkState : newLinkState( ) }, nil
}

func ( s *amqpSession )Close( ctx context.Context )( error ) {
    return s.session.Close( ctx )
}

func ( s *amqpSender )Send( ctx context.Context, msg *amqp.Message )( error ) {
    err := s.sender.Send( ctx, msg )
    if err == nil {
        return nil
    }

    var amqpErr *amqp.Error
    if errors.As( err, &amqpErr ) {
        return amqpErr
    }

    s.conn.observe( s.linkState, err )
    return err
}

// Sendable is true while the link is attached. go-amqp waits for credit inside
// Send, so credit starvation surfaces as a send timeout instead.
func ( s *amqpSender )Sendable( )( bool ) {
    select {
        case <-s.done:
            return false
        default:
            return true
    }
}

func ( s *amqpSender )Close( ctx context.Context )( error ) {
    err := s.sender.Close( ctx )
    s.fail( nil )
    return err
}

func ( r *amqpReceiver )Receive( ctx context.Context )( *amqp.Message, error ) {
    msg, err := r.receiver.Receive( ctx )
    if err != nil {
        r.conn.observe( r.linkState, err )
        return nil, err
    }

    return msg, nil
}

func ( r *amqpReceiver )Accept( ctx context.Context, msg *amqp.Message )( error ) {
    err := r.receiver.AcceptMessage( ctx, msg )
    r.conn.observe( r.linkState, err )
    return err
}

func ( r *amqpReceiver )IssueCredit( credit uint32 )( error ) {
    err := r.receiver.IssueCredit( credit )
    r.conn.observe( r.linkState, err )
    return err
}

func ( r *amqpReceiver )Close( ctx context.Context )( error ) {
    err := r.receiver.Close( ctx )
    r.fail( nil )
    return err
}

func ( l *amqpRPCLink )RPC( ctx context.Context, msg *amqp.Message )( *Response, error ) {
    res, err := l.link.RPC( ctx, msg )
    if err != nil {
        l.conn.observe( nil, err )
        return nil, err
    }

    return &Response {
        Code        : res.Code,
        Description : res.Description,
        Message     : res.Message,
    }, nil
}

func ( l *amqpRPCLink )Close( ctx context.Context )( error ) {
    return l.link.Close( ctx )
}
