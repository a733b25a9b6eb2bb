package transport

import (
    "context"
    "sync"
    "time"

    "github.com/Azure/go-amqp"
    "github.com/Azure/azure-amqp-common-go/v3/rpc"
)

type ConnOptions struct {
    HostName    string
    UserAgent   string
    IdleTimeout time.Duration
}

type SenderOptions struct {
    Name        string
}

type ReceiverOptions struct {
    Name            string
    Filter          string
    Credit          uint32
    ManualCredits   bool
    Properties      map[ string ]interface{ }
    Capabilities    [ ]string
}

// Response is the decoded reply of a request/response link.
type Response struct {
    Code        int
    Description string
    Message     *amqp.Message
}

// Dialer opens a connection to an Event Hubs namespace host.
type Dialer interface {
    Dial( ctx context.Context, host string, opts *ConnOptions )( Connection, error )
}

type DialerFunc func( ctx context.Context, host string, opts *ConnOptions )( Connection, error )

func ( f DialerFunc )Dial( ctx context.Context, host string, opts *ConnOptions )( Connection, error ) {
    return f( ctx, host, opts )
}

// Connection is a single AMQP connection. Done is closed once the connection
// is gone, after which Err reports why (nil after a local Close).
type Connection interface {
    NewSession( ctx context.Context )( Session, error )
    NewRPCLink( ctx context.Context, address string )( RPCLink, error )
    Close( )( error )
    Done( )( <-chan struct{ } )
    Err( )( error )
}

type Session interface {
    NewSender( ctx context.Context, address string, opts *SenderOptions )( Sender, error )
    NewReceiver( ctx context.Context, address string, opts *ReceiverOptions )( Receiver, error )
    Close( ctx context.Context )( error )
}

// Link is the part shared by senders and receivers. Done is closed when the
// link detaches or is closed; Err reports the detach cause.
type Link interface {
    Close( ctx context.Context )( error )
    Done( )( <-chan struct{ } )
    Err( )( error )
}

type Sender interface {
    Link

    // Send blocks until the peer settles the message. go-amqp reports only the
    // rejected outcome as an error; released and modified settle as nil.
    Send( ctx context.Context, msg *amqp.Message )( error )

    // Sendable reports whether the link can accept another message right now.
    Sendable( )( bool )
}

type Receiver interface {
    Link

    Receive( ctx context.Context )( *amqp.Message, error )
    Accept( ctx context.Context, msg *amqp.Message )( error )
    IssueCredit( credit uint32 )( error )
}

type RPCLink interface {
    RPC( ctx context.Context, msg *amqp.Message )( *Response, error )
    Close( ctx context.Context )( error )
}

// linkState tracks the detach signal of a link or connection.
type linkState struct {
    once    sync.Once
    done    chan struct{ }
    mu      sync.Mutex
    err     error
}

type amqpConnection struct {
    client  *amqp.Client
    *linkState
}

type amqpSession struct {
    conn    *amqpConnection
    session *amqp.Session
}

type amqpSender struct {
    conn    *amqpConnection
    sender  *amqp.Sender
    *linkState
}

type amqpReceiver struct {
    conn     *amqpConnection
    receiver *amqp.Receiver
    *linkState
}

type amqpRPCLink struct {
    conn    *amqpConnection
    link    *rpc.Link
}
