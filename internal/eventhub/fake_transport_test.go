package eventhub

import (
    "context"
    "fmt"
    "regexp"
    "strconv"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    "github.com/Azure/go-amqp"

    "github.com/azevhubclient/internal/config"
    "github.com/azevhubclient/internal/retry"
    "github.com/azevhubclient/internal/transport"
)

const (
    testConnStr    = "Endpoint=sb://fakens.servicebus.windows.net/;SharedAccessKeyName=RootManageSharedAccessKey;SharedAccessKey=ZmFrZWtleQ==;EntityPath=fakehub"
    testIotConnStr = "HostName=fakeiot.azure-devices.net;SharedAccessKeyName=iothubowner;SharedAccessKey=ZmFrZWtleQ=="
    testRedirect   = "amqps://fakeredirect.servicebus.windows.net:5671/iothub-ehub-fakeiot/$management"
)

var filterPattern = regexp.MustCompile( `x-opt-(offset|sequence-number|enqueued-time) (>=|>) '(.*)'` )

// fakeBroker is an in memory Event Hub reachable through the transport interfaces.
type fakeBroker struct {
    mu            sync.Mutex
    changed       chan struct{ }
    partitionIds  [ ]string
    queues        map[ string ][ ]*amqp.Message

    dials         int32
    cbsLinks      int32
    putTokens     int32
    rpcDelay      time.Duration

    conns         [ ]*fakeConn
    senders       [ ]*fakeSender
    receivers     [ ]*fakeReceiver

    // Optional hooks.
    sendHook      func( s *fakeSender, msg *amqp.Message )( error )
    attachHook    func( name string )
    noCredit      bool
    dialErr       error
    redirectHosts map[ string ]string
}

func newFakeBroker( )( *fakeBroker ) {
    return &fakeBroker {
        changed       : make( chan struct{ } ),
        partitionIds  : [ ]string{ "0", "1" },
        queues        : make( map[ string ][ ]*amqp.Message ),
        redirectHosts : make( map[ string ]string ),
    }
}

func testOptions( b *fakeBroker )( *ClientOptions ) {
    return &ClientOptions {
        Dialer           : transport.DialerFunc( b.dial ),
        OperationTimeout : 2 * time.Second,
        SendRetry        : retry.Policy{ MaxAttempts : 3, Delay : 5 * time.Millisecond },
        ReconnectRetry   : retry.Policy{ MaxAttempts : 5, Delay : 5 * time.Millisecond },
        DisconnectDelay  : 5 * time.Millisecond,
        Prefetch         : 10,
    }
}

func newTestContext( b *fakeBroker )( *connectionContext ) {
    cfg, err := config.Parse( testConnStr, "" )
    if err != nil {
        panic( err )
    }

    cc, err := newConnectionContext( cfg, testOptions( b ) )
    if err != nil {
        panic( err )
    }

    return cc
}

// notify wakes every waiting receiver. Callers hold b.mu.
func ( b *fakeBroker )notify( ) {
    close( b.changed )
    b.changed = make( chan struct{ } )
}

func ( b *fakeBroker )publish( partitionId string, msg *amqp.Message ) {
    b.mu.Lock( )
    defer b.mu.Unlock( )

    seq := int64( len( b.queues[ partitionId ] ) )

    stored := *msg
    stored.Annotations = amqp.Annotations{ }
    for k, v := range msg.Annotations {
        stored.Annotations[ k ] = v
    }
    stored.Annotations[ "x-opt-sequence-number" ] = seq
    stored.Annotations[ "x-opt-offset" ] = strconv.FormatInt( seq, 10 )
    stored.Annotations[ "x-opt-enqueued-time" ] = time.Now( ).UTC( )

    b.queues[ partitionId ] = append( b.queues[ partitionId ], &stored )
    b.notify( )
}

func ( b *fakeBroker )publishBody( partitionId string, bodies ...string ) {
    for _, body := range bodies {
        b.publish( partitionId, &amqp.Message{ Data : [ ][ ]byte{ [ ]byte( body ) } } )
    }
}

func ( b *fakeBroker )dial( ctx context.Context, host string, opts *transport.ConnOptions )( transport.Connection, error ) {
    atomic.AddInt32( &b.dials, 1 )

    conn := &fakeConn{ broker : b, host : host, done : make( chan struct{ } ) }

    b.mu.Lock( )
    defer b.mu.Unlock( )

    if b.dialErr != nil {
        return nil, b.dialErr
    }

    b.conns = append( b.conns, conn )

    return conn, nil
}

func ( b *fakeBroker )failDials( err error ) {
    b.mu.Lock( )
    defer b.mu.Unlock( )
    b.dialErr = err
}

func ( b *fakeBroker )lastConn( )( *fakeConn ) {
    b.mu.Lock( )
    defer b.mu.Unlock( )
    return b.conns[ len( b.conns ) - 1 ]
}

func ( b *fakeBroker )senderNames( )( [ ]string ) {
    b.mu.Lock( )
    defer b.mu.Unlock( )

    names := make( [ ]string, 0, len( b.senders ) )
    for _, s := range b.senders {
        names = append( names, s.name )
    }
    return names
}

func ( b *fakeBroker )lastSender( )( *fakeSender ) {
    b.mu.Lock( )
    defer b.mu.Unlock( )
    return b.senders[ len( b.senders ) - 1 ]
}

func ( b *fakeBroker )receiverCount( )( int ) {
    b.mu.Lock( )
    defer b.mu.Unlock( )
    return len( b.receivers )
}

func ( b *fakeBroker )lastReceiver( )( *fakeReceiver ) {
    b.mu.Lock( )
    defer b.mu.Unlock( )
    return b.receivers[ len( b.receivers ) - 1 ]
}

// fakeState mirrors the detach signal of the real adapter.
type fakeState struct {
    once    sync.Once
    done    chan struct{ }
    mu      sync.Mutex
    err     error
}

func ( s *fakeState )detach( err error ) {
    s.once.Do( func( ) {
        s.mu.Lock( )
        s.err = err
        s.mu.Unlock( )
        close( s.done )
    } )
}

func ( s *fakeState )Done( )( <-chan struct{ } ) {
    return s.done
}

func ( s *fakeState )Err( )( error ) {
    s.mu.Lock( )
    defer s.mu.Unlock( )
    return s.err
}

type fakeConn struct {
    broker  *fakeBroker
    host    string
    done    chan struct{ }
    once    sync.Once
    mu      sync.Mutex
    err     error
}

func ( c *fakeConn )drop( err error ) {
    c.once.Do( func( ) {
        c.mu.Lock( )
        c.err = err
        c.mu.Unlock( )
        close( c.done )
    } )
}

func ( c *fakeConn )Done( )( <-chan struct{ } ) {
    return c.done
}

func ( c *fakeConn )Err( )( error ) {
    c.mu.Lock( )
    defer c.mu.Unlock( )
    return c.err
}

func ( c *fakeConn )Close( )( error ) {
    c.drop( nil )
    return nil
}

func ( c *fakeConn )NewSession( ctx context.Context )( transport.Session, error ) {
    if isDone( c.done ) {
        return nil, amqp.ErrConnClosed
    }

    return &fakeSession{ conn : c }, nil
}

func ( c *fakeConn )NewRPCLink( ctx context.Context, address string )( transport.RPCLink, error ) {
    if isDone( c.done ) {
        return nil, amqp.ErrConnClosed
    }

    switch address {
        case config.CbsAddress:
            atomic.AddInt32( &c.broker.cbsLinks, 1 )

        case config.ManagementAddress:
            c.broker.mu.Lock( )
            redirect, ok := c.broker.redirectHosts[ c.host ]
            c.broker.mu.Unlock( )

            if ok {
                return nil, &amqp.Error {
                    Condition   : "amqp:link:redirect",
                    Description : "redirected",
                    Info        : map[ string ]interface{ }{ "address" : redirect },
                }
            }
    }

    return &fakeRPCLink{ conn : c, address : address }, nil
}

type fakeSession struct {
    conn    *fakeConn
}

func ( s *fakeSession )NewSender( ctx context.Context, address string, opts *transport.SenderOptions )( transport.Sender, error ) {
    if isDone( s.conn.done ) {
        return nil, amqp.ErrConnClosed
    }

    sender := &fakeSender {
        broker    : s.conn.broker,
        address   : address,
        name      : opts.Name,
        fakeState : fakeState{ done : make( chan struct{ } ) },
    }

    b := s.conn.broker
    b.mu.Lock( )
    b.senders = append( b.senders, sender )
    b.mu.Unlock( )

    if b.attachHook != nil {
        b.attachHook( opts.Name )
    }

    return sender, nil
}

func ( s *fakeSession )NewReceiver( ctx context.Context, address string, opts *transport.ReceiverOptions )( transport.Receiver, error ) {
    if isDone( s.conn.done ) {
        return nil, amqp.ErrConnClosed
    }

    b := s.conn.broker
    partitionId := address[ strings.LastIndex( address, "/" ) + 1: ]

    b.mu.Lock( )
    defer b.mu.Unlock( )

    receiver := &fakeReceiver {
        broker      : b,
        address     : address,
        partitionId : partitionId,
        opts        : *opts,
        credit      : opts.Credit,
        cursor      : startCursor( opts.Filter, len( b.queues[ partitionId ] ) ),
        fakeState   : fakeState{ done : make( chan struct{ } ) },
    }

    b.receivers = append( b.receivers, receiver )
    return receiver, nil
}

func ( s *fakeSession )Close( ctx context.Context )( error ) {
    return nil
}

// startCursor maps a selector filter onto an index of the partition queue.
func startCursor( filter string, queued int )( int ) {
    m := filterPattern.FindStringSubmatch( filter )
    if m == nil {
        return 0
    }

    switch {
        case m[ 3 ] == "-1":
            return 0
        case m[ 3 ] == "@latest":
            return queued
        case m[ 1 ] == "enqueued-time":
            return 0
    }

    n, err := strconv.Atoi( m[ 3 ] )
    if err != nil {
        return 0
    }

    if m[ 2 ] == ">" {
        n++
    }

    return n
}

type fakeSender struct {
    broker  *fakeBroker
    address string
    name    string
    sent    int32
    fakeState
}

func ( s *fakeSender )Send( ctx context.Context, msg *amqp.Message )( error ) {
    if isDone( s.done ) {
        return amqp.ErrLinkClosed
    }

    atomic.AddInt32( &s.sent, 1 )

    if hook := s.broker.sendHook; hook != nil {
        if err := hook( s, msg ); err != nil {
            return err
        }
    }

    partitionId := "0"
    if idx := strings.Index( s.address, "/Partitions/" ); idx >= 0 {
        partitionId = s.address[ idx + len( "/Partitions/" ): ]
    }

    if msg.Format != 0x80013700 {
        s.broker.publish( partitionId, msg )
        return nil
    }

    for _, data := range msg.Data {
        inner := &amqp.Message{ }
        if err := inner.UnmarshalBinary( data ); err != nil {
            return err
        }
        s.broker.publish( partitionId, inner )
    }

    return nil
}

func ( s *fakeSender )Sendable( )( bool ) {
    return !isDone( s.done ) && !s.broker.noCredit
}

func ( s *fakeSender )Close( ctx context.Context )( error ) {
    s.detach( nil )
    return nil
}

type fakeReceiver struct {
    broker      *fakeBroker
    address     string
    partitionId string
    opts        transport.ReceiverOptions
    credit      uint32
    cursor      int
    accepted    int32
    fakeState
}

func ( r *fakeReceiver )Receive( ctx context.Context )( *amqp.Message, error ) {
    b := r.broker

    for {
        b.mu.Lock( )
        if isDone( r.done ) {
            b.mu.Unlock( )
            if err := r.Err( ); err != nil {
                return nil, err
            }
            return nil, amqp.ErrLinkClosed
        }

        queue := b.queues[ r.partitionId ]
        if r.credit > 0 && r.cursor < len( queue ) {
            msg := queue[ r.cursor ]
            r.cursor++
            r.credit--
            b.mu.Unlock( )
            return msg, nil
        }

        changed := b.changed
        b.mu.Unlock( )

        select {
            case <-changed:
            case <-r.done:
            case <-ctx.Done( ):
                return nil, ctx.Err( )
        }
    }
}

func ( r *fakeReceiver )Accept( ctx context.Context, msg *amqp.Message )( error ) {
    atomic.AddInt32( &r.accepted, 1 )
    return nil
}

func ( r *fakeReceiver )IssueCredit( credit uint32 )( error ) {
    b := r.broker

    b.mu.Lock( )
    defer b.mu.Unlock( )

    r.credit += credit
    b.notify( )
    return nil
}

func ( r *fakeReceiver )Close( ctx context.Context )( error ) {
    r.detach( nil )
    return nil
}

func ( r *fakeReceiver )currentCredit( )( uint32 ) {
    r.broker.mu.Lock( )
    defer r.broker.mu.Unlock( )
    return r.credit
}

type fakeRPCLink struct {
    conn    *fakeConn
    address string
}

func ( l *fakeRPCLink )RPC( ctx context.Context, msg *amqp.Message )( *transport.Response, error ) {
    b := l.conn.broker

    if isDone( l.conn.done ) {
        return nil, amqp.ErrConnClosed
    }

    if l.address == config.CbsAddress {
        if b.rpcDelay > 0 {
            time.Sleep( b.rpcDelay )
        }

        atomic.AddInt32( &b.putTokens, 1 )
        if msg.ApplicationProperties[ "operation" ] != "put-token" {
            return &transport.Response{ Code : 400, Description : "unexpected operation" }, nil
        }
        return &transport.Response{ Code : 202, Description : "accepted" }, nil
    }

    props := msg.ApplicationProperties
    if props[ "operation" ] != "READ" {
        return &transport.Response{ Code : 400, Description : "unexpected operation" }, nil
    }

    switch props[ "type" ] {
        case "com.microsoft:eventhub":
            return &transport.Response {
                Code    : 200,
                Message : &amqp.Message {
                    Value : map[ string ]interface{ } {
                        "name"            : props[ "name" ],
                        "type"            : "com.microsoft:eventhub",
                        "created_at"      : time.UnixMilli( 1546300800000 ).UTC( ),
                        "partition_count" : int32( len( b.partitionIds ) ),
                        "partition_ids"   : b.partitionIds,
                    },
                },
            }, nil

        case "com.microsoft:partition":
            partitionId := fmt.Sprint( props[ "partition" ] )

            b.mu.Lock( )
            queued := int64( len( b.queues[ partitionId ] ) )
            b.mu.Unlock( )

            return &transport.Response {
                Code    : 200,
                Message : &amqp.Message {
                    Value : map[ interface{ } ]interface{ } {
                        "name"                          : props[ "name" ],
                        "type"                          : "com.microsoft:partition",
                        "partition"                     : partitionId,
                        "begin_sequence_number"         : int64( 0 ),
                        "last_enqueued_sequence_number" : queued - 1,
                        "last_enqueued_offset"          : strconv.FormatInt( queued - 1, 10 ),
                        "last_enqueued_time_utc"        : int64( 1546300800000 ),
                        "is_partition_empty"            : queued == 0,
                    },
                },
            }, nil
    }

    return &transport.Response{ Code : 404, Description : "no such entity" }, nil
}

func ( l *fakeRPCLink )Close( ctx context.Context )( error ) {
    return nil
}
