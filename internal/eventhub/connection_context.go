package eventhub

import (
    "context"
    "time"

    "github.com/Azure/azure-amqp-common-go/v3/auth"
    "github.com/Azure/azure-amqp-common-go/v3/sas"
    "github.com/Azure/go-amqp"
    "github.com/devigned/tab"
    "github.com/golang/glog"
    "github.com/google/uuid"
    "golang.org/x/sync/errgroup"

    "github.com/azevhubclient/internal/config"
    "github.com/azevhubclient/internal/eventdata"
    "github.com/azevhubclient/internal/evherr"
    "github.com/azevhubclient/internal/namedlock"
    "github.com/azevhubclient/internal/retry"
    "github.com/azevhubclient/internal/transport"
)

func resolveOptions( cfg *config.ConnectionConfig, opts *ClientOptions )( ClientOptions, error ) {
    resolved := ClientOptions{ }
    if opts != nil {
        resolved = *opts
    }

    if resolved.Transformer == nil {
        resolved.Transformer = eventdata.JSONTransformer{ }
    }

    if resolved.TokenProvider == nil {
        provider, err := sas.NewTokenProvider( sas.TokenProviderWithKey( cfg.SharedAccessKeyName, cfg.SharedAccessKey ) )
        if err != nil {
            return resolved, evherr.Wrap( err, evherr.ArgumentError, false, "failed to create token provider: %v", err )
        }
        resolved.TokenProvider = provider
    }

    if resolved.Dialer == nil {
        resolved.Dialer = transport.AmqpDialer
    }

    if resolved.OperationTimeout <= 0 {
        resolved.OperationTimeout = DefaultOperationTimeout
    }

    if resolved.SendRetry.MaxAttempts == 0 {
        resolved.SendRetry = retry.SendPolicy( )
    }

    if resolved.ReconnectRetry.MaxAttempts == 0 {
        resolved.ReconnectRetry = retry.ReconnectPolicy( )
    }

    switch {
        case resolved.DisconnectDelay == 0:
            resolved.DisconnectDelay = DefaultDisconnectDelay
        case resolved.DisconnectDelay < 0:
            resolved.DisconnectDelay = 0
    }

    if resolved.TokenValidity <= 0 {
        resolved.TokenValidity = DefaultTokenValidity
    }

    if resolved.TokenRenewalMargin <= 0 {
        resolved.TokenRenewalMargin = DefaultTokenRenewalMargin
    }

    if resolved.TokenRenewalMargin >= resolved.TokenValidity {
        return resolved, evherr.NewArgumentError( "token renewal margin %v must be shorter than token validity %v",
                                                  resolved.TokenRenewalMargin, resolved.TokenValidity )
    }

    if resolved.Prefetch == 0 {
        resolved.Prefetch = DefaultPrefetch
    }

    return resolved, nil
}

func newConnectionContext( cfg *config.ConnectionConfig, opts *ClientOptions )( *connectionContext, error ) {
    if err := cfg.Validate( ); err != nil {
        return nil, err
    }

    resolved, err := resolveOptions( cfg, opts )
    if err != nil {
        return nil, err
    }

    userAgent, err := config.UserAgent( resolved.UserAgent )
    if err != nil {
        return nil, err
    }

    id := uuid.NewString( )
    ctx, cancel := context.WithCancel( context.Background( ) )

    return &connectionContext {
        id                    : id,
        cfg                   : cfg,
        opts                  : resolved,
        userAgent             : userAgent,
        locks                 : namedlock.New( ),
        connectionLockKey     : "connection-lock-" + id,
        cbsLockKey            : "cbs-lock-" + id,
        negotiateClaimLockKey : "negotiateClaim-" + id,
        ctx                   : ctx,
        cancel                : cancel,
        senders               : make( map[ string ]managedLink ),
        receivers             : make( map[ string ]managedLink ),
    }, nil
}

func isDone( ch <-chan struct{ } )( bool ) {
    select {
        case <-ch:
            return true
        default:
            return false
    }
}

func ( cc *connectionContext )currentConnection( )( transport.Connection ) {
    cc.mu.Lock( )
    defer cc.mu.Unlock( )

    if cc.conn != nil && isDone( cc.conn.Done( ) ) {
        return nil
    }

    return cc.conn
}

// connection returns the shared connection, dialing it on first use.
func ( cc *connectionContext )connection( ctx context.Context )( transport.Connection, error ) {
    if conn := cc.currentConnection( ); conn != nil {
        return conn, nil
    }

    var result transport.Connection

    err := cc.locks.Acquire( ctx, cc.connectionLockKey, func( ctx context.Context )( error ) {
        if result = cc.currentConnection( ); result != nil {
            return nil
        }

        if cc.isClosed( ) {
            return evherr.New( evherr.MessagingError, false, "[%s] the client has been closed", cc.id )
        }

        conn, err := cc.opts.Dialer.Dial( ctx, cc.cfg.Host, &transport.ConnOptions {
            HostName  : cc.cfg.Host,
            UserAgent : cc.userAgent,
        } )
        if err != nil {
            return evherr.Translate( err )
        }

        cc.mu.Lock( )
        if cc.wasConnectionCloseCalled {
            cc.mu.Unlock( )
            conn.Close( )
            return evherr.New( evherr.MessagingError, false, "[%s] the client has been closed", cc.id )
        }
        cc.conn = conn
        cc.cbs  = nil
        cc.mu.Unlock( )

        cc.watchers.Add( 1 )
        go cc.watch( conn )

        glog.Infof( "[%s] Connection opened to %s", cc.id, cc.cfg.Host )
        result = conn
        return nil
    } )

    return result, err
}

func ( cc *connectionContext )isClosed( )( bool ) {
    cc.mu.Lock( )
    defer cc.mu.Unlock( )
    return cc.wasConnectionCloseCalled
}

// watch fans an unexpected disconnect out to every registered sender and receiver.
func ( cc *connectionContext )watch( conn transport.Connection ) {
    defer cc.watchers.Done( )

    select {
        case <-conn.Done( ):
        case <-cc.ctx.Done( ):
            return
    }

    err := conn.Err( )

    cc.mu.Lock( )
    if cc.conn == conn {
        cc.conn = nil
        cc.cbs  = nil
    }
    closeCalled := cc.wasConnectionCloseCalled
    links := make( [ ]managedLink, 0, len( cc.senders ) + len( cc.receivers ) )
    for _, l := range cc.senders {
        links = append( links, l )
    }
    for _, l := range cc.receivers {
        links = append( links, l )
    }
    cc.mu.Unlock( )

    if closeCalled {
        glog.V( 2 ).Infof( "[%s] Connection closed by the client", cc.id )
        return
    }

    if len( links ) == 0 {
        glog.Infof( "[%s] Connection lost with no links attached: %v", cc.id, err )
        return
    }

    glog.Warningf( "[%s] Connection lost, reattaching %d links in %v: %v", cc.id, len( links ), cc.opts.DisconnectDelay, err )

    timer := time.NewTimer( cc.opts.DisconnectDelay )
    select {
        case <-timer.C:
        case <-cc.ctx.Done( ):
            timer.Stop( )
            return
    }

    var g errgroup.Group
    for _, l := range links {
        l := l
        if l.isConnecting( ) || !l.attachedTo( conn ) {
            continue
        }

        g.Go( func( )( error ) {
            l.detached( err )
            return nil
        } )
    }

    g.Wait( )
}

// cbsLink returns the $cbs link of the current connection, creating it once.
func ( cc *connectionContext )cbsLink( ctx context.Context )( transport.RPCLink, error ) {
    var link transport.RPCLink

    err := cc.locks.Acquire( ctx, cc.cbsLockKey, func( ctx context.Context )( error ) {
        conn, err := cc.connection( ctx )
        if err != nil {
            return err
        }

        cc.mu.Lock( )
        if cc.conn == conn && cc.cbs != nil {
            link = cc.cbs
        }
        cc.mu.Unlock( )

        if link != nil {
            return nil
        }

        created, err := conn.NewRPCLink( ctx, config.CbsAddress )
        if err != nil {
            return evherr.Translate( err )
        }

        cc.mu.Lock( )
        if cc.conn == conn {
            cc.cbs = created
        }
        cc.mu.Unlock( )

        glog.V( 2 ).Infof( "[%s] CBS session created", cc.id )
        link = created
        return nil
    } )

    return link, err
}

func ( cc *connectionContext )resetCbs( link transport.RPCLink ) {
    cc.mu.Lock( )
    defer cc.mu.Unlock( )

    if cc.cbs == link {
        cc.cbs = nil
    }
}

// negotiateClaim authorizes audience on the shared connection with a token
// from the configured provider.
func ( cc *connectionContext )negotiateClaim( ctx context.Context, audience string )( error ) {
    ctx, span := tab.StartSpan( ctx, "eventhub.connectionContext.negotiateClaim" )
    defer span.End( )
    span.AddAttributes( tab.StringAttribute( "eh.audience", audience ) )

    link, err := cc.cbsLink( ctx )
    if err != nil {
        tab.For( ctx ).Error( err )
        return err
    }

    token, err := cc.opts.TokenProvider.GetToken( audience )
    if err != nil {
        terr := evherr.Wrap( err, evherr.UnauthorizedError, false, "failed to get a token for %s: %v", audience, err )
        tab.For( ctx ).Error( terr )
        return terr
    }

    err = cc.locks.Acquire( ctx, cc.negotiateClaimLockKey, func( ctx context.Context )( error ) {
        return cc.putToken( ctx, link, audience, token )
    } )
    if err != nil {
        tab.For( ctx ).Error( err )
    }

    return err
}

func ( cc *connectionContext )putToken( ctx context.Context, link transport.RPCLink, audience string, token *auth.Token )( error ) {
    msg := &amqp.Message {
        Value      : token.Token,
        Properties : &amqp.MessageProperties {
            MessageID : uuid.NewString( ),
        },
        ApplicationProperties : map[ string ]interface{ } {
            "operation"  : "put-token",
            "type"       : string( token.TokenType ),
            "name"       : audience,
            "expiration" : token.Expiry,
        },
    }

    opCtx, cancel := context.WithTimeout( ctx, cc.opts.OperationTimeout )
    defer cancel( )

    res, err := link.RPC( opCtx, msg )
    if err != nil {
        cc.resetCbs( link )
        return evherr.Translate( err )
    }

    switch res.Code {
        case 200, 202:
            glog.V( 2 ).Infof( "[%s] Claim negotiated for %s", cc.id, audience )
            return nil
    }

    return evherr.FromStatusCode( res.Code, res.Description )
}

func ( cc *connectionContext )register( l managedLink, isSender bool ) {
    cc.mu.Lock( )
    defer cc.mu.Unlock( )

    if isSender {
        cc.senders[ l.Name( ) ] = l
    } else {
        cc.receivers[ l.Name( ) ] = l
    }
}

func ( cc *connectionContext )unregister( name string ) {
    cc.mu.Lock( )
    defer cc.mu.Unlock( )

    delete( cc.senders, name )
    delete( cc.receivers, name )
}

func ( cc *connectionContext )rename( oldName, newName string ) {
    cc.mu.Lock( )
    defer cc.mu.Unlock( )

    if l, ok := cc.senders[ oldName ]; ok {
        delete( cc.senders, oldName )
        cc.senders[ newName ] = l
    }

    if l, ok := cc.receivers[ oldName ]; ok {
        delete( cc.receivers, oldName )
        cc.receivers[ newName ] = l
    }
}

func ( cc *connectionContext )linkCount( )( int, int ) {
    cc.mu.Lock( )
    defer cc.mu.Unlock( )
    return len( cc.senders ), len( cc.receivers )
}

// close tears down every link and the connection. Link teardown failures are
// logged; only the connection close error is returned.
func ( cc *connectionContext )close( ctx context.Context )( error ) {
    cc.mu.Lock( )
    if cc.wasConnectionCloseCalled {
        cc.mu.Unlock( )
        return nil
    }

    cc.wasConnectionCloseCalled = true
    links := make( [ ]managedLink, 0, len( cc.senders ) + len( cc.receivers ) )
    for _, l := range cc.senders {
        links = append( links, l )
    }
    for _, l := range cc.receivers {
        links = append( links, l )
    }
    cc.mu.Unlock( )

    cc.cancel( )

    var g errgroup.Group
    for _, l := range links {
        l := l
        g.Go( func( )( error ) {
            if err := l.Close( ctx ); err != nil {
                glog.Warningf( "[%s] Failed to close link '%s': %v", cc.id, l.Name( ), err )
            }
            return nil
        } )
    }
    g.Wait( )

    cc.mu.Lock( )
    conn, cbs := cc.conn, cc.cbs
    cc.conn, cc.cbs = nil, nil
    cc.mu.Unlock( )

    if cbs != nil {
        if err := cbs.Close( ctx ); err != nil {
            glog.Warningf( "[%s] Failed to close the CBS link: %v", cc.id, err )
        }
    }

    var err error
    if conn != nil {
        if err = conn.Close( ); err != nil {
            glog.Warningf( "[%s] Failed to close the connection: %v", cc.id, err )
            err = evherr.Translate( err )
        }
    }

    cc.watchers.Wait( )
    cc.locks.Forget( cc.connectionLockKey, cc.cbsLockKey, cc.negotiateClaimLockKey )

    glog.Infof( "[%s] Connection context closed", cc.id )
    return err
}
