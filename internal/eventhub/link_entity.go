package eventhub

import (
    "context"
    "fmt"
    "sync/atomic"
    "time"

    "github.com/golang/glog"
    "github.com/google/uuid"

    "github.com/azevhubclient/internal/evherr"
    "github.com/azevhubclient/internal/transport"
)

func newLinkEntity( cc *connectionContext, kind, address, audience string, partitionId *string )( *linkEntity ) {
    name := uuid.NewString( )

    return &linkEntity {
        cc          : cc,
        kind        : kind,
        address     : address,
        audience    : audience,
        partitionId : partitionId,
        lockKey     : fmt.Sprintf( "%s-%s", kind, name ),
        name        : name,
    }
}

func ( e *linkEntity )Name( )( string ) {
    e.nameMu.RLock( )
    defer e.nameMu.RUnlock( )
    return e.name
}

func ( e *linkEntity )Address( )( string ) {
    return e.address
}

func ( e *linkEntity )isConnecting( )( bool ) {
    return atomic.LoadInt32( &e.connecting ) > 0
}

func ( e *linkEntity )isClosed( )( bool ) {
    return atomic.LoadInt32( &e.closed ) == 1
}

func ( e *linkEntity )logPrefix( )( string ) {
    return fmt.Sprintf( "[%s] %s '%s'", e.cc.id, e.kind, e.Name( ) )
}

func ( e *linkEntity )closedError( )( error ) {
    return evherr.New( evherr.MessagingError, false, "%s has been closed", e.logPrefix( ) )
}

// retire drops the entity's registration and named lock once it is closed for good.
func ( e *linkEntity )retire( ) {
    e.cc.unregister( e.Name( ) )
    e.cc.locks.Forget( e.lockKey )
}

// rename gives the entity a fresh link name. The service may still consider
// the old name attached.
func ( e *linkEntity )rename( )( string ) {
    newName := uuid.NewString( )

    e.nameMu.Lock( )
    oldName := e.name
    e.name = newName
    e.nameMu.Unlock( )

    e.cc.rename( oldName, newName )
    return oldName
}

func ( e *linkEntity )negotiateClaim( ctx context.Context, setTokenRenewal bool )( error ) {
    if err := e.cc.negotiateClaim( ctx, e.audience ); err != nil {
        return err
    }

    if setTokenRenewal {
        e.ensureTokenRenewal( )
    }

    return nil
}

func ( e *linkEntity )ensureTokenRenewal( ) {
    interval := e.cc.opts.TokenValidity - e.cc.opts.TokenRenewalMargin

    e.timerMu.Lock( )
    defer e.timerMu.Unlock( )

    if e.renewalTimer != nil {
        e.renewalTimer.Stop( )
    }

    if e.isClosed( ) {
        e.renewalTimer = nil
        return
    }

    e.renewalTimer = time.AfterFunc( interval, e.renewToken )
    glog.V( 2 ).Infof( "%s: token renewal scheduled in %v", e.logPrefix( ), interval )
}

func ( e *linkEntity )renewToken( ) {
    if e.isClosed( ) {
        return
    }

    ctx, cancel := context.WithTimeout( e.cc.ctx, e.cc.opts.OperationTimeout )
    defer cancel( )

    if err := e.negotiateClaim( ctx, true ); err != nil {
        glog.Warningf( "%s: token renewal failed: %v", e.logPrefix( ), err )
        return
    }

    glog.V( 2 ).Infof( "%s: token renewed", e.logPrefix( ) )
}

func ( e *linkEntity )clearTokenRenewal( ) {
    e.timerMu.Lock( )
    defer e.timerMu.Unlock( )

    if e.renewalTimer != nil {
        e.renewalTimer.Stop( )
        e.renewalTimer = nil
    }
}

// closeLink closes link and session, logging failures so the caller can always
// proceed with closing the connection.
func ( e *linkEntity )closeLink( ctx context.Context, link transport.Link, session transport.Session ) {
    e.clearTokenRenewal( )

    ctx, cancel := context.WithTimeout( ctx, e.cc.opts.OperationTimeout )
    defer cancel( )

    if link != nil {
        if err := link.Close( ctx ); err != nil {
            glog.Warningf( "%s: failed to close link: %v", e.logPrefix( ), err )
        }
    }

    if session != nil {
        if err := session.Close( ctx ); err != nil {
            glog.Warningf( "%s: failed to close session: %v", e.logPrefix( ), err )
        }
    }
}

// reconnect drives a detached entity back to open. It does nothing after a
// local close, and closes the entity for good on a non retryable error.
func ( e *linkEntity )reconnect( target reconnectable, err error ) {
    if e.isClosed( ) {
        glog.V( 2 ).Infof( "%s: detached after close, not reconnecting", e.logPrefix( ) )
        return
    }

    if err != nil && !evherr.IsRetryable( err ) {
        err = evherr.Translate( err )
        glog.Errorf( "%s: detached with a non retryable error, closing: %v", e.logPrefix( ), err )

        if atomic.CompareAndSwapInt32( &e.closed, 0, 1 ) {
            target.teardown( context.Background( ) )
            e.retire( )
            target.fail( err )
        }
        return
    }

    if !atomic.CompareAndSwapInt32( &e.connecting, 0, 1 ) {
        glog.V( 2 ).Infof( "%s: already reconnecting", e.logPrefix( ) )
        return
    }
    defer atomic.AddInt32( &e.connecting, -1 )

    glog.Warningf( "%s: detached, reconnecting: %v", e.logPrefix( ), err )

    target.teardown( context.Background( ) )
    oldName := e.rename( )
    target.beforeReconnect( )

    if rerr := e.cc.opts.ReconnectRetry.Do( e.cc.ctx, e.logPrefix( ) + " reconnect", target.init ); rerr != nil {
        if e.isClosed( ) || e.cc.ctx.Err( ) != nil {
            return
        }

        glog.Errorf( "%s: reconnect failed, closing: %v", e.logPrefix( ), rerr )
        if atomic.CompareAndSwapInt32( &e.closed, 0, 1 ) {
            target.teardown( context.Background( ) )
            e.retire( )
            target.fail( rerr )
        }
        return
    }

    glog.Infof( "%s: reconnected, previous link name '%s'", e.logPrefix( ), oldName )
}
