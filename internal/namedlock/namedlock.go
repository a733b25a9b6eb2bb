package namedlock

import (
    "context"

    "golang.org/x/sync/semaphore"

    "github.com/azevhubclient/internal/evherr"
)

func New( )( *Locks ) {
    return &Locks {
        locks : make( map[ string ]*semaphore.Weighted ),
    }
}

func ( l *Locks )get( key string )( *semaphore.Weighted ) {
    l.mu.Lock( )
    defer l.mu.Unlock( )

    sem, ok := l.locks[ key ]
    if !ok {
        sem = semaphore.NewWeighted( 1 )
        l.locks[ key ] = sem
    }

    return sem
}

// Acquire runs fn while holding the lock named key. The lock is released on
// every return path, including a panic in fn.
func ( l *Locks )Acquire( ctx context.Context, key string, fn func( context.Context )( error ) )( error ) {
    sem := l.get( key )

    if err := sem.Acquire( ctx, 1 ); err != nil {
        return evherr.Translate( err )
    }
    defer sem.Release( 1 )

    return fn( ctx )
}

// Len reports how many keys currently hold a lock.
func ( l *Locks )Len( )( int ) {
    l.mu.Lock( )
    defer l.mu.Unlock( )
    return len( l.locks )
}

// Forget drops locks that will never be used again, such as those of a closed connection.
func ( l *Locks )Forget( keys ...string ) {
    l.mu.Lock( )
    defer l.mu.Unlock( )

    for _, key := range keys {
        delete( l.locks, key )
    }
}
