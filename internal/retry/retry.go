package retry

import (
    "context"
    "time"

    "github.com/golang/glog"
    "github.com/jpillora/backoff"

    "github.com/azevhubclient/internal/evherr"
)

// SendPolicy is used for message send and management operations.
func SendPolicy( )( Policy ) {
    return Policy {
        MaxAttempts : DefaultSendAttempts,
        Delay       : DefaultSendDelay,
        MinJitter   : DefaultMinJitter,
        MaxJitter   : DefaultMaxJitter,
    }
}

// ReconnectPolicy is used when re-establishing a detached link.
func ReconnectPolicy( )( Policy ) {
    return Policy {
        MaxAttempts : DefaultReconnectAttempts,
        Delay       : DefaultReconnectDelay,
    }
}

func ( p Policy )jitter( )( time.Duration ) {
    if p.MaxJitter <= 0 {
        return 0
    }

    minJitter := p.MinJitter
    if minJitter <= 0 {
        minJitter = time.Millisecond
    }

    if p.MaxJitter <= minJitter {
        return minJitter
    }

    b := &backoff.Backoff {
        Min    : minJitter,
        Max    : p.MaxJitter,
        Factor : float64( p.MaxJitter ) / float64( minJitter ),
        Jitter : true,
    }

    return b.ForAttempt( 1 )
}

// Interval is the wait before the next attempt.
func ( p Policy )Interval( )( time.Duration ) {
    return p.Delay + p.jitter( )
}

// Do runs task until it succeeds, fails with a non retryable error or runs
// out of attempts. The returned error is always translated.
func ( p Policy )Do( ctx context.Context, name string, task Task )( error ) {
    maxAttempts := p.MaxAttempts
    if maxAttempts < 1 {
        maxAttempts = 1
    }

    for attempt := 1; ; attempt++ {
        err := evherr.Translate( task( ctx ) )
        if err == nil {
            if attempt > 1 {
                glog.Infof( "%s: succeeded on attempt %d", name, attempt )
            }
            return nil
        }

        if !evherr.IsRetryable( err ) {
            glog.V( 2 ).Infof( "%s: attempt %d failed with non retryable error: %v", name, attempt, err )
            return err
        }

        if attempt >= maxAttempts {
            glog.Errorf( "%s: giving up after %d attempts: %v", name, attempt, err )
            return err
        }

        interval := p.Interval( )
        glog.Warningf( "%s: attempt %d of %d failed, retrying in %v: %v", name, attempt, maxAttempts, interval, err )

        timer := time.NewTimer( interval )
        select {
            case <-timer.C:

            case <-ctx.Done( ):
                timer.Stop( )
                return evherr.Translate( ctx.Err( ) )
        }
    }
}
