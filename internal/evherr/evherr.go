package evherr

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "strings"

    "github.com/Azure/go-amqp"
)

func ( e *Error )Error( )( string ) {
    if len( e.Message ) == 0 {
        return e.Name
    }

    return fmt.Sprintf( "%s: %s", e.Name, e.Message )
}

func ( e *Error )Unwrap( )( error ) {
    return e.wrapped
}

// Is matches any *Error carrying the same taxonomy name.
func ( e *Error )Is( target error )( bool ) {
    t, ok := target.( *Error )
    if !ok {
        return false
    }

    return t.Name == e.Name && ( len( t.Message ) == 0 || t.Message == e.Message )
}

func New( name string, retryable bool, format string, args ...interface{ } )( *Error ) {
    return &Error {
        Name      : name,
        Message   : fmt.Sprintf( format, args... ),
        Retryable : retryable,
    }
}

func Wrap( err error, name string, retryable bool, format string, args ...interface{ } )( *Error ) {
    e := New( name, retryable, format, args... )
    e.wrapped = err
    return e
}

func NewArgumentError( format string, args ...interface{ } )( *Error ) {
    return New( ArgumentError, false, format, args... )
}

func NewSenderBusyError( format string, args ...interface{ } )( *Error ) {
    return New( SenderBusyError, true, format, args... )
}

func NewTimeoutError( format string, args ...interface{ } )( *Error ) {
    return New( ServiceUnavailableError, true, format, args... )
}

// FromCondition builds an Error for an AMQP error condition. Unknown conditions
// become a non retryable MessagingError.
func FromCondition( condition, description string, info map[ string ]interface{ } )( *Error ) {
    kind, ok := conditionKinds[ condition ]
    if !ok {
        kind = errorKind{ MessagingError, false }
    }

    if len( description ) == 0 {
        description = condition
    }

    return &Error {
        Name      : kind.name,
        Message   : description,
        Condition : condition,
        Info      : info,
        Retryable : kind.retryable,
    }
}

// FromStatusCode translates the status code of a $cbs or $management response.
func FromStatusCode( code int, description string )( *Error ) {
    kind, ok := statusKinds[ code ]
    if !ok {
        kind = errorKind{ MessagingError, code >= 500 }
    }

    return &Error {
        Name      : kind.name,
        Message   : fmt.Sprintf( "status code %d: %s", code, description ),
        Retryable : kind.retryable,
    }
}

// Translate maps any transport error onto the taxonomy. Errors that are
// already translated are returned unchanged.
func Translate( err error )( error ) {
    if err == nil {
        return nil
    }

    var translated *Error
    if errors.As( err, &translated ) {
        return translated
    }

    var amqpErr *amqp.Error
    if errors.As( err, &amqpErr ) {
        return fromAmqpError( amqpErr, err )
    }

    var detachErr *amqp.DetachError
    if errors.As( err, &detachErr ) {
        if detachErr.RemoteError != nil {
            return fromAmqpError( detachErr.RemoteError, err )
        }

        return Wrap( err, DetachForcedError, true, "link detached: %v", err )
    }

    if errors.Is( err, context.DeadlineExceeded ) {
        return Wrap( err, ServiceUnavailableError, true, "operation timed out: %v", err )
    }

    if errors.Is( err, context.Canceled ) {
        return Wrap( err, OperationCancelledError, false, "operation cancelled: %v", err )
    }

    if isCommunicationError( err ) {
        return Wrap( err, ServiceCommunicationError, true, "%v", err )
    }

    return Wrap( err, MessagingError, false, "%v", err )
}

func fromAmqpError( amqpErr *amqp.Error, cause error )( *Error ) {
    e := FromCondition( string( amqpErr.Condition ), amqpErr.Description, amqpErr.Info )
    e.wrapped = cause
    return e
}

func isCommunicationError( err error )( bool ) {
    if errors.Is( err, io.EOF ) || errors.Is( err, io.ErrUnexpectedEOF ) {
        return true
    }

    if errors.Is( err, amqp.ErrConnClosed ) || errors.Is( err, amqp.ErrSessionClosed ) || errors.Is( err, amqp.ErrLinkClosed ) {
        return true
    }

    var netErr net.Error
    if errors.As( err, &netErr ) {
        return true
    }

    // The transport library reports some socket failures as plain strings.
    msg := strings.ToLower( err.Error( ) )
    for _, s := range [ ]string{ "connection reset", "broken pipe", "connection refused", "use of closed network connection" } {
        if strings.Contains( msg, s ) {
            return true
        }
    }

    return false
}

// IsRetryable reports whether the translated form of err may be retried.
func IsRetryable( err error )( bool ) {
    if err == nil {
        return false
    }

    var e *Error
    if errors.As( Translate( err ), &e ) {
        return e.Retryable
    }

    return false
}

// NameOf returns the taxonomy name of err, or an empty string for nil.
func NameOf( err error )( string ) {
    if err == nil {
        return ""
    }

    var e *Error
    if errors.As( Translate( err ), &e ) {
        return e.Name
    }

    return MessagingError
}
