package evherr

import (
    "context"
    "errors"
    "fmt"
    "io"
    "testing"

    "github.com/Azure/go-amqp"
    "github.com/stretchr/testify/require"
)

func TestTranslateAmqpConditions( t *testing.T ) {
    cases := [ ]struct {
        condition string
        name      string
        retryable bool
    } {
        { "amqp:not-found", MessagingEntityNotFoundError, false },
        { "amqp:resource-limit-exceeded", QuotaExceededError, false },
        { "amqp:link:message-size-exceeded", MessageTooLargeError, false },
        { "com.microsoft:server-busy", ServerBusyError, true },
        { "amqp:link:stolen", ReceiverDisconnectedError, false },
        { "com.microsoft:argument-error", ArgumentError, false },
        { "com.microsoft:timeout", ServiceUnavailableError, true },
        { "amqp:link:detach-forced", DetachForcedError, true },
        { "amqp:link:redirect", LinkRedirectError, false },
        { "some:unknown-condition", MessagingError, false },
    }

    for _, c := range cases {
        err := Translate( &amqp.Error{ Condition : amqp.ErrorCondition( c.condition ), Description : "boom" } )

        var e *Error
        require.True( t, errors.As( err, &e ), c.condition )
        require.Equal( t, c.name, e.Name, c.condition )
        require.Equal( t, c.retryable, e.Retryable, c.condition )
        require.Equal( t, c.condition, e.Condition )
        require.Equal( t, "boom", e.Message )
    }
}

func TestTranslateDetachError( t *testing.T ) {
    err := Translate( &amqp.DetachError{ RemoteError : &amqp.Error{ Condition : "amqp:link:stolen" } } )
    require.Equal( t, ReceiverDisconnectedError, NameOf( err ) )
    require.False( t, IsRetryable( err ) )

    err = Translate( &amqp.DetachError{ } )
    require.Equal( t, DetachForcedError, NameOf( err ) )
    require.True( t, IsRetryable( err ) )
}

func TestTranslateKeepsRedirectInfo( t *testing.T ) {
    info := map[ string ]interface{ }{ "address" : "amqps://host:5671/hub/$management" }
    err  := Translate( &amqp.Error{ Condition : "amqp:link:redirect", Info : info } )

    var e *Error
    require.True( t, errors.As( err, &e ) )
    require.Equal( t, info, e.Info )
}

func TestTranslateGenericErrors( t *testing.T ) {
    require.Nil( t, Translate( nil ) )
    require.Equal( t, ServiceUnavailableError, NameOf( context.DeadlineExceeded ) )
    require.True( t, IsRetryable( context.DeadlineExceeded ) )
    require.Equal( t, OperationCancelledError, NameOf( context.Canceled ) )
    require.Equal( t, ServiceCommunicationError, NameOf( fmt.Errorf( "read: %w", io.EOF ) ) )
    require.True( t, IsRetryable( amqp.ErrConnClosed ) )
    require.Equal( t, MessagingError, NameOf( errors.New( "something odd" ) ) )
    require.False( t, IsRetryable( errors.New( "something odd" ) ) )
}

func TestTranslateIsIdempotent( t *testing.T ) {
    e := NewSenderBusyError( "no credit" )
    require.Same( t, e, Translate( e ) )
    require.Same( t, e, Translate( fmt.Errorf( "wrapped: %w", e ) ) )
    require.True( t, IsRetryable( e ) )
    require.True( t, errors.Is( e, &Error{ Name : SenderBusyError } ) )
}

func TestFromStatusCode( t *testing.T ) {
    require.Equal( t, UnauthorizedError, FromStatusCode( 401, "denied" ).Name )
    require.Equal( t, MessagingEntityNotFoundError, FromStatusCode( 404, "nope" ).Name )
    require.True( t, FromStatusCode( 503, "busy" ).Retryable )

    e := FromStatusCode( 599, "weird" )
    require.Equal( t, MessagingError, e.Name )
    require.True( t, e.Retryable )
}

func TestErrorString( t *testing.T ) {
    require.Equal( t, "ArgumentError: bad partition", NewArgumentError( "bad partition" ).Error( ) )
    require.Equal( t, MessagingError, ( &Error{ Name : MessagingError } ).Error( ) )
}
