package retry

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/stretchr/testify/mock"
    "github.com/stretchr/testify/require"

    "github.com/azevhubclient/internal/evherr"
)

type taskMock struct {
    mock.Mock
}

func ( m *taskMock )Task( context.Context )( error ) {
    return m.Called( ).Error( 0 )
}

var errBusy = evherr.New( evherr.ServerBusyError, true, "busy" )

func fastPolicy( attempts int )( Policy ) {
    return Policy{ MaxAttempts : attempts, Delay : time.Millisecond }
}

func TestNoRetryOnSuccess( t *testing.T ) {
    m := new( taskMock )
    m.On( "Task" ).Return( nil )

    require.NoError( t, fastPolicy( 3 ).Do( context.Background( ), "TestNoRetryOnSuccess", m.Task ) )
    m.AssertNumberOfCalls( t, "Task", 1 )
}

func TestMaxAttempts( t *testing.T ) {
    m := new( taskMock )
    m.On( "Task" ).Return( errBusy )

    err := fastPolicy( 3 ).Do( context.Background( ), "TestMaxAttempts", m.Task )
    require.Equal( t, evherr.ServerBusyError, evherr.NameOf( err ) )
    m.AssertNumberOfCalls( t, "Task", 3 )
}

func TestRetryUntilSuccess( t *testing.T ) {
    m := new( taskMock )
    m.On( "Task" ).Twice( ).Return( errBusy )
    m.On( "Task" ).Once( ).Return( nil )

    require.NoError( t, fastPolicy( 5 ).Do( context.Background( ), "TestRetryUntilSuccess", m.Task ) )
    m.AssertNumberOfCalls( t, "Task", 3 )
}

func TestNonRetryableStopsImmediately( t *testing.T ) {
    m := new( taskMock )
    m.On( "Task" ).Return( errors.New( "plain failure" ) )

    err := fastPolicy( 5 ).Do( context.Background( ), "TestNonRetryableStopsImmediately", m.Task )
    require.Equal( t, evherr.MessagingError, evherr.NameOf( err ) )
    m.AssertNumberOfCalls( t, "Task", 1 )
}

func TestContextCancelledWhileWaiting( t *testing.T ) {
    m := new( taskMock )
    m.On( "Task" ).Return( errBusy )

    ctx, cancel := context.WithCancel( context.Background( ) )
    cancel( )

    err := Policy{ MaxAttempts : 5, Delay : time.Hour }.Do( ctx, "TestContextCancelledWhileWaiting", m.Task )
    require.Equal( t, evherr.OperationCancelledError, evherr.NameOf( err ) )
    m.AssertNumberOfCalls( t, "Task", 1 )
}

func TestInterval( t *testing.T ) {
    p := SendPolicy( )
    for i := 0; i < 50; i++ {
        interval := p.Interval( )
        require.GreaterOrEqual( t, int64( interval ), int64( DefaultSendDelay + DefaultMinJitter ) )
        require.LessOrEqual( t, int64( interval ), int64( DefaultSendDelay + DefaultMaxJitter ) )
    }

    require.Equal( t, DefaultReconnectDelay, ReconnectPolicy( ).Interval( ) )
}
