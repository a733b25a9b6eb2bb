package position

import (
    "errors"
    "testing"
    "time"

    evhub_persist "github.com/Azure/azure-event-hubs-go/v3/persist"
    "github.com/stretchr/testify/require"

    "github.com/azevhubclient/internal/evherr"
)

func TestExpression( t *testing.T ) {
    enqueued := time.UnixMilli( 1546300800123 )

    cases := [ ]struct {
        position *Position
        expected string
    } {
        { FromOffset( "1234", false ), "amqp.annotation.x-opt-offset > '1234'" },
        { FromOffset( "1234", true ), "amqp.annotation.x-opt-offset >= '1234'" },
        { FromSequenceNumber( 42, false ), "amqp.annotation.x-opt-sequence-number > '42'" },
        { FromSequenceNumber( 42, true ), "amqp.annotation.x-opt-sequence-number >= '42'" },
        { FromEnqueuedTime( enqueued ), "amqp.annotation.x-opt-enqueued-time > '1546300800123'" },
        { WithCustomFilter( "amqp.annotation.x-opt-offset > '@latest'" ), "amqp.annotation.x-opt-offset > '@latest'" },
        { FromStart( ), "amqp.annotation.x-opt-offset > '-1'" },
        { FromEnd( ), "amqp.annotation.x-opt-offset > '@latest'" },
    }

    for _, c := range cases {
        expr, err := c.position.Expression( )
        require.NoError( t, err )
        require.Equal( t, c.expected, expr )
    }
}

func TestEnqueuedTimeIgnoresInclusive( t *testing.T ) {
    p := FromEnqueuedTime( time.UnixMilli( 10 ) )
    p.IsInclusive = true

    expr, err := p.Expression( )
    require.NoError( t, err )
    require.Equal( t, "amqp.annotation.x-opt-enqueued-time > '10'", expr )
}

func TestExpressionWithoutVariant( t *testing.T ) {
    for _, p := range [ ]*Position{ nil, &Position{ }, &Position{ IsInclusive : true } } {
        _, err := p.Expression( )
        require.Error( t, err )
        require.True( t, errors.Is( err, &evherr.Error{ Name : evherr.ArgumentError } ) )
    }
}

func TestFromCheckpoint( t *testing.T ) {
    expr, err := FromCheckpoint( evhub_persist.NewCheckpointFromStartOfStream( ) ).Expression( )
    require.NoError( t, err )
    require.Equal( t, "amqp.annotation.x-opt-offset > '-1'", expr )

    expr, err = FromCheckpoint( evhub_persist.Checkpoint{ Offset : "880" } ).Expression( )
    require.NoError( t, err )
    require.Equal( t, "amqp.annotation.x-opt-offset > '880'", expr )
}

func TestAccessors( t *testing.T ) {
    offset, ok := FromOffset( "7", false ).Offset( )
    require.True( t, ok )
    require.Equal( t, "7", offset )

    _, ok = FromOffset( "7", false ).SequenceNumber( )
    require.False( t, ok )

    seq, ok := FromSequenceNumber( 9, true ).SequenceNumber( )
    require.True( t, ok )
    require.EqualValues( t, 9, seq )

    require.Equal( t, "<unset>", ( &Position{ } ).String( ) )
}
