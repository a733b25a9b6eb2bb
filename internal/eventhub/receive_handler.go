package eventhub

import (
    "context"

    evhub_persist "github.com/Azure/azure-event-hubs-go/v3/persist"

    "github.com/azevhubclient/internal/eventdata"
    "github.com/azevhubclient/internal/evherr"
)

// Next returns the next buffered event, waiting for one to arrive. Once the
// stream has ended it returns the error that ended it, or an
// OperationCancelledError after Stop.
func ( h *ReceiveHandler )Next( ctx context.Context )( *eventdata.EventData, error ) {
    s := h.receiver

    select {
        case ed := <-s.events:
            s.issueCredit( 1 )
            return ed, nil
        default:
    }

    select {
        case ed := <-s.events:
            s.issueCredit( 1 )
            return ed, nil

        case <-s.done:
            if err := s.Err( ); err != nil {
                return nil, err
            }
            return nil, evherr.New( evherr.OperationCancelledError, false, "%s has been stopped", s.logPrefix( ) )

        case <-ctx.Done( ):
            return nil, evherr.Translate( ctx.Err( ) )
    }
}

// Stop closes the receive link and ends the stream.
func ( h *ReceiveHandler )Stop( ctx context.Context )( error ) {
    return h.receiver.Close( ctx )
}

// Done is closed when the stream ends.
func ( h *ReceiveHandler )Done( )( <-chan struct{ } ) {
    return h.receiver.done
}

func ( h *ReceiveHandler )Err( )( error ) {
    return h.receiver.Err( )
}

func ( h *ReceiveHandler )Name( )( string ) {
    return h.receiver.Name( )
}

func ( h *ReceiveHandler )Address( )( string ) {
    return h.receiver.Address( )
}

func ( h *ReceiveHandler )PartitionId( )( string ) {
    return h.receiver.PartitionId( )
}

func ( h *ReceiveHandler )ConsumerGroup( )( string ) {
    return h.receiver.ConsumerGroup( )
}

func ( h *ReceiveHandler )IsReceiverOpen( )( bool ) {
    return h.receiver.IsOpen( )
}

func ( h *ReceiveHandler )Checkpoint( )( evhub_persist.Checkpoint, bool ) {
    return h.receiver.Checkpoint( )
}

func ( h *ReceiveHandler )RuntimeInfo( )( *eventdata.RuntimeInfo, bool ) {
    return h.receiver.RuntimeInfo( )
}
