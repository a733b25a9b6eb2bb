package azevhub

import (
    "context"
    "fmt"
    "os"
    "strconv"
    "sync"
    "time"

    "github.com/Azure/go-amqp"
    "github.com/Azure/go-autorest/autorest/to"
    "github.com/golang/glog"
    "github.com/google/uuid"

    evhub_persist "github.com/Azure/azure-event-hubs-go/v3/persist"

    "github.com/azevhubclient/internal/checkpointstore"
    "github.com/azevhubclient/internal/config"
    "github.com/azevhubclient/internal/eventdata"
    "github.com/azevhubclient/internal/eventhub"
    "github.com/azevhubclient/internal/evherr"
    "github.com/azevhubclient/internal/helpers"
    "github.com/azevhubclient/internal/stats"
)

const (
    testIdPropName       = "testId"
    idxPropName          = "senderIdx"
    defaultConsumerGroup = config.DefaultConsumerGroup
    userAgent            = "azevhubbench"
)

var (
    msgContentType = "application/json"
)

func NewAzEvHub( )( *AzEvHub ) {
    return &AzEvHub {
        Index          : 0,
        PropName       : "senderid",
        CheckpointKind : checkpointstore.KindMemory,
        MsgsPerSend    : 1,
        MsgsPerReceive : 1,
        azEvHubCtx : azEvHubCtx {
            wg    : &sync.WaitGroup{ },
            stats : stats.NewStats( nil, nil ),
        },
    }
}

func ( azEvHub *AzEvHub )validate( )( err error ) {
    switch {
        case len( azEvHub.ConnStr ) == 0:
            return fmt.Errorf( "connection string cannot be empty" )

        case azEvHub.SenderOnly && azEvHub.ReceiverOnly:
            return fmt.Errorf( "sender only and receiver only are mutually exclusive" )

        case azEvHub.TotSenders < 0 || azEvHub.TotReceivers < 0:
            return fmt.Errorf( "invalid senders %v or receivers %v", azEvHub.TotSenders, azEvHub.TotReceivers )

        case azEvHub.MsgsPerSend <= 0 || azEvHub.MsgsPerReceive <= 0:
            return fmt.Errorf( "invalid messages per send %v or per receive %v", azEvHub.MsgsPerSend, azEvHub.MsgsPerReceive )

        case azEvHub.Prefetch < 0 || azEvHub.FillSize < 0:
            return fmt.Errorf( "invalid prefetch %v or fill size %v", azEvHub.Prefetch, azEvHub.FillSize )

        case azEvHub.Duration <= 0:
            return fmt.Errorf( "invalid test duration %v", azEvHub.Duration )
    }

    return nil
}

func ( azEvHub *AzEvHub )initIdGen( )( err error ) {
    idGen := helpers.NewIdGenerator( )

    if len( azEvHub.IdsFile ) > 0 {
        fh, err := os.Open( azEvHub.IdsFile )
        if err != nil {
            return fmt.Errorf( "failed to open file %v: error %v", azEvHub.IdsFile, err )
        }

        defer fh.Close( )

        err = idGen.InitIdBlockFromReader( fh )
        if err != nil {
            return fmt.Errorf( "failed to initialize id generator: error %v", err )
        }
    } else {
        uuidsLen := azEvHub.TotSenders
        if uuidsLen < azEvHub.TotReceivers {
            uuidsLen = azEvHub.TotReceivers
        }

        err = idGen.InitIdBlock( ( azEvHub.Index + 1 ) * uuidsLen )
        if err != nil {
            return fmt.Errorf( "failed to initialize id generator: error %v", err )
        }
    }

    azEvHub.idGen = idGen
    return nil
}

func ( azEvHub *AzEvHub )setupCheckPointPersister( )( evhub_persist.CheckpointPersister, error ) {
    return checkpointstore.New( &checkpointstore.Config {
        Kind     : azEvHub.CheckpointKind,
        Target   : azEvHub.CheckpointTarget,
        Password : azEvHub.CheckpointPassword,
        TLS      : azEvHub.CheckpointTLS,
    } )
}

func ( azEvHub *AzEvHub )clientOptions( )( *eventhub.ClientOptions ) {
    return &eventhub.ClientOptions {
        UserAgent           : userAgent,
        Transformer         : eventdata.RawTransformer{ },
        Prefetch            : uint32( azEvHub.Prefetch ),
        CheckpointPersister : azEvHub.persister,
    }
}

func ( azEvHub *AzEvHub )newClient( ctx context.Context )( *eventhub.Client, error ) {
    if azEvHub.IotHub {
        return eventhub.NewClientFromIotHubConnectionString( ctx, azEvHub.ConnStr, azEvHub.clientOptions( ) )
    }

    return eventhub.NewClientFromConnectionString( azEvHub.ConnStr, azEvHub.EntityPath, azEvHub.clientOptions( ) )
}

// consumerGroup gives every receiver its own group when a prefix is set, so
// each one sees the whole stream.
func ( azEvHub *AzEvHub )consumerGroup( idx int )( string ) {
    if len( azEvHub.ConsumerGroupPrefix ) == 0 {
        return defaultConsumerGroup
    }

    return azEvHub.ConsumerGroupPrefix + strconv.Itoa( idx + ( azEvHub.Index * azEvHub.TotReceivers ) )
}

// Start runs the bench to completion and exits the process on failure.
func ( azEvHub *AzEvHub )Start( ) {
    if err := azEvHub.Run( context.Background( ) ); err != nil {
        glog.Fatalf( "event hub bench failed: %v", err )
    }
}

func ( azEvHub *AzEvHub )Run( ctx context.Context )( err error ) {
    if err = azEvHub.validate( ); err != nil {
        return err
    }

    if err = azEvHub.initIdGen( ); err != nil {
        return err
    }

    azEvHub.persister, err = azEvHub.setupCheckPointPersister( )
    if err != nil {
        return fmt.Errorf( "failed to initialize checkpoint persister %v", err )
    }

    client, err := azEvHub.newClient( ctx )
    if err != nil {
        return fmt.Errorf( "failed to setup event hub client %v", err )
    }

    azEvHub.client = client
    defer func( ) {
        client.Close( context.Background( ) )
    }( )

    azEvHub.partitionIds, err = client.PartitionIds( ctx )
    if err != nil {
        return fmt.Errorf( "failed to get partition ids %v", err )
    }

    glog.Infof( "Event hub %v has partitions %v", client.EventHubName( ), azEvHub.partitionIds )

    senderCtx, cancelSenders := context.WithTimeout( ctx, azEvHub.Duration )
    defer cancelSenders( )
    azEvHub.senderCtx = senderCtx

    receiverCtx, cancelReceivers := context.WithTimeout( ctx, azEvHub.Duration + azEvHub.WarmupDuration )
    defer cancelReceivers( )
    azEvHub.receiverCtx = receiverCtx

    azEvHub.stats.SetCtx( receiverCtx )
    azEvHub.stats.SetIds( azEvHub.idGen.Block )
    azEvHub.stats.SetPartitions( azEvHub.partitionIds )
    azEvHub.stats.SetStatsDumpInterval( azEvHub.StatDumpInterval )
    azEvHub.stats.StartDumper( )

    if !azEvHub.SenderOnly {
        for i := 0; i < azEvHub.TotReceivers; i++ {
            ready := make( chan error, 1 )

            azEvHub.wg.Add( 1 )
            go func( idx int ) {
                defer azEvHub.wg.Done( )
                azEvHub.startReceiver( idx, ready )
            }( i )

            if err = <-ready; err != nil {
                cancelSenders( )
                cancelReceivers( )
                azEvHub.wg.Wait( )
                azEvHub.stats.StopDumper( )
                return fmt.Errorf( "failed to start receiver %v: %v", i, err )
            }
        }
    }

    if !azEvHub.ReceiverOnly {
        azEvHub.wg.Add( azEvHub.TotSenders )
        for i := 0; i < azEvHub.TotSenders; i++ {
            go func( idx int ) {
                defer azEvHub.wg.Done( )
                azEvHub.startSender( idx )
            }( i )
        }
    }

    azEvHub.wg.Wait( )

    cancelReceivers( )
    azEvHub.stats.StopDumper( )

    return nil
}

func ( azEvHub *AzEvHub )senderEvents( gen *helpers.PayloadGen, id string, realIdx int )( events [ ]*eventdata.EventData, err error ) {
    events = make( [ ]*eventdata.EventData, 0, azEvHub.MsgsPerSend )

    for i := 0; i < azEvHub.MsgsPerSend; i++ {
        body, err := gen.NextBytes( )
        if err != nil {
            return nil, err
        }

        event := eventdata.New( body ).WithPartitionKey( id )
        event.ApplicationProperties = map[ string ]interface{ }{
            azEvHub.PropName  : id,
            testIdPropName    : azEvHub.TestId,
            idxPropName       : int64( realIdx ),
        }
        event.Properties = &amqp.MessageProperties {
            MessageID   : uuid.NewString( ),
            ContentType : to.StringPtr( msgContentType ),
        }

        events = append( events, event )
    }

    return events, nil
}

func ( azEvHub *AzEvHub )sendMessage( gen *helpers.PayloadGen, id string, realIdx int )( err error ) {
    events, err := azEvHub.senderEvents( gen, id, realIdx )
    if err != nil {
        glog.Errorf( "%v: Failed to get message, error = %v", id, err )
        return err
    }

    if len( events ) == 1 {
        err = azEvHub.client.Send( azEvHub.senderCtx, events[ 0 ] )
    } else {
        err = azEvHub.client.SendBatch( azEvHub.senderCtx, events )
    }

    if err != nil {
        azEvHub.stats.UpdateErrorStat( realIdx )
        return err
    }

    azEvHub.stats.UpdateSenderStat( realIdx, uint64( len( events ) ) )
    return nil
}

func ( azEvHub *AzEvHub )startSender( idx int ) {
    id, realIdx, err := azEvHub.idGen.IdAt( idx, azEvHub.Index, azEvHub.TotSenders )
    if err != nil {
        glog.Errorf( "Failed to get index, error = %v", err )
        return
    }

    gen, err := helpers.NewPayloadGen( azEvHub.TestId, id, realIdx, azEvHub.FillSize )
    if err != nil {
        glog.Errorf( "%v: Failed to setup payload generator, error = %v", id, err )
        return
    }

    for {
        err = azEvHub.sendMessage( gen, id, realIdx )
        if err != nil && azEvHub.senderCtx.Err( ) == nil {
            glog.Errorf( "%v: Failed to send event, error = %v", id, err )
            if !evherr.IsRetryable( err ) {
                return
            }
        }

        select {
            case <-azEvHub.senderCtx.Done( ):
                glog.Infof( "%v: Sender done after %v payloads", id, gen.Count( ) )
                return

            case <-time.After( azEvHub.SendInterval ):
        }
    }
}

func ( azEvHub *AzEvHub )receivedEvent( idx int, partitionId string, event *eventdata.EventData )( err error ) {
    id, realIdx, err := azEvHub.idGen.IdAt( idx, azEvHub.Index, azEvHub.TotReceivers )
    if err != nil {
        glog.Errorf( "Failed to get index, error = %v", err )
        return err
    }

    if event.SequenceNumber != nil {
        azEvHub.stats.UpdatePartitionStat( partitionId, *event.SequenceNumber )
    }

    defer func( ) {
        if err != nil {
            azEvHub.stats.UpdateErrorStat( realIdx )
        }
    }( )

    if testIdPropVal, exists := event.ApplicationProperties[ testIdPropName ]; exists {
        testId, ok := testIdPropVal.( string )
        if !ok || testId != azEvHub.TestId {
            return fmt.Errorf( "%v: Invalid test id in event properties", id )
        }
    }

    body, ok := event.Body.( [ ]byte )
    if !ok {
        return fmt.Errorf( "%v: Unexpected event body type %T", id, event.Body )
    }

    payload, err := helpers.ParsePayload( body )
    if err != nil {
        return fmt.Errorf( "%v: Failed to parse message, error = %v", id, err )
    }

    if err = payload.Validate( azEvHub.TestId ); err != nil {
        return fmt.Errorf( "%v: Invalid payload, error = %v", id, err )
    }

    senderIdx := payload.SenderIdx
    if senderIdxPropVal, exists := event.ApplicationProperties[ idxPropName ]; exists {
        propIdx, ok := senderIdxPropVal.( int64 )
        if !ok || int( propIdx ) != senderIdx {
            return fmt.Errorf( "%v: Invalid sender index in event properties", id )
        }
    }

    azEvHub.stats.UpdateReceiverStat( realIdx, senderIdx, 1, payload.Latency( helpers.GetCurTimeStamp( ) ) )
    return nil
}

func ( azEvHub *AzEvHub )receiveOptions( idx int )( [ ]eventhub.ReceiveOption ) {
    return [ ]eventhub.ReceiveOption {
        eventhub.WithConsumerGroup( azEvHub.consumerGroup( idx ) ),
        eventhub.WithIdentifier( fmt.Sprintf( "%v-%v", userAgent, idx ) ),
    }
}

func ( azEvHub *AzEvHub )startReceiver( idx int, ready chan<- error ) {
    if azEvHub.BatchReceive {
        ready <- nil

        var wg sync.WaitGroup
        for _, partitionId := range azEvHub.partitionIds {
            wg.Add( 1 )
            go func( pid string ) {
                defer wg.Done( )
                azEvHub.batchReceive( idx, pid )
            }( partitionId )
        }

        wg.Wait( )
        return
    }

    handles := make( [ ]*eventhub.ReceiveHandler, 0, len( azEvHub.partitionIds ) )
    defer func( ) {
        for _, handle := range handles {
            handle.Stop( context.Background( ) )
        }
    }( )

    for _, partitionId := range azEvHub.partitionIds {
        pid := partitionId

        onMessage := func( event *eventdata.EventData ) {
            if err := azEvHub.receivedEvent( idx, pid, event ); err != nil {
                glog.Errorf( "%v", err )
            }
        }

        onError := func( err error ) {
            glog.Errorf( "Receiver %v partition %v stopped: %v", idx, pid, err )
        }

        handle, err := azEvHub.client.Receive( azEvHub.receiverCtx, pid, onMessage, onError, azEvHub.receiveOptions( idx )... )
        if err != nil {
            ready <- err
            return
        }

        handles = append( handles, handle )
    }

    ready <- nil
    <-azEvHub.receiverCtx.Done( )
}

func ( azEvHub *AzEvHub )batchReceive( idx int, partitionId string ) {
    opts := azEvHub.receiveOptions( idx )

    for azEvHub.receiverCtx.Err( ) == nil {
        events, err := azEvHub.client.ReceiveBatch( azEvHub.receiverCtx, partitionId, azEvHub.MsgsPerReceive, azEvHub.ReceiveInterval, opts... )
        if err != nil {
            if azEvHub.receiverCtx.Err( ) != nil {
                return
            }

            glog.Errorf( "Receiver %v partition %v: batch receive failed, error = %v", idx, partitionId, err )
            if !evherr.IsRetryable( err ) {
                return
            }
            continue
        }

        for _, event := range events {
            if err = azEvHub.receivedEvent( idx, partitionId, event ); err != nil {
                glog.Errorf( "%v", err )
            }
        }
    }
}
