package main

import (
    "flag"
    "os"
    "strconv"
    "time"

    "github.com/golang/glog"

    "github.com/azevhubclient/internal/azevhub"
    "github.com/azevhubclient/internal/checkpointstore"
)

var (
    version     string

    testId         = flag.String( "test-id", "", "Test id" )
    connStr        = flag.String( "conn-string", "", "Connection string to access event hub" )
    entityPath     = flag.String( "entity-path", "", "Event hub name, overrides the connection string EntityPath" )
    iotHub         = flag.Bool( "iot-hub", false, "Connection string belongs to an IoT hub" )
    consumerGrpPfx = flag.String( "consumer-group-prefix", "", "Consumer Group Prefix, $default when empty" )
    propName       = flag.String( "property-name", "senderid", "Property name" )
    cpKind         = flag.String( "checkpoint-store", checkpointstore.KindMemory, "Checkpoint store: memory, file or redis" )
    cpTarget       = flag.String( "checkpoint-target", "", "Checkpoint directory or redis host:port" )
    cpPassword     = flag.String( "checkpoint-password", "", "Checkpoint redis password" )
    cpTLS          = flag.Bool( "checkpoint-tls", false, "Use TLS towards the checkpoint redis" )
    totGws         = flag.Int( "total-gateways", 2, "Total simulated gateways" )
    totRcvrs       = flag.Int( "total-receivers", 1, "Total receivers, each reading every partition" )
    sndIntvl       = flag.Duration( "send-interval", 5 * time.Second, "Interval between successive publish attempts" )
    rcvIntvl       = flag.Duration( "receive-interval", 1 * time.Second, "Maximum wait of a batch receive call" )
    msgsPerRcv     = flag.Int( "messages-per-receive", 1, "Number of messages to get per receive call" )
    msgsPerSnd     = flag.Int( "messages-per-send", 1, "Number of messages to push per send call" )
    fillSize       = flag.Int( "fill-size", 64, "Filler bytes added to every payload" )
    prefetch       = flag.Int( "prefetch", 0, "Receiver prefetch, client default when 0" )
    batchRcv       = flag.Bool( "batch-receive", false, "Receive with batch calls instead of streaming" )
    testTime       = flag.Duration( "test-duration", 5 * time.Minute, "Total test time" )
    testWarmupTime = flag.Duration( "test-warmup-time", 1 * time.Minute, "Time receivers keep draining after senders stop" )
    sndrOnly       = flag.Bool( "sender-only", false, "Enable sender only" )
    rcvrOnly       = flag.Bool( "receiver-only", false, "Enable receiver only" )
    statIntvl      = flag.Duration( "stats-dump-interval", 30 * time.Second, "Interval after statistics will be dumped" )
    idsFile        = flag.String( "ids-file", "", "File with list of ids to use" )
)

func main( ) {
    flag.Parse( )

    err := flag.Lookup( "logtostderr" ).Value.Set( "true" )
    if err != nil {
        glog.Fatalf( "Error setting logtostderr to true: %v", err )
    }

    glog.Infof( "Starting azevhubbench %v", version )

    azevhubBench := azevhub.NewAzEvHub( )
    if azevhubBench == nil {
        glog.Fatalf( "Failed to initialize event hub bench" )
    }

    setupString( &azevhubBench.TestId, testId, "AZEVHUB_TEST_ID" )

    setupString( &azevhubBench.ConnStr, connStr, "AZEVHUB_CONN_STR" )
    if 0 == len( azevhubBench.ConnStr ) {
        glog.Fatalf( "Connection string cannot be empty" )
    }

    setupString( &azevhubBench.EntityPath, entityPath, "AZEVHUB_ENTITY_PATH" )
    setupBool( &azevhubBench.IotHub, iotHub, "AZEVHUB_IOT_HUB" )
    setupString( &azevhubBench.ConsumerGroupPrefix, consumerGrpPfx, "AZEVHUB_CONSUMER_GROUP_PREFIX" )
    setupString( &azevhubBench.PropName, propName, "AZEVHUB_PROP_NAME" )

    setupString( &azevhubBench.CheckpointKind, cpKind, "AZEVHUB_CHECKPOINT_STORE" )
    setupString( &azevhubBench.CheckpointTarget, cpTarget, "AZEVHUB_CHECKPOINT_TARGET" )
    setupString( &azevhubBench.CheckpointPassword, cpPassword, "AZEVHUB_CHECKPOINT_PASSWORD" )
    setupBool( &azevhubBench.CheckpointTLS, cpTLS, "AZEVHUB_CHECKPOINT_TLS" )

    setupInt( &azevhubBench.TotSenders, totGws, "AZEVHUB_TOTAL_GATEWAYS" )
    setupInt( &azevhubBench.TotReceivers, totRcvrs, "AZEVHUB_TOTAL_RECEIVERS" )
    setupInt( &azevhubBench.MsgsPerReceive, msgsPerRcv, "AZEVHUB_MSGS_PER_RECEIVE" )
    setupInt( &azevhubBench.MsgsPerSend, msgsPerSnd, "AZEVHUB_MSGS_PER_SEND" )
    setupInt( &azevhubBench.FillSize, fillSize, "AZEVHUB_FILL_SIZE" )
    setupInt( &azevhubBench.Prefetch, prefetch, "AZEVHUB_PREFETCH" )

    setupBool( &azevhubBench.BatchReceive, batchRcv, "AZEVHUB_BATCH_RECEIVE" )
    setupBool( &azevhubBench.SenderOnly, sndrOnly, "AZEVHUB_SENDER_ONLY" )
    setupBool( &azevhubBench.ReceiverOnly, rcvrOnly, "AZEVHUB_RECEIVER_ONLY" )

    setupDuration( &azevhubBench.Duration, testTime, "AZEVHUB_TEST_DURATION" )
    setupDuration( &azevhubBench.WarmupDuration, testWarmupTime, "AZEVHUB_TEST_WARMUP_TIME" )
    setupDuration( &azevhubBench.SendInterval, sndIntvl, "AZEVHUB_SEND_INTERVAL" )
    setupDuration( &azevhubBench.ReceiveInterval, rcvIntvl, "AZEVHUB_RECEIVE_INTERVAL" )
    setupDuration( &azevhubBench.StatDumpInterval, statIntvl, "AZEVHUB_STATS_DUMP_INTERVAL" )

    setupString( &azevhubBench.IdsFile, idsFile, "AZEVHUB_IDS_FILE" )

    setupInt( &azevhubBench.Index, nil, "JOB_COMPLETION_INDEX" )

    glog.Infof( "Starting Azure Event Hub Bench test %v index %v", azevhubBench.TestId, azevhubBench.Index )
    azevhubBench.Start( )
}

func setupString( field, arg *string, envVar string ) {
    envVal := os.Getenv( envVar )
    if len( envVal ) > 0 {
        *field = envVal
        return
    }

    if arg != nil && len( *arg ) > 0 {
        *field = *arg
    }
}

func setupBool( field, arg *bool, envVar string ) {
    envVal := os.Getenv( envVar )
    if len( envVal ) > 0 {
        if boolVal, err := strconv.ParseBool( envVal ); nil == err {
            *field = boolVal
            return
        }
    }

    if arg != nil {
        *field = *arg
    }
}

func setupInt( field, arg *int, envVar string ) {
    envVal := os.Getenv( envVar )
    if len( envVal ) > 0 {
        if intVal, err := strconv.ParseInt( envVal, 10, 32 ); nil == err {
            *field = int( intVal )
            return
        }
    }

    if arg != nil {
        *field = *arg
    }
}

func setupDuration( field, arg *time.Duration, envVar string ) {
    envVal := os.Getenv( envVar )
    if len( envVal ) > 0 {
        if durVal, err := time.ParseDuration( envVal ); nil == err {
            *field = durVal
            return
        }
    }

    if arg != nil {
        *field = *arg
    }
}
