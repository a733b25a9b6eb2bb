package azevhub

import (
    "context"
    "sync"
    "time"

    evhub_persist "github.com/Azure/azure-event-hubs-go/v3/persist"

    "github.com/azevhubclient/internal/eventhub"
    "github.com/azevhubclient/internal/helpers"
    "github.com/azevhubclient/internal/stats"
)

type azEvHubCtx struct {
    client             *eventhub.Client

    persister           evhub_persist.CheckpointPersister

    senderCtx           context.Context
    receiverCtx         context.Context

    partitionIds      [ ]string

    stats              *stats.Stats
    idGen              *helpers.IdGen

    wg                 *sync.WaitGroup
}

type AzEvHub struct {
    TestId              string
    ConnStr             string
    EntityPath          string
    IotHub              bool
    ConsumerGroupPrefix string
    PropName            string

    CheckpointKind      string
    CheckpointTarget    string
    CheckpointPassword  string
    CheckpointTLS       bool

    IdsFile             string
    FillSize            int

    TotSenders          int
    TotReceivers        int
    MsgsPerReceive      int
    MsgsPerSend         int
    Prefetch            int

    BatchReceive        bool
    SenderOnly          bool
    ReceiverOnly        bool

    Duration            time.Duration
    WarmupDuration      time.Duration
    SendInterval        time.Duration
    ReceiveInterval     time.Duration
    StatDumpInterval    time.Duration

    Index               int

    azEvHubCtx
}
