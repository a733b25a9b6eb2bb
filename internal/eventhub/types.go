package eventhub

import (
    "context"
    "sync"
    "time"

    "github.com/Azure/azure-amqp-common-go/v3/auth"
    evhub_persist "github.com/Azure/azure-event-hubs-go/v3/persist"

    "github.com/azevhubclient/internal/config"
    "github.com/azevhubclient/internal/eventdata"
    "github.com/azevhubclient/internal/namedlock"
    "github.com/azevhubclient/internal/position"
    "github.com/azevhubclient/internal/retry"
    "github.com/azevhubclient/internal/transport"
)

const (
    DefaultOperationTimeout   = 60 * time.Second
    DefaultDisconnectDelay    = 1 * time.Second
    DefaultTokenValidity      = 3600 * time.Second
    DefaultTokenRenewalMargin = 900 * time.Second
    DefaultPrefetch           = uint32( 500 )
    DefaultBatchWait          = 60 * time.Second

    epochProperty             = "com.microsoft:epoch"
    receiverNameProperty      = "com.microsoft:receiver-name"
    runtimeMetricCapability   = "com.microsoft:enable-receiver-runtime-metric-use"

    eventHubEntityType        = "com.microsoft:eventhub"
    partitionEntityType       = "com.microsoft:partition"
    readOperation             = "READ"
)

// ClientOptions tunes a Client. Zero values are replaced by the defaults above.
type ClientOptions struct {
    UserAgent           string
    Transformer         eventdata.Transformer
    TokenProvider       auth.TokenProvider
    Dialer              transport.Dialer

    OperationTimeout    time.Duration
    SendRetry           retry.Policy
    ReconnectRetry      retry.Policy
    DisconnectDelay     time.Duration
    TokenValidity       time.Duration
    TokenRenewalMargin  time.Duration
    Prefetch            uint32

    // When set, receivers without an explicit position resume from the
    // persisted checkpoint, and every received event is checkpointed.
    CheckpointPersister evhub_persist.CheckpointPersister
}

type sendOptions struct {
    partitionId *string
}

type SendOption func( *sendOptions )

// ReceiveOptions describes the receive link. Position defaults to the persisted
// checkpoint when a persister is configured, the start of the stream otherwise.
type ReceiveOptions struct {
    ConsumerGroup       string
    Position            *position.Position
    Epoch               *int64
    Identifier          string
    Prefetch            uint32
    EnableRuntimeMetric bool
}

type ReceiveOption func( *ReceiveOptions )

type OnMessage func( *eventdata.EventData )
type OnError func( error )

type HubRuntimeInformation struct {
    Path                string      `mapstructure:"name"`
    CreatedAt           time.Time   `mapstructure:"created_at"`
    PartitionCount      int         `mapstructure:"partition_count"`
    PartitionIds        [ ]string   `mapstructure:"partition_ids"`
    Type                string      `mapstructure:"type"`
}

type PartitionInformation struct {
    HubPath             string      `mapstructure:"name"`
    PartitionId         string      `mapstructure:"partition"`
    BeginSequenceNumber int64       `mapstructure:"begin_sequence_number"`
    LastSequenceNumber  int64       `mapstructure:"last_enqueued_sequence_number"`
    LastEnqueuedOffset  string      `mapstructure:"last_enqueued_offset"`
    LastEnqueuedTimeUtc time.Time   `mapstructure:"last_enqueued_time_utc"`
    IsEmpty             bool        `mapstructure:"is_partition_empty"`
    Type                string      `mapstructure:"type"`
}

// connectionContext is shared by every link of one Client.
type connectionContext struct {
    id                       string
    cfg                      *config.ConnectionConfig
    opts                     ClientOptions
    userAgent                string
    locks                    *namedlock.Locks

    connectionLockKey        string
    cbsLockKey               string
    negotiateClaimLockKey    string

    // Cancelled by close; bounds reconnection attempts.
    ctx                      context.Context
    cancel                   context.CancelFunc

    mu                       sync.Mutex
    conn                     transport.Connection
    cbs                      transport.RPCLink
    senders                  map[ string ]managedLink
    receivers                map[ string ]managedLink
    wasConnectionCloseCalled bool
    watchers                 sync.WaitGroup
}

// managedLink is a sender or receiver registered with the connection context.
type managedLink interface {
    Name( )( string )
    isConnecting( )( bool )
    attachedTo( conn transport.Connection )( bool )
    detached( err error )
    Close( ctx context.Context )( error )
}

// reconnectable supplies the entity specific steps of the reconnect protocol.
type reconnectable interface {
    init( ctx context.Context )( error )
    teardown( ctx context.Context )
    beforeReconnect( )
    fail( err error )
}

// linkEntity is the lifecycle shared by senders, receivers and the management client.
type linkEntity struct {
    cc              *connectionContext
    kind            string
    address         string
    audience        string
    partitionId     *string
    lockKey         string

    nameMu          sync.RWMutex
    name            string

    connecting      int32

    // Set by Close, or when a detach leaves the entity closed for good.
    closed          int32

    timerMu         sync.Mutex
    renewalTimer    *time.Timer
}

type Sender struct {
    *linkEntity

    mu              sync.Mutex
    conn            transport.Connection
    session         transport.Session
    link            transport.Sender
}

// Receiver holds the state shared by streaming and batching receivers.
type Receiver struct {
    *linkEntity

    consumerGroup   string
    receivePid      string
    opts            ReceiveOptions

    mu              sync.Mutex
    conn            transport.Connection
    session         transport.Session
    link            transport.Receiver
    position        *position.Position
    checkpoint      evhub_persist.Checkpoint
    hasCheckpoint   bool
    runtimeInfo     *eventdata.RuntimeInfo
    pendingCredit   int64

    // Hooks set by the streaming and batching receivers.
    self            managedLink
    initialCredit   func( )( uint32 )
    opened          func( link transport.Receiver )
    failed          func( err error )
}

type StreamingReceiver struct {
    *Receiver

    events          chan *eventdata.EventData
    done            chan struct{ }
    doneOnce        sync.Once
    errMu           sync.Mutex
    err             error

    pumpMu          sync.Mutex
    pumpCancel      context.CancelFunc
    pumps           sync.WaitGroup

    cbMu            sync.Mutex
    onMessage       OnMessage
    onError         OnError
    dispatching     bool

    handler         *ReceiveHandler
}

type BatchingReceiver struct {
    *Receiver

    receiveMu       sync.Mutex
    batchSize       uint32
}

// ReceiveHandler is the caller facing side of a streaming receive. It stays
// valid across reconnects of the underlying link.
type ReceiveHandler struct {
    receiver        *StreamingReceiver
}

type ManagementClient struct {
    *linkEntity

    mu              sync.Mutex
    link            transport.RPCLink
}

type Client struct {
    cc              *connectionContext
    management      *ManagementClient

    mu              sync.Mutex
    senders         map[ string ]*Sender
}
