package eventhub

import (
    "context"
    "time"

    "github.com/devigned/tab"
    "github.com/golang/glog"

    "github.com/azevhubclient/internal/config"
    "github.com/azevhubclient/internal/eventdata"
    "github.com/azevhubclient/internal/position"
)

// WithPartition sends to a single partition instead of letting the service pick one.
func WithPartition( partitionId string )( SendOption ) {
    return func( o *sendOptions ) {
        o.partitionId = &partitionId
    }
}

func WithConsumerGroup( consumerGroup string )( ReceiveOption ) {
    return func( o *ReceiveOptions ) {
        o.ConsumerGroup = consumerGroup
    }
}

func WithPosition( p *position.Position )( ReceiveOption ) {
    return func( o *ReceiveOptions ) {
        o.Position = p
    }
}

// WithEpoch makes the receiver exclusive; a higher epoch preempts lower ones.
func WithEpoch( epoch int64 )( ReceiveOption ) {
    return func( o *ReceiveOptions ) {
        o.Epoch = &epoch
    }
}

func WithIdentifier( identifier string )( ReceiveOption ) {
    return func( o *ReceiveOptions ) {
        o.Identifier = identifier
    }
}

func WithPrefetch( prefetch uint32 )( ReceiveOption ) {
    return func( o *ReceiveOptions ) {
        o.Prefetch = prefetch
    }
}

func WithRuntimeMetric( )( ReceiveOption ) {
    return func( o *ReceiveOptions ) {
        o.EnableRuntimeMetric = true
    }
}

func NewClient( cfg *config.ConnectionConfig, opts *ClientOptions )( *Client, error ) {
    cc, err := newConnectionContext( cfg, opts )
    if err != nil {
        return nil, err
    }

    glog.Infof( "[%s] Client created for %s", cc.id, cfg )

    return &Client {
        cc         : cc,
        management : newManagementClient( cc ),
        senders    : make( map[ string ]*Sender ),
    }, nil
}

// NewClientFromConnectionString builds a client from an Event Hubs connection
// string; entityPath overrides the EntityPath it carries.
func NewClientFromConnectionString( connStr, entityPath string, opts *ClientOptions )( *Client, error ) {
    cfg, err := config.Parse( connStr, entityPath )
    if err != nil {
        return nil, err
    }

    return NewClient( cfg, opts )
}

func ( c *Client )EventHubName( )( string ) {
    return c.cc.cfg.EntityPath
}

// sender returns the cached sender for a target, replacing one that was closed.
func ( c *Client )sender( partitionId *string )( *Sender ) {
    address := c.cc.cfg.SenderAddress( partitionId )

    c.mu.Lock( )
    defer c.mu.Unlock( )

    if s, ok := c.senders[ address ]; ok && !s.isClosed( ) {
        return s
    }

    s := newSender( c.cc, partitionId )
    c.senders[ address ] = s
    return s
}

func resolveSendOptions( opts [ ]SendOption )( *sendOptions, error ) {
    o := &sendOptions{ }
    for _, opt := range opts {
        opt( o )
    }

    if o.partitionId != nil {
        if err := config.ValidatePartitionId( *o.partitionId ); err != nil {
            return nil, err
        }
    }

    return o, nil
}

func resolveReceiveOptions( opts [ ]ReceiveOption )( ReceiveOptions ) {
    o := ReceiveOptions{ }
    for _, opt := range opts {
        opt( &o )
    }

    return o
}

func ( c *Client )Send( ctx context.Context, ed *eventdata.EventData, opts ...SendOption )( error ) {
    o, err := resolveSendOptions( opts )
    if err != nil {
        return err
    }

    return c.sender( o.partitionId ).Send( ctx, ed )
}

func ( c *Client )SendBatch( ctx context.Context, events [ ]*eventdata.EventData, opts ...SendOption )( error ) {
    o, err := resolveSendOptions( opts )
    if err != nil {
        return err
    }

    return c.sender( o.partitionId ).SendBatch( ctx, events )
}

// Receive streams events from a partition. Events go to onMessage when it is
// set, otherwise they are pulled with ReceiveHandler.Next.
func ( c *Client )Receive( ctx context.Context, partitionId string, onMessage OnMessage, onError OnError, opts ...ReceiveOption )( *ReceiveHandler, error ) {
    r, err := newStreamingReceiver( c.cc, partitionId, resolveReceiveOptions( opts ) )
    if err != nil {
        return nil, err
    }

    return r.Receive( ctx, onMessage, onError )
}

// ReceiveBatch opens a receiver for one batch and closes it afterwards.
func ( c *Client )ReceiveBatch( ctx context.Context, partitionId string, maxCount int, maxWait time.Duration, opts ...ReceiveOption )( [ ]*eventdata.EventData, error ) {
    r, err := newBatchingReceiver( c.cc, partitionId, resolveReceiveOptions( opts ) )
    if err != nil {
        return nil, err
    }

    defer r.Close( context.Background( ) )
    return r.Receive( ctx, maxCount, maxWait )
}

func ( c *Client )HubRuntimeInformation( ctx context.Context )( *HubRuntimeInformation, error ) {
    return c.management.HubRuntimeInformation( ctx )
}

func ( c *Client )PartitionIds( ctx context.Context )( [ ]string, error ) {
    info, err := c.management.HubRuntimeInformation( ctx )
    if err != nil {
        return nil, err
    }

    return info.PartitionIds, nil
}

func ( c *Client )PartitionInformation( ctx context.Context, partitionId string )( *PartitionInformation, error ) {
    return c.management.PartitionInformation( ctx, partitionId )
}

// Close closes every sender and receiver, then the connection.
func ( c *Client )Close( ctx context.Context )( error ) {
    ctx, span := tab.StartSpan( ctx, "eventhub.Client.Close" )
    defer span.End( )

    c.management.Close( ctx )

    err := c.cc.close( ctx )
    if err != nil {
        tab.For( ctx ).Error( err )
    }

    return err
}
