package checkpointstore

import (
    "context"
    "crypto/tls"
    "fmt"
    "strconv"
    "strings"
    "time"

    evhub_persist "github.com/Azure/azure-event-hubs-go/v3/persist"
    "github.com/go-redis/redis/v8"
    "github.com/golang/glog"
)

// New builds the checkpoint persister described by cfg. An empty kind means memory.
func New( cfg *Config )( evhub_persist.CheckpointPersister, error ) {
    if cfg == nil {
        return evhub_persist.NewMemoryPersister( ), nil
    }

    switch strings.ToLower( cfg.Kind ) {
        case "", KindMemory:
            return evhub_persist.NewMemoryPersister( ), nil

        case KindFile:
            if len( cfg.Target ) == 0 {
                return nil, fmt.Errorf( "file persister needs a directory" )
            }
            persister, err := evhub_persist.NewFilePersister( cfg.Target )
            if err != nil {
                return nil, fmt.Errorf( "failed to open checkpoint directory %v: %v", cfg.Target, err )
            }
            return persister, nil

        case KindRedis:
            if len( cfg.Target ) == 0 {
                return nil, fmt.Errorf( "redis persister needs an address" )
            }
            return NewRedisPersister( cfg ), nil
    }

    return nil, fmt.Errorf( "unknown checkpoint persister kind %v", cfg.Kind )
}

func NewRedisPersister( cfg *Config )( *RedisPersister ) {
    options := &redis.Options {
        Addr     : cfg.Target,
        Password : cfg.Password,
    }

    if cfg.TLS {
        options.TLSConfig = &tls.Config {
            MinVersion : tls.VersionTLS12,
        }
    }

    return newRedisPersister( redis.NewClient( options ), cfg.Timeout )
}

func newRedisPersister( client hashClient, timeout time.Duration )( *RedisPersister ) {
    if timeout <= 0 {
        timeout = DefaultRedisTimeout
    }

    return &RedisPersister {
        client  : client,
        timeout : timeout,
    }
}

func checkpointKey( nameSpace, name, consumerGroup, partitionId string )( string ) {
    return strings.Join( [ ]string{ nameSpace, name, consumerGroup, partitionId }, "/" )
}

// Ping checks that the redis instance is reachable.
func ( p *RedisPersister )Ping( ctx context.Context )( error ) {
    ctx, cancel := context.WithTimeout( ctx, p.timeout )
    defer cancel( )

    return p.client.Ping( ctx ).Err( )
}

func ( p *RedisPersister )Write( nameSpace, name, consumerGroup, partitionId string, checkPoint evhub_persist.Checkpoint )( error ) {
    key := checkpointKey( nameSpace, name, consumerGroup, partitionId )

    ctx, cancel := context.WithTimeout( context.Background( ), p.timeout )
    defer cancel( )

    fields := map[ string ]interface{ } {
        offsetField         : checkPoint.Offset,
        sequenceNumberField : strconv.FormatInt( checkPoint.SequenceNumber, 10 ),
        enqueueTimeField    : checkPoint.EnqueueTime.UTC( ).Format( time.RFC3339Nano ),
    }

    if _, err := p.client.HSet( ctx, key, fields ).Result( ); err != nil {
        glog.Errorf( "%v: Failed to write checkpoint, error = %v", key, err )
        return fmt.Errorf( "%v: failed to write checkpoint: %v", key, err )
    }

    return nil
}

// Read returns the stored checkpoint, or a start of stream checkpoint with an
// error when none was written.
func ( p *RedisPersister )Read( nameSpace, name, consumerGroup, partitionId string )( evhub_persist.Checkpoint, error ) {
    key := checkpointKey( nameSpace, name, consumerGroup, partitionId )

    ctx, cancel := context.WithTimeout( context.Background( ), p.timeout )
    defer cancel( )

    fields, err := p.client.HGetAll( ctx, key ).Result( )
    if err != nil {
        return evhub_persist.NewCheckpointFromStartOfStream( ), fmt.Errorf( "%v: failed to read checkpoint: %v", key, err )
    }

    offset, exists := fields[ offsetField ]
    if !exists {
        return evhub_persist.NewCheckpointFromStartOfStream( ), fmt.Errorf( "%v: no checkpoint stored", key )
    }

    checkPoint := evhub_persist.Checkpoint{ Offset : offset }

    if seq, exists := fields[ sequenceNumberField ]; exists {
        if checkPoint.SequenceNumber, err = strconv.ParseInt( seq, 10, 64 ); err != nil {
            return evhub_persist.NewCheckpointFromStartOfStream( ), fmt.Errorf( "%v: invalid sequence number %v", key, seq )
        }
    }

    if enqueued, exists := fields[ enqueueTimeField ]; exists {
        if checkPoint.EnqueueTime, err = time.Parse( time.RFC3339Nano, enqueued ); err != nil {
            return evhub_persist.NewCheckpointFromStartOfStream( ), fmt.Errorf( "%v: invalid enqueue time %v", key, enqueued )
        }
    }

    return checkPoint, nil
}

func ( p *RedisPersister )Close( )( error ) {
    return p.client.Close( )
}
