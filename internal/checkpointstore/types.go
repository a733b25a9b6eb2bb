package checkpointstore

import (
    "context"
    "time"

    "github.com/go-redis/redis/v8"
)

const (
    KindMemory          = "memory"
    KindFile            = "file"
    KindRedis           = "redis"

    DefaultRedisTimeout = 5 * time.Second

    offsetField         = "offset"
    sequenceNumberField = "sequenceNumber"
    enqueueTimeField    = "enqueueTime"
)

// Config selects a persister. Target is a directory for the file persister
// and host:port for redis; the memory persister ignores it.
type Config struct {
    Kind        string
    Target      string
    Password    string
    TLS         bool
    Timeout     time.Duration
}

// hashClient is the part of the redis client the persister needs.
type hashClient interface {
    HSet( ctx context.Context, key string, values ...interface{ } )( *redis.IntCmd )
    HGetAll( ctx context.Context, key string )( *redis.StringStringMapCmd )
    Ping( ctx context.Context )( *redis.StatusCmd )
    Close( )( error )
}

// RedisPersister keeps one hash per partition checkpoint.
type RedisPersister struct {
    client      hashClient
    timeout     time.Duration
}
