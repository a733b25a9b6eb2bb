package eventhub

import (
    "context"
    "fmt"
    "reflect"
    "sync/atomic"
    "time"

    "github.com/Azure/go-amqp"
    "github.com/devigned/tab"
    "github.com/golang/glog"
    "github.com/google/uuid"
    "github.com/mitchellh/mapstructure"

    "github.com/azevhubclient/internal/config"
    "github.com/azevhubclient/internal/evherr"
    "github.com/azevhubclient/internal/transport"
)

func newManagementClient( cc *connectionContext )( *ManagementClient ) {
    return &ManagementClient {
        linkEntity : newLinkEntity( cc, "management", config.ManagementAddress, cc.cfg.ManagementAudience( ), nil ),
    }
}

func ( m *ManagementClient )current( )( transport.RPCLink ) {
    m.mu.Lock( )
    defer m.mu.Unlock( )
    return m.link
}

func ( m *ManagementClient )init( ctx context.Context )( error ) {
    if m.current( ) != nil {
        return nil
    }

    return m.cc.locks.Acquire( ctx, m.lockKey, func( ctx context.Context )( error ) {
        if m.current( ) != nil {
            return nil
        }

        if m.isClosed( ) {
            return m.closedError( )
        }

        ctx, cancel := context.WithTimeout( ctx, m.cc.opts.OperationTimeout )
        defer cancel( )

        if err := m.negotiateClaim( ctx, true ); err != nil {
            return err
        }

        conn, err := m.cc.connection( ctx )
        if err != nil {
            return err
        }

        link, err := conn.NewRPCLink( ctx, m.address )
        if err != nil {
            return evherr.Translate( err )
        }

        m.mu.Lock( )
        m.link = link
        m.mu.Unlock( )

        glog.Infof( "%s: opened on '%s'", m.logPrefix( ), m.address )
        return nil
    } )
}

func ( m *ManagementClient )reset( link transport.RPCLink ) {
    m.mu.Lock( )
    defer m.mu.Unlock( )

    if m.link == link {
        m.link = nil
    }
}

// request issues one READ against the management endpoint and returns the
// decoded response body.
func ( m *ManagementClient )request( ctx context.Context, entityType string, partitionId *string )( map[ string ]interface{ }, error ) {
    ctx, span := tab.StartSpan( ctx, "eventhub.ManagementClient.request" )
    defer span.End( )
    span.AddAttributes( tab.StringAttribute( "eh.entity_type", entityType ) )

    var body map[ string ]interface{ }

    err := m.cc.opts.SendRetry.Do( ctx, m.logPrefix( ) + " request", func( ctx context.Context )( error ) {
        if err := m.init( ctx ); err != nil {
            return err
        }

        token, err := m.cc.opts.TokenProvider.GetToken( m.audience )
        if err != nil {
            return evherr.Wrap( err, evherr.UnauthorizedError, false, "failed to get a token for %s: %v", m.audience, err )
        }

        msg := &amqp.Message {
            Properties : &amqp.MessageProperties {
                MessageID : uuid.NewString( ),
            },
            ApplicationProperties : map[ string ]interface{ } {
                "operation"      : readOperation,
                "name"           : m.cc.cfg.EntityPath,
                "type"           : entityType,
                "security_token" : token.Token,
            },
        }

        if partitionId != nil {
            msg.ApplicationProperties[ "partition" ] = *partitionId
        }

        link := m.current( )
        if link == nil {
            return evherr.New( evherr.ServiceCommunicationError, true, "%s: the link is not open", m.logPrefix( ) )
        }

        opCtx, cancel := context.WithTimeout( ctx, m.cc.opts.OperationTimeout )
        defer cancel( )

        res, err := link.RPC( opCtx, msg )
        if err != nil {
            m.reset( link )
            return evherr.Translate( err )
        }

        if res.Code != 200 {
            return evherr.FromStatusCode( res.Code, res.Description )
        }

        body, err = responseBody( res.Message )
        return err
    } )

    if err != nil {
        tab.For( ctx ).Error( err )
    }

    return body, err
}

func responseBody( msg *amqp.Message )( map[ string ]interface{ }, error ) {
    if msg == nil {
        return nil, evherr.New( evherr.MessagingError, false, "management response has no body" )
    }

    switch value := msg.Value.( type ) {
        case map[ string ]interface{ }:
            return value, nil

        case map[ interface{ } ]interface{ }:
            body := make( map[ string ]interface{ }, len( value ) )
            for k, v := range value {
                body[ fmt.Sprint( k ) ] = v
            }
            return body, nil

        case amqp.Annotations:
            body := make( map[ string ]interface{ }, len( value ) )
            for k, v := range value {
                body[ fmt.Sprint( k ) ] = v
            }
            return body, nil
    }

    return nil, evherr.New( evherr.MessagingError, false, "unexpected management response body of type %T", msg.Value )
}

var timeType = reflect.TypeOf( time.Time{ } )

// millisToTime accepts epoch milliseconds wherever a time.Time is expected.
func millisToTime( from reflect.Type, to reflect.Type, data interface{ } )( interface{ }, error ) {
    if to != timeType {
        return data, nil
    }

    switch v := data.( type ) {
        case int64:
            return time.UnixMilli( v ).UTC( ), nil
        case uint64:
            return time.UnixMilli( int64( v ) ).UTC( ), nil
    }

    return data, nil
}

func decodeResponse( body map[ string ]interface{ }, out interface{ } )( error ) {
    decoder, err := mapstructure.NewDecoder( &mapstructure.DecoderConfig {
        DecodeHook       : millisToTime,
        WeaklyTypedInput : true,
        Result           : out,
    } )
    if err != nil {
        return err
    }

    if err = decoder.Decode( body ); err != nil {
        return evherr.Wrap( err, evherr.MessagingError, false, "failed to decode management response: %v", err )
    }

    return nil
}

func ( m *ManagementClient )HubRuntimeInformation( ctx context.Context )( *HubRuntimeInformation, error ) {
    body, err := m.request( ctx, eventHubEntityType, nil )
    if err != nil {
        return nil, err
    }

    info := &HubRuntimeInformation{ }
    if err = decodeResponse( body, info ); err != nil {
        return nil, err
    }

    return info, nil
}

func ( m *ManagementClient )PartitionInformation( ctx context.Context, partitionId string )( *PartitionInformation, error ) {
    if err := config.ValidatePartitionId( partitionId ); err != nil {
        return nil, err
    }

    body, err := m.request( ctx, partitionEntityType, &partitionId )
    if err != nil {
        return nil, err
    }

    info := &PartitionInformation{ }
    if err = decodeResponse( body, info ); err != nil {
        return nil, err
    }

    return info, nil
}

func ( m *ManagementClient )Close( ctx context.Context )( error ) {
    atomic.StoreInt32( &m.closed, 1 )
    m.clearTokenRenewal( )
    m.cc.locks.Forget( m.lockKey )

    m.mu.Lock( )
    link := m.link
    m.link = nil
    m.mu.Unlock( )

    if link != nil {
        if err := link.Close( ctx ); err != nil {
            glog.Warningf( "%s: failed to close link: %v", m.logPrefix( ), err )
        }
    }

    return nil
}
