package config

import (
    "fmt"
    "net/url"
    "strings"

    "github.com/Azure/azure-amqp-common-go/v3/conn"

    "github.com/azevhubclient/internal/evherr"
)

// Parse reads an Event Hubs connection string. entityPath, when not empty,
// overrides any EntityPath carried by the string.
func Parse( connStr, entityPath string )( *ConnectionConfig, error ) {
    parsed, err := conn.ParsedConnectionFromStr( connStr )
    if err != nil {
        return nil, evherr.Wrap( err, evherr.ArgumentError, false, "invalid connection string: %v", err )
    }

    cfg := &ConnectionConfig {
        EntityPath          : parsed.HubName,
        SharedAccessKeyName : parsed.KeyName,
        SharedAccessKey     : parsed.Key,
    }

    cfg.setHost( parsed.Namespace + "." + parsed.Suffix )

    if len( entityPath ) > 0 {
        cfg.EntityPath = entityPath
    }

    if err = cfg.Validate( ); err != nil {
        return nil, err
    }

    return cfg, nil
}

// ParseIotHub reads an IoT Hub connection string of the form
// HostName=...;SharedAccessKeyName=...;SharedAccessKey=...
func ParseIotHub( connStr string )( *ConnectionConfig, error ) {
    fields := make( map[ string ]string )

    for _, part := range strings.Split( connStr, ";" ) {
        part = strings.TrimSpace( part )
        if len( part ) == 0 {
            continue
        }

        idx := strings.Index( part, "=" )
        if idx <= 0 {
            return nil, evherr.NewArgumentError( "invalid IoT Hub connection string segment %q", part )
        }

        fields[ strings.ToLower( part[ :idx ] ) ] = part[ idx + 1: ]
    }

    cfg := &ConnectionConfig {
        EntityPath          : iotHubEntityPath,
        SharedAccessKeyName : fields[ "sharedaccesskeyname" ],
        SharedAccessKey     : fields[ "sharedaccesskey" ],
        IsIotHub            : true,
    }

    cfg.setHost( fields[ "hostname" ] )

    if err := cfg.Validate( ); err != nil {
        return nil, err
    }

    return cfg, nil
}

// FromRedirect builds the Event Hub compatible config from the address carried
// by an IoT Hub link redirect, keeping the IoT Hub credentials.
func ( cfg *ConnectionConfig )FromRedirect( address string )( *ConnectionConfig, error ) {
    u, err := url.Parse( address )
    if err != nil {
        return nil, evherr.Wrap( err, evherr.MessagingError, false, "invalid redirect address %q: %v", address, err )
    }

    segments := strings.Split( strings.Trim( u.Path, "/" ), "/" )
    if len( u.Hostname( ) ) == 0 || len( segments ) == 0 || len( segments[ 0 ] ) == 0 {
        return nil, evherr.New( evherr.MessagingError, false, "redirect address %q has no host or entity path", address )
    }

    redirected := &ConnectionConfig {
        EntityPath          : segments[ 0 ],
        SharedAccessKeyName : cfg.SharedAccessKeyName,
        SharedAccessKey     : cfg.SharedAccessKey,
    }

    redirected.setHost( u.Hostname( ) )
    return redirected, nil
}

func ( cfg *ConnectionConfig )setHost( host string ) {
    cfg.Host     = strings.TrimSuffix( host, "/" )
    cfg.Endpoint = fmt.Sprintf( "sb://%s/", cfg.Host )
}

func ( cfg *ConnectionConfig )Validate( )( error ) {
    switch {
        case len( cfg.Host ) == 0 || cfg.Host == ".":
            return evherr.NewArgumentError( "connection string must provide an endpoint" )

        case len( cfg.EntityPath ) == 0:
            return evherr.NewArgumentError( "an entity path is required" )

        case len( cfg.SharedAccessKeyName ) == 0 || len( cfg.SharedAccessKey ) == 0:
            return evherr.NewArgumentError( "connection string must provide SharedAccessKeyName and SharedAccessKey" )
    }

    return nil
}

func ( cfg *ConnectionConfig )String( )( string ) {
    return cfg.Endpoint + cfg.EntityPath
}

func ( cfg *ConnectionConfig )audience( address string )( string ) {
    return cfg.Endpoint + address
}

// SenderAddress targets the hub, or a single partition when partitionId is set.
func ( cfg *ConnectionConfig )SenderAddress( partitionId *string )( string ) {
    if partitionId == nil {
        return cfg.EntityPath
    }

    return fmt.Sprintf( "%s/Partitions/%s", cfg.EntityPath, *partitionId )
}

func ( cfg *ConnectionConfig )SenderAudience( partitionId *string )( string ) {
    return cfg.audience( cfg.SenderAddress( partitionId ) )
}

func ( cfg *ConnectionConfig )ReceiverAddress( partitionId, consumerGroup string )( string ) {
    if len( consumerGroup ) == 0 {
        consumerGroup = DefaultConsumerGroup
    }

    return fmt.Sprintf( "%s/ConsumerGroups/%s/Partitions/%s", cfg.EntityPath, consumerGroup, partitionId )
}

func ( cfg *ConnectionConfig )ReceiverAudience( partitionId, consumerGroup string )( string ) {
    return cfg.audience( cfg.ReceiverAddress( partitionId, consumerGroup ) )
}

func ( cfg *ConnectionConfig )ManagementAudience( )( string ) {
    return cfg.audience( cfg.EntityPath + "/" + ManagementAddress )
}

// UserAgent composes the user agent announced on the connection.
func UserAgent( custom string )( string, error ) {
    userAgent := userAgentPrefix
    if len( custom ) > 0 {
        userAgent += "," + custom
    }

    if len( userAgent ) > maxUserAgentLength {
        return "", evherr.NewArgumentError( "user agent %q exceeds %d characters", userAgent, maxUserAgentLength )
    }

    return userAgent, nil
}

// ValidatePartitionId rejects empty or whitespace-only partition ids.
func ValidatePartitionId( partitionId string )( error ) {
    if len( strings.TrimSpace( partitionId ) ) == 0 {
        return evherr.NewArgumentError( "partition id must be a non-empty string" )
    }

    if strings.ContainsAny( partitionId, "/ " ) {
        return evherr.NewArgumentError( "partition id %q is malformed", partitionId )
    }

    return nil
}
