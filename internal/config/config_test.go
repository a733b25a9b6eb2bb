package config

import (
    "strings"
    "testing"

    "github.com/stretchr/testify/require"

    "github.com/azevhubclient/internal/evherr"
)

const (
    testConnStr   = "Endpoint=sb://myns.servicebus.windows.net/;SharedAccessKeyName=RootManageSharedAccessKey;SharedAccessKey=c2VjcmV0;EntityPath=myhub"
    testIotConnStr = "HostName=myiot.azure-devices.net;SharedAccessKeyName=iothubowner;SharedAccessKey=aW90c2VjcmV0"
)

func TestParse( t *testing.T ) {
    cfg, err := Parse( testConnStr, "" )
    require.NoError( t, err )
    require.Equal( t, "myns.servicebus.windows.net", cfg.Host )
    require.Equal( t, "sb://myns.servicebus.windows.net/", cfg.Endpoint )
    require.Equal( t, "myhub", cfg.EntityPath )
    require.Equal( t, "RootManageSharedAccessKey", cfg.SharedAccessKeyName )
    require.Equal( t, "c2VjcmV0", cfg.SharedAccessKey )
    require.False( t, cfg.IsIotHub )

    cfg, err = Parse( testConnStr, "otherhub" )
    require.NoError( t, err )
    require.Equal( t, "otherhub", cfg.EntityPath )
}

func TestParseRequiresEntityPath( t *testing.T ) {
    _, err := Parse( "Endpoint=sb://myns.servicebus.windows.net/;SharedAccessKeyName=k;SharedAccessKey=v", "" )
    require.Equal( t, evherr.ArgumentError, evherr.NameOf( err ) )
}

func TestAddresses( t *testing.T ) {
    cfg, err := Parse( testConnStr, "" )
    require.NoError( t, err )

    partitionId := "3"
    require.Equal( t, "myhub", cfg.SenderAddress( nil ) )
    require.Equal( t, "myhub/Partitions/3", cfg.SenderAddress( &partitionId ) )
    require.Equal( t, "sb://myns.servicebus.windows.net/myhub/Partitions/3", cfg.SenderAudience( &partitionId ) )
    require.Equal( t, "myhub/ConsumerGroups/$default/Partitions/3", cfg.ReceiverAddress( "3", "" ) )
    require.Equal( t, "sb://myns.servicebus.windows.net/myhub/ConsumerGroups/cg1/Partitions/3", cfg.ReceiverAudience( "3", "cg1" ) )
    require.Equal( t, "sb://myns.servicebus.windows.net/myhub/$management", cfg.ManagementAudience( ) )
}

func TestParseIotHubAndRedirect( t *testing.T ) {
    cfg, err := ParseIotHub( testIotConnStr )
    require.NoError( t, err )
    require.True( t, cfg.IsIotHub )
    require.Equal( t, "myiot.azure-devices.net", cfg.Host )
    require.Equal( t, "messages/events", cfg.EntityPath )
    require.Equal( t, "iothubowner", cfg.SharedAccessKeyName )

    redirected, err := cfg.FromRedirect( "amqps://ihsuprodbyres.servicebus.windows.net:5671/iothub-ehub-myiot-123/$management" )
    require.NoError( t, err )
    require.False( t, redirected.IsIotHub )
    require.Equal( t, "ihsuprodbyres.servicebus.windows.net", redirected.Host )
    require.Equal( t, "iothub-ehub-myiot-123", redirected.EntityPath )
    require.Equal( t, "iothubowner", redirected.SharedAccessKeyName )
    require.Equal( t, "aW90c2VjcmV0", redirected.SharedAccessKey )

    _, err = cfg.FromRedirect( "amqps://hostonly" )
    require.Error( t, err )

    _, err = ParseIotHub( "HostName=myiot.azure-devices.net;garbage" )
    require.Equal( t, evherr.ArgumentError, evherr.NameOf( err ) )
}

func TestUserAgent( t *testing.T ) {
    ua, err := UserAgent( "" )
    require.NoError( t, err )
    require.Equal( t, "/go-event-hubs", ua )

    ua, err = UserAgent( "bench/1.0" )
    require.NoError( t, err )
    require.Equal( t, "/go-event-hubs,bench/1.0", ua )

    _, err = UserAgent( strings.Repeat( "x", 128 ) )
    require.Equal( t, evherr.ArgumentError, evherr.NameOf( err ) )
}

func TestValidatePartitionId( t *testing.T ) {
    require.NoError( t, ValidatePartitionId( "0" ) )
    require.NoError( t, ValidatePartitionId( "17" ) )

    for _, bad := range [ ]string{ "", "   ", "\t", "0/1", "1 2" } {
        require.Equal( t, evherr.ArgumentError, evherr.NameOf( ValidatePartitionId( bad ) ), "%q", bad )
    }
}
