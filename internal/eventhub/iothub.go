package eventhub

import (
    "context"
    "errors"

    "github.com/golang/glog"

    "github.com/azevhubclient/internal/config"
    "github.com/azevhubclient/internal/evherr"
)

// NewClientFromIotHubConnectionString resolves the Event Hub compatible
// endpoint of an IoT Hub. The hub answers the first management request with a
// link redirect naming that endpoint; the returned client talks to it directly.
func NewClientFromIotHubConnectionString( ctx context.Context, connStr string, opts *ClientOptions )( *Client, error ) {
    cfg, err := config.ParseIotHub( connStr )
    if err != nil {
        return nil, err
    }

    iotClient, err := NewClient( cfg, opts )
    if err != nil {
        return nil, err
    }

    _, err = iotClient.HubRuntimeInformation( ctx )
    if err == nil {
        glog.Warningf( "IoT Hub %s answered without a redirect, using it directly", cfg.Host )
        return iotClient, nil
    }

    iotClient.Close( ctx )

    var redirect *evherr.Error
    if !errors.As( evherr.Translate( err ), &redirect ) || redirect.Name != evherr.LinkRedirectError {
        return nil, err
    }

    address, ok := redirect.Info[ "address" ].( string )
    if !ok || len( address ) == 0 {
        return nil, evherr.Wrap( err, evherr.MessagingError, false, "IoT Hub redirect carried no address: %v", err )
    }

    redirected, err := cfg.FromRedirect( address )
    if err != nil {
        return nil, err
    }

    glog.Infof( "IoT Hub %s redirected to %s", cfg.Host, redirected )
    return NewClient( redirected, opts )
}
