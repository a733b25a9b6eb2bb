package config

const (
    DefaultConsumerGroup   = "$default"
    ManagementAddress      = "$management"
    CbsAddress             = "$cbs"

    iotHubEntityPath       = "messages/events"
    userAgentPrefix        = "/go-event-hubs"
    maxUserAgentLength     = 128
)

// ConnectionConfig describes one Event Hub (or IoT Hub event endpoint) and
// the shared access key used to authorize against it.
type ConnectionConfig struct {
    Host                string
    Endpoint            string
    EntityPath          string
    SharedAccessKeyName string
    SharedAccessKey     string

    // Set for configs built from an IoT Hub connection string, which must be
    // redirected to the Event Hub compatible endpoint before use.
    IsIotHub            bool
}
