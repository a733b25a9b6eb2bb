package main

import (
    "context"
    "flag"
    "os"
    "time"

    "github.com/golang/glog"

    "github.com/azevhubclient/internal/eventhub"
)

var (
    connStr     = flag.String( "conn-string", "", "Connection string to access event hub" )
    entityPath  = flag.String( "entity-path", "", "Event hub name, overrides the connection string EntityPath" )
    iotHub      = flag.Bool( "iot-hub", false, "Connection string belongs to an IoT hub" )
    partition   = flag.String( "partition", "", "Only show this partition" )
    timeout     = flag.Duration( "timeout", 1 * time.Minute, "Overall timeout" )
)

func main( ) {
    flag.Parse( )

    err := flag.Lookup( "logtostderr" ).Value.Set( "true" )
    if err != nil {
        glog.Fatalf( "Error setting logtostderr to true: %v", err )
    }

    if len( *connStr ) == 0 {
        *connStr = os.Getenv( "AZEVHUB_CONN_STR" )
    }

    if len( *connStr ) == 0 {
        glog.Fatalf( "Connection string cannot be empty" )
    }

    ctx, cancel := context.WithTimeout( context.Background( ), *timeout )
    defer cancel( )

    var client *eventhub.Client
    if *iotHub {
        client, err = eventhub.NewClientFromIotHubConnectionString( ctx, *connStr, nil )
    } else {
        client, err = eventhub.NewClientFromConnectionString( *connStr, *entityPath, nil )
    }

    if err != nil {
        glog.Fatalf( "Failed to setup event hub client: %v", err )
    }

    defer client.Close( context.Background( ) )

    partitionIds := [ ]string{ *partition }
    if len( *partition ) == 0 {
        info, err := client.HubRuntimeInformation( ctx )
        if err != nil {
            glog.Fatalf( "Failed to get runtime information: %v", err )
        }

        glog.Infof( "Event hub %v created %v with %v partitions", info.Path, info.CreatedAt, info.PartitionCount )
        partitionIds = info.PartitionIds
    }

    for _, pid := range partitionIds {
        info, err := client.PartitionInformation( ctx, pid )
        if err != nil {
            glog.Errorf( "Failed to get partition %v information: %v", pid, err )
            continue
        }

        glog.Infof( "Partition %v: begin %v last %v offset %v enqueued %v empty %v",
                    info.PartitionId, info.BeginSequenceNumber, info.LastSequenceNumber,
                    info.LastEnqueuedOffset, info.LastEnqueuedTimeUtc, info.IsEmpty )
    }
}
