package main

import (
    "flag"
    "fmt"
    "os"
    "time"

    "github.com/golang/glog"

    "github.com/azevhubclient/internal/helpers"
)

var (
    count       = flag.Int( "count", 128, "Number of ids to generate" )
    file        = flag.String( "file", "", "File to write generated ids to, usable as azevhubbench -ids-file" )
)

func main( ) {
    flag.Parse( )

    err := flag.Lookup( "logtostderr" ).Value.Set( "true" )
    if err != nil {
        glog.Fatalf( "Error setting logtostderr to true: %v", err )
    }

    glog.Infof( "Starting idgen" )

    idGen := helpers.NewIdGenerator( )
    err    = idGen.InitIdBlock( *count )
    if err != nil {
        glog.Fatalf( "Error generating ids: %v", err )
    }

    if len( *file ) == 0 {
        for _, id := range idGen.Block {
            glog.Infof( "%v", id )
        }
        return
    }

    fh, err := os.Create( *file )
    if err != nil {
        glog.Fatalf( "Failed to create/open file %v: %v", *file, err )
    }

    defer fh.Close( )

    _, err = fmt.Fprintf( fh, "# %v sender ids generated %v\n", idGen.Count, time.Now( ).UTC( ).Format( time.RFC3339 ) )
    if err != nil {
        glog.Fatalf( "Failed to write to file %v: %v", *file, err )
    }

    for _, id := range idGen.Block {
        _, err = fh.WriteString( id + "\n" )
        if err != nil {
            glog.Fatalf( "Failed to write to file %v: %v", *file, err )
        }
    }

    glog.Infof( "Wrote %v ids to %v", idGen.Count, *file )
}
