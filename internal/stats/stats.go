package stats

import (
    "context"
    "fmt"
    "sync"
    "sync/atomic"
    "time"

    "github.com/golang/glog"
)

func NewStats( ids [ ]string, ctx context.Context )( stats *Stats ) {
    stats = &Stats{
        count        : uint64( len( ids ) ),
        partitions   : make( map[ string ]*partitionElem ),
        dumpInterval : DefaultDumpInterval,
        wg           : &sync.WaitGroup{ },
    }

    stats.SetIds( ids )
    stats.SetCtx( ctx )

    return stats
}

func ( stats *Stats )SetIds( ids [ ]string )( err error ) {
    if nil == stats {
        return fmt.Errorf( "invalid stats context" )
    }

    stats.count = uint64( len( ids ) )
    stats.ids   = make( [ ]string, stats.count )
    copy( stats.ids, ids )

    stats.elems = make( [ ]statsElem, stats.count )
    for i := range stats.elems {
        stats.elems[ i ].rcvdById = make( [ ]uint64, stats.count )
    }

    return nil
}

func ( stats *Stats )SetPartitions( partitionIds [ ]string )( err error ) {
    if nil == stats {
        return fmt.Errorf( "invalid stats context" )
    }

    stats.partitionIds = make( [ ]string, len( partitionIds ) )
    copy( stats.partitionIds, partitionIds )

    stats.partitions = make( map[ string ]*partitionElem, len( partitionIds ) )
    for _, pid := range partitionIds {
        stats.partitions[ pid ] = &partitionElem{ lastSeq : -1 }
    }

    return nil
}

func ( stats *Stats )SetCtx( ctx context.Context ) {
    stats.ctx = ctx
}

func ( stats *Stats )SetStatsDumpInterval( intvl time.Duration ) {
    if intvl > 0 {
        stats.dumpInterval = intvl
    }
}

func ( stats *Stats )StartDumper( ) {
    stats.wg.Add( 1 )
    go func( ) {
        stats.dumpStats( )
        stats.wg.Done( )
    }( )
}

func ( stats *Stats )StopDumper( ) {
    stats.wg.Wait( )
}

func ( stats *Stats )valid( idx int )( bool ) {
    return idx >= 0 && idx < len( stats.elems )
}

func ( stats *Stats )UpdateSenderStat( idx int, incrBy uint64 ) {
    if stats.valid( idx ) {
        atomic.AddUint64( &stats.elems[ idx ].sent, incrBy )
    }
}

func ( stats *Stats )UpdateErrorStat( idx int ) {
    if stats.valid( idx ) {
        atomic.AddUint64( &stats.elems[ idx ].errors, 1 )
    }
}

func ( stats *Stats )UpdateReceiverStat( idx, fromIdx int, incrBy, lIncrBy uint64 ) {
    if !stats.valid( idx ) {
        return
    }

    elem := &stats.elems[ idx ]

    atomic.AddUint64( &elem.rcvd, incrBy )
    atomic.AddUint64( &elem.latency, lIncrBy )
    if fromIdx >= 0 && fromIdx < len( elem.rcvdById ) {
        atomic.AddUint64( &elem.rcvdById[ fromIdx ], incrBy )
    }

    for {
        maxLatency := atomic.LoadUint64( &elem.maxLatency )
        if lIncrBy <= maxLatency || atomic.CompareAndSwapUint64( &elem.maxLatency, maxLatency, lIncrBy ) {
            return
        }
    }
}

// UpdatePartitionStat counts an event received from partitionId; unknown partitions are ignored.
func ( stats *Stats )UpdatePartitionStat( partitionId string, seq int64 ) {
    elem, ok := stats.partitions[ partitionId ]
    if !ok {
        return
    }

    atomic.AddUint64( &elem.rcvd, 1 )
    for {
        lastSeq := atomic.LoadInt64( &elem.lastSeq )
        if seq <= lastSeq || atomic.CompareAndSwapInt64( &elem.lastSeq, lastSeq, seq ) {
            return
        }
    }
}

func ( stats *Stats )Snapshot( idx int )( elem Elem, err error ) {
    if !stats.valid( idx ) {
        return elem, fmt.Errorf( "invalid stats index %v", idx )
    }

    v := &stats.elems[ idx ]

    elem = Elem {
        Sent       : atomic.LoadUint64( &v.sent ),
        Received   : atomic.LoadUint64( &v.rcvd ),
        Errors     : atomic.LoadUint64( &v.errors ),
        MaxLatency : atomic.LoadUint64( &v.maxLatency ),
    }

    if elem.Received > 0 {
        elem.AvgLatency = atomic.LoadUint64( &v.latency ) / elem.Received
    }

    return elem, nil
}

func ( stats *Stats )ReceivedById( idx, fromIdx int )( uint64 ) {
    if !stats.valid( idx ) || fromIdx < 0 || fromIdx >= len( stats.elems[ idx ].rcvdById ) {
        return 0
    }

    return atomic.LoadUint64( &stats.elems[ idx ].rcvdById[ fromIdx ] )
}

// PartitionSnapshot returns the events received from partitionId and the highest sequence number seen.
func ( stats *Stats )PartitionSnapshot( partitionId string )( rcvd uint64, lastSeq int64, ok bool ) {
    elem, ok := stats.partitions[ partitionId ]
    if !ok {
        return 0, -1, false
    }

    return atomic.LoadUint64( &elem.rcvd ), atomic.LoadInt64( &elem.lastSeq ), true
}

func ( stats *Stats )dumpStats( ) {
    ticker := time.NewTicker( stats.dumpInterval )
    defer ticker.Stop( )

    for {
        select {
            case <-stats.ctx.Done( ):
                stats.dump( true )
                return

            case <-ticker.C:
                stats.dump( false )
        }
    }
}

func ( stats *Stats )dump( byId bool ) {
    glog.Infof( "---" )
    for i := range stats.elems {
        elem, _ := stats.Snapshot( i )

        glog.Infof( "%v: Sent %v Received %v Errors %v Average Latency %vus Max Latency %vus",
                    stats.ids[ i ], elem.Sent, elem.Received, elem.Errors, elem.AvgLatency, elem.MaxLatency )

        if byId {
            for j := range stats.elems[ i ].rcvdById {
                glog.Infof( "%v: Received %v", stats.ids[ j ], stats.ReceivedById( i, j ) )
            }
        }
    }

    for _, pid := range stats.partitionIds {
        rcvd, lastSeq, _ := stats.PartitionSnapshot( pid )
        glog.Infof( "Partition %v: Received %v Last Sequence Number %v", pid, rcvd, lastSeq )
    }
    glog.Infof( "---" )
}
