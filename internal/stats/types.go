package stats

import (
    "context"
    "sync"
    "time"
)

const (
    DefaultDumpInterval = 30 * time.Second
)

type statsElem struct {
    sent        uint64 // Number of events sent
    rcvd        uint64 // Number of events received
    errors      uint64 // Failed sends and rejected events
    rcvdById [ ]uint64 // Received per sender id
    latency     uint64 // Cumulative latency in microseconds
    maxLatency  uint64
}

type partitionElem struct {
    rcvd        uint64
    lastSeq     int64
}

// Elem is a point in time copy of one id's counters.
type Elem struct {
    Sent        uint64
    Received    uint64
    Errors      uint64
    AvgLatency  uint64
    MaxLatency  uint64
}

type Stats struct {
    ids          [ ]string
    elems        [ ]statsElem
    count           uint64

    // Keys are fixed by SetPartitions before the dumper starts.
    partitions      map[ string ]*partitionElem
    partitionIds  [ ]string

    ctx             context.Context
    dumpInterval    time.Duration
    wg             *sync.WaitGroup
}
