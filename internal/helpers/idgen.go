package helpers

import (
    "fmt"
    "io"
    "strings"

    "github.com/google/uuid"
)

// IdGen holds the sender ids of a bench run. Several bench instances share one
// block; each instance takes the slice selected by its index.
type IdGen struct {
    Block       [ ]string
    Count          int
    Initialized    bool
}

func NewIdGenerator( )( *IdGen ) {
    return &IdGen{ }
}

func ( idGen *IdGen )InitIdBlockFromReader( file io.Reader )( err error ) {
    if idGen.Initialized {
        return nil
    }

    cb := func ( id string )( error ) {
        id = strings.TrimSpace( id )
        if len( id ) == 0 {
            return nil
        }

        idGen.Block = append( idGen.Block, id )
        idGen.Count++
        return nil
    }

    err = ProcessFile( file, cb )
    if err != nil {
        return err
    }

    if idGen.Count == 0 {
        return fmt.Errorf( "no ids found in reader" )
    }

    idGen.Initialized = true
    return nil
}

func ( idGen *IdGen )InitIdBlock( blockCount int )( err error ) {
    if idGen.Initialized {
        return nil
    }

    if blockCount <= 0 {
        return fmt.Errorf( "invalid id count %v", blockCount )
    }

    idGen.Count = blockCount
    idGen.Block = make( [ ]string, idGen.Count )

    for i := 0; i < idGen.Count; i++ {
        idGen.Block[ i ] = uuid.NewString( )
    }

    idGen.Initialized = true
    return nil
}

// IdAt maps the idx-th worker of bench instance instanceIdx onto the block.
func ( idGen *IdGen )IdAt( idx, instanceIdx, perInstance int )( id string, realIdx int, err error ) {
    realIdx = idx + ( instanceIdx * perInstance )
    if idx < 0 || realIdx < 0 || realIdx >= len( idGen.Block ) {
        return "", 0, fmt.Errorf( "did not find id for index %v and instance index %v", idx, instanceIdx )
    }

    return idGen.Block[ realIdx ], realIdx, nil
}
