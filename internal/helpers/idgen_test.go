package helpers

import (
    "io"
    "strings"
    "testing"

    "github.com/google/uuid"
)

const (
    idGenMagicNum   =   32
)

func testNewIdGenerator( t *testing.T )( idGen *IdGen ) {
    idGen = NewIdGenerator( )
    if nil == idGen {
        t.Fatalf( "NewIdGenerator - failed to initialize" )
    }

    return idGen
}

func getIdReader( )( io.Reader ) {
    var idStr string

    for i := 0; i < idGenMagicNum; i++ {
        idStr += uuid.NewString( ) + "\n"
    }

    return strings.NewReader( idStr + "\n   \n" )
}

func TestInitIdBlockFromReader( t *testing.T ) {
    idGen := testNewIdGenerator( t )
    err   := idGen.InitIdBlockFromReader( getIdReader( ) )
    if err != nil || !idGen.Initialized {
        t.Fatalf( "InitIdBlockFromReader - failed to initialize, error %v", err )
    }

    if idGen.Count != idGenMagicNum {
        t.Fatalf( "InitIdBlockFromReader - blank lines counted, expected %v saw %v", idGenMagicNum, idGen.Count )
    }

    err = idGen.InitIdBlock( 0 )
    if err != nil || !idGen.Initialized {
        t.Fatalf( "InitIdBlock - failed to detect earlier initialization from reader" )
    }

    idGen = testNewIdGenerator( t )
    err   = idGen.InitIdBlockFromReader( nil )
    if err == nil {
        t.Fatalf( "InitIdBlockFromReader - successfully initialized from nil reader" )
    }

    idGen = testNewIdGenerator( t )
    err   = idGen.InitIdBlockFromReader( strings.NewReader( "\n\n" ) )
    if err == nil || idGen.Initialized {
        t.Fatalf( "InitIdBlockFromReader - successfully initialized from empty reader" )
    }
}

func TestInitIdBlock( t *testing.T ) {
    idGen := testNewIdGenerator( t )
    err   := idGen.InitIdBlock( idGenMagicNum )
    if err != nil || !idGen.Initialized {
        t.Fatalf( "InitIdBlock - failed to initialize with count %v, error %v", idGenMagicNum, err )
    }

    if idGenMagicNum != idGen.Count {
        t.Fatalf( "InitIdBlock - count mismatch expected %v saw %v", idGenMagicNum, idGen.Count )
    }

    for i := 0; i < idGenMagicNum; i++ {
        if len( idGen.Block[ i ] ) == 0 {
            t.Fatalf( "InitIdBlock - empty id string found" )
        }
    }

    if err = testNewIdGenerator( t ).InitIdBlock( -1 ); err == nil {
        t.Fatalf( "InitIdBlock - successfully initialized with negative count" )
    }
}

func TestIdAt( t *testing.T ) {
    idGen := testNewIdGenerator( t )
    if err := idGen.InitIdBlock( 8 ); err != nil {
        t.Fatalf( "InitIdBlock - failed, error %v", err )
    }

    id, realIdx, err := idGen.IdAt( 1, 2, 3 )
    if err != nil || realIdx != 7 || id != idGen.Block[ 7 ] {
        t.Fatalf( "IdAt - expected index 7, saw %v, error %v", realIdx, err )
    }

    if _, _, err = idGen.IdAt( 2, 2, 3 ); err == nil {
        t.Fatalf( "IdAt - returned id beyond block" )
    }

    if _, _, err = idGen.IdAt( -1, 0, 3 ); err == nil {
        t.Fatalf( "IdAt - returned id for negative index" )
    }
}
