package helpers

import (
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "testing"
)

func errCb( line string )( err error ) {
    return fmt.Errorf( "this is an error" )
}

func regCb( line string )( err error ) {
    return nil
}

func TestProcessFile( t *testing.T ) {
    strReader := strings.NewReader( "Line1\nLine2\nLine3" )
    err := ProcessFile( strReader, regCb )
    if err != nil {
        t.Fatalf( "ProcessFile - failed regular test" )
    }

    strReader = strings.NewReader( "Line1\nLine2\nLine3" )
    err = ProcessFile( strReader, errCb )
    if err == nil {
        t.Fatalf( "ProcessFile - failed to handle error from callback" )
    }

    strReader = strings.NewReader( "Line1\nLine2\nLine3" )
    err = ProcessFile( strReader, nil )
    if err != nil {
        t.Fatalf( "ProcessFile - returned error in case of nil callback" )
    }

    err = ProcessFile( nil, regCb )
    if err == nil {
        t.Fatalf( "ProcessFile - failed to handle invalid io reader" )
    }
}

func TestProcessFileSkipsComments( t *testing.T ) {
    var lines [ ]string

    cb := func( line string )( error ) {
        lines = append( lines, line )
        return nil
    }

    err := ProcessFile( strings.NewReader( "# ids\nid1\n  # indented\nid2" ), cb )
    if err != nil || len( lines ) != 2 || lines[ 0 ] != "id1" || lines[ 1 ] != "id2" {
        t.Fatalf( "ProcessFile - comment lines not skipped, saw %v error %v", lines, err )
    }
}

func TestReadFile( t *testing.T ) {
    file := filepath.Join( t.TempDir( ), "ids" )
    if err := os.WriteFile( file, [ ]byte( "id1\nid2\n" ), 0600 ); err != nil {
        t.Fatalf( "WriteFile - failed, error %v", err )
    }

    count := 0
    err   := ReadFile( file, func( line string )( error ) {
        count++
        return nil
    } )
    if err != nil || count != 2 {
        t.Fatalf( "ReadFile - expected 2 lines saw %v, error %v", count, err )
    }

    if err = ReadFile( file + ".missing", regCb ); err == nil {
        t.Fatalf( "ReadFile - opened missing file" )
    }
}
