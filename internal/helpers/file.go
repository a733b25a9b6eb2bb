package helpers

import (
    "bufio"
    "fmt"
    "io"
    "os"
    "strings"
)

type iocb func( string )( error )

func ReadFile( file string, cb iocb )( err error ) {
    fh, err := os.Open( file )
    if err != nil {
        return err
    }

    defer fh.Close( )

    return ProcessFile( fh, cb )
}

// ProcessFile calls cb for every line of fh, skipping '#' comment lines.
func ProcessFile( fh io.Reader, cb iocb )( err error ) {
    if nil == fh {
        return fmt.Errorf( "invalid io reader" )
    }

    if nil == cb {
        return nil
    }

    scanner := bufio.NewScanner( fh )
    for scanner.Scan( ) {
        line := scanner.Text( )
        if strings.HasPrefix( strings.TrimSpace( line ), "#" ) {
            continue
        }

        if err = cb( line ); err != nil {
            return err
        }
    }

    return scanner.Err( )
}
