package eventdata

import (
    "bytes"
    "encoding/json"
    "fmt"
)

func ( JSONTransformer )Encode( body interface{ } )( [ ]byte, error ) {
    if raw, ok := body.( [ ]byte ); ok {
        return raw, nil
    }

    return json.Marshal( body )
}

func ( JSONTransformer )Decode( data [ ]byte )( interface{ } ) {
    if !json.Valid( data ) {
        return data
    }

    decoder := json.NewDecoder( bytes.NewReader( data ) )
    decoder.UseNumber( )

    var body interface{ }
    if err := decoder.Decode( &body ); err != nil {
        return data
    }

    return body
}

func ( RawTransformer )Encode( body interface{ } )( [ ]byte, error ) {
    switch v := body.( type ) {
        case [ ]byte:
            return v, nil

        case string:
            return [ ]byte( v ), nil
    }

    return nil, fmt.Errorf( "raw transformer cannot encode %T", body )
}

func ( RawTransformer )Decode( data [ ]byte )( interface{ } ) {
    return data
}
