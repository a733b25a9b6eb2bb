package main

import (
    "testing"
    "time"
)

func TestSetupEnvWins( t *testing.T ) {
    t.Setenv( "AZEVHUB_TEST_STR", "from-env" )
    t.Setenv( "AZEVHUB_TEST_INT", "42" )
    t.Setenv( "AZEVHUB_TEST_BOOL", "true" )
    t.Setenv( "AZEVHUB_TEST_DUR", "3s" )

    var (
        str   string
        num   int
        flag  bool
        dur   time.Duration
    )

    argStr, argNum, argFlag, argDur := "from-flag", 7, false, time.Second

    setupString( &str, &argStr, "AZEVHUB_TEST_STR" )
    setupInt( &num, &argNum, "AZEVHUB_TEST_INT" )
    setupBool( &flag, &argFlag, "AZEVHUB_TEST_BOOL" )
    setupDuration( &dur, &argDur, "AZEVHUB_TEST_DUR" )

    if str != "from-env" || num != 42 || !flag || dur != 3 * time.Second {
        t.Fatalf( "setup - environment did not win: %v %v %v %v", str, num, flag, dur )
    }
}

func TestSetupFallsBackToFlag( t *testing.T ) {
    t.Setenv( "AZEVHUB_TEST_INT", "not a number" )

    var (
        str   = "default"
        num   int
    )

    argStr, argNum := "", 7

    setupString( &str, &argStr, "AZEVHUB_TEST_UNSET" )
    setupInt( &num, &argNum, "AZEVHUB_TEST_INT" )

    if str != "default" || num != 7 {
        t.Fatalf( "setup - expected flag values, saw %v %v", str, num )
    }

    setupInt( &num, nil, "AZEVHUB_TEST_UNSET" )
    if num != 7 {
        t.Fatalf( "setupInt - nil flag changed value to %v", num )
    }
}
