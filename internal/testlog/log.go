package testlog

import (
	"os"
	"testing"

	"github.com/DCMX-Protocol/dcmx-mesh/internal/log"
)

// Level returns the level to default the logger based on the DCMX_TEST_LOGS presence.
func Level(t testing.TB) int {
	logLevel := log.InfoLevel
	debugEnv, isDebug := os.LookupEnv("DCMX_TEST_LOGS")
	if isDebug && debugEnv == "DEBUG" {
		t.Log("Enabling DebugLevel logs")
		logLevel = log.DebugLevel
	}

	return logLevel
}

// New returns a configured logger scoped to the running test.
func New(t testing.TB) log.Logger {
	return log.New(nil, Level(t), true).
		With("testName", t.Name())
}
