package testhelper

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// init disables logging for tests unless explicitly enabled
func init() {
	if testing.Testing() && os.Getenv("EMO_TEST_LOG") == "" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}
}

// EnableLogging turns logging back on at the given level for the rest of the
// test and restores the previous level afterwards
func EnableLogging(t *testing.T, level zerolog.Level) {
	t.Helper()
	previous := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(level)
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(previous)
	})
}
