package shutdown

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

type cleanup struct {
	name string
	fn   func() error
}

var (
	mu       sync.Mutex
	cleanups []cleanup
	exit     = os.Exit
)

// Register adds fn to the cleanups run on shutdown. Cleanups run in reverse
// registration order.
func Register(name string, fn func() error) {
	mu.Lock()
	defer mu.Unlock()
	cleanups = append(cleanups, cleanup{name: name, fn: fn})
}

// RunCleanups runs and forgets every registered cleanup.
func RunCleanups() {
	mu.Lock()
	pending := cleanups
	cleanups = nil
	mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		c := pending[i]
		if err := c.fn(); err != nil {
			log.Warn().Err(err).Str("cleanup", c.name).Msg("Cleanup failed")
			continue
		}
		log.Debug().Str("cleanup", c.name).Msg("Cleanup done")
	}
}

func Shutdown() {
	RunCleanups()
	log.Info().Msg("Ozone monitor stopped")
	exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	RunCleanups()
	exit(1)
}
