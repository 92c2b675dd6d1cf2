package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global logger. Output goes to path when one is given and to
// a console writer on stderr otherwise.
func Init(level zerolog.Level, path string) {
	var logger zerolog.Logger

	if path != "" {
		logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			panic(fmt.Errorf("failed to open log file: %w", err))
		}
		multi := zerolog.MultiLevelWriter(logFile)
		logger = zerolog.New(multi).Level(level).With().Timestamp().Logger()
	} else {
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(console).Level(level).With().Timestamp().Logger()
	}
	log.Logger = logger

	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
}
