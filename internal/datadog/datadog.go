package datadog

import (
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ozone-monitor/internal/env"
)

var dogstatsd *statsd.Client

func InitMetrics() {
	if !env.Cfg.EnableDatadog {
		log.Info().Msg("Datadog metrics disabled")
		return
	}

	var err error
	dogstatsd, err = statsd.New(env.Cfg.DDAgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	dogstatsd.Namespace = env.Cfg.DDNamespace
	dogstatsd.Tags = env.Cfg.DDTags

	log.Info().
		Str("addr", env.Cfg.DDAgentAddr).
		Str("namespace", env.Cfg.DDNamespace).
		Strs("tags", env.Cfg.DDTags).
		Msg("Datadog metrics initialized")
}

// Close flushes buffered metrics.
func Close() {
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close DogStatsD client")
	}
	dogstatsd = nil
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func Incr(name string, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.Incr(name, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit counter metric")
		}
	}
}

func Timing(name string, value time.Duration, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.Timing(name, value, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit timing metric")
		}
	}
}
