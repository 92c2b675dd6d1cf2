package env

import (
	"github.com/thatsimonsguy/ozone-monitor/internal/config"
)

var Cfg *config.Config
