package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_WAIT_TIMEOUT bounds how long a scenario waits for convergence
	WaitTimeout  time.Duration `envconfig:"E2E_WAIT_TIMEOUT" default:"3s"`
	PollInterval time.Duration `envconfig:"E2E_POLL_INTERVAL" default:"10ms"`
	// E2E_RESYNC_INTERVAL drives the host's periodic snapshot rebroadcast
	ResyncInterval time.Duration `envconfig:"E2E_RESYNC_INTERVAL" default:"200ms"`
	SinkTimeout    time.Duration `envconfig:"E2E_SINK_TIMEOUT" default:"1s"`
	HistoryLimit   int           `envconfig:"E2E_HISTORY_LIMIT" default:"50"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
