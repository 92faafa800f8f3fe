package internal

import "time"

// Config is the process-level environment configuration.
type Config struct {
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	DisplayName string `env:"LOBBY_DISPLAY_NAME,required=true"`
	// Identity is the platform account id; generated when empty so a
	// bare developer run still gets a stable-per-process identity.
	Identity string `env:"LOBBY_IDENTITY"`

	CommandBufferSize int           `env:"COMMAND_BUFFER_SIZE,default=16"`
	EventBufferSize   int           `env:"EVENT_BUFFER_SIZE,default=64"`
	HistoryLimit      int           `env:"HISTORY_LIMIT,default=100"`
	ResyncInterval    time.Duration `env:"RESYNC_INTERVAL,default=5s"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=1s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	StatsInterval     time.Duration `env:"STATS_INTERVAL,default=30s"`

	BeaconPort     int           `env:"BEACON_PORT,default=47774"`
	BeaconInterval time.Duration `env:"BEACON_INTERVAL,default=1s"`
	LookupTimeout  time.Duration `env:"LOOKUP_TIMEOUT,default=5s"`

	// CensorReplacement must be a single character.
	CensorReplacement string `env:"CENSOR_REPLACEMENT,default=*"`
	EnableModeration  bool   `env:"ENABLE_MODERATION,default=true"`
}
