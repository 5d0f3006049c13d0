package am

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. AVSCHED_SETTINGS_DB_PATH
const EnvPrefix = "AVSCHED"

// SetDefaults configures default values for all scalar configuration options
func SetDefaults(v *viper.Viper) {
	// Settings defaults
	v.SetDefault("settings.db_path", DefaultDBPath)
	v.SetDefault("settings.pid_file", DefaultPIDFile)
	v.SetDefault("settings.log_file", DefaultLogFile)
	v.SetDefault("settings.tick_interval_ms", DefaultTickIntervalMS)
	v.SetDefault("settings.shutdown_grace_seconds", DefaultShutdownGraceSeconds)
	v.SetDefault("settings.requires_version", "")

	// Status server defaults
	v.SetDefault("web_server.host", DefaultWebHost)
	v.SetDefault("web_server.port", DefaultWebPort)
	v.SetDefault("web_server.rate_limit", DefaultRateLimit)
	v.SetDefault("web_server.rate_burst", DefaultRateBurst)
}

// BindEnv wires AVSCHED_* environment variables onto every key with a default.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Defaults returns a config populated only with defaults
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	// Unmarshal of plain defaults cannot fail
	_ = v.Unmarshal(&cfg)
	return &cfg
}
