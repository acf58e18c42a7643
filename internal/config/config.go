// Package config loads client configuration from the environment.
package config

import (
	"github.com/joeshaw/envdecode"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config holds everything the client needs to run. Defaults are provided via
// struct tags.
type Config struct {
	// AppName is displayed in the startup banner. ENV: SKL_APP_NAME
	AppName string `env:"SKL_APP_NAME,default=SKL League Client"`
	// APIBaseURL is the SKL backend base URL. ENV: SKL_API_BASE_URL
	APIBaseURL string `env:"SKL_API_BASE_URL,default=http://localhost:5000"`
	// WalletBridgeURL is the websocket endpoint of the local wallet-provider
	// bridge. ENV: SKL_WALLET_BRIDGE_URL
	WalletBridgeURL string `env:"SKL_WALLET_BRIDGE_URL,default=ws://localhost:8585/wallet"`
	// SessionFile is where the session token is persisted between runs.
	// ENV: SKL_SESSION_FILE
	SessionFile string `env:"SKL_SESSION_FILE,default=.skl/session.json"`
	// LogLevel is a zerolog level name. ENV: SKL_LOG_LEVEL
	LogLevel string `env:"SKL_LOG_LEVEL,default=info"`
}

// Load decodes the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "[config.Load] decode environment")
	}
	return cfg, nil
}

// ZerologLevel parses LogLevel, falling back to info on garbage values.
func (c Config) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
