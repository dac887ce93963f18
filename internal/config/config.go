// Package config loads the process-wide configuration surface: viper
// backed, an optional .env file, and environment variables matched by
// prefix and flattened to match Config's flat mapstructure tags
// (FOO_BAR -> foobar, so BUNSTORE_STORAGE_PATH lines up with the
// `mapstructure:"storagepath"` tag on Config.StoragePath).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration surface.
type Config struct {
	Host                        string `mapstructure:"host"`
	Port                        int    `mapstructure:"port"`
	MaxConcurrentConnections     int    `mapstructure:"maxconcurrentconnections"`
	MaxCacheItemCount            int    `mapstructure:"maxcacheitemcount"`
	MaxCacheSizeInBytes          int64  `mapstructure:"maxcachesizeinbytes"`
	DefaultCacheTTLMilliseconds  int    `mapstructure:"defaultcachettlmilliseconds"`
	StoragePath                  string `mapstructure:"storagepath"`
	RequireAuthentication        bool   `mapstructure:"requireauthentication"`
	MasterPassword                string `mapstructure:"masterpassword"`
	CacheTimeoutMinutes          int    `mapstructure:"cachetimeoutminutes"`

	// LogLevel/LogFormat feed internal/logger.Init, read from the
	// environment independently of the rest of the domain config.
	LogLevel  string `mapstructure:"loglevel"`
	LogFormat string `mapstructure:"logformat"`
}

// Defaults returns the configuration a bare `bunstore-server` starts with
// when no .env file or environment variables override it.
func Defaults() Config {
	return Config{
		Host:                        "0.0.0.0",
		Port:                        4321,
		MaxConcurrentConnections:     256,
		MaxCacheItemCount:            10_000,
		MaxCacheSizeInBytes:          64 << 20,
		DefaultCacheTTLMilliseconds:  5 * 60 * 1000,
		StoragePath:                  "./data",
		RequireAuthentication:        false,
		CacheTimeoutMinutes:          1,
		LogLevel:                     "INFO",
		LogFormat:                    "json",
	}
}

// Load fills target — typically a *Config — from defaults, then an
// optional .env file, then prefix-matched environment variables, mirroring
// pkg/config.Load's three-tier precedence. Each matched variable's name is
// flattened (prefix stripped, underscores dropped, lowercased) rather than
// turned into a dotted nested key, since Config's mapstructure tags are
// all flat, single-level names.
func Load(prefix string, target interface{}) error {
	v := viper.New()

	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Optional file; a missing, unreadable or malformed one is
			// ignored and loading continues from defaults and environment
			// variables.
		}
	}

	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key, value := pair[0], pair[1]
		if !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		propKey := strings.TrimPrefix(key, prefixUpper)
		propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", ""))
		v.Set(propKey, value)
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	return nil
}

// LoadServerConfig loads a Config starting from Defaults(), overridden by
// BUNSTORE_-prefixed environment variables (e.g. BUNSTORE_PORT=5000,
// BUNSTORE_STORAGE_PATH=/var/lib/bunstore). Keys in a .env file are not
// prefix-stripped or flattened: one applies only when its lowercased name
// is itself a Config tag (e.g. PORT=5000).
func LoadServerConfig() (Config, error) {
	cfg := Defaults()
	if err := Load("BUNSTORE_", &cfg); err != nil {
		return cfg, err
	}
	if cfg.Host == "" {
		return cfg, fmt.Errorf("config: host must not be empty")
	}
	return cfg, nil
}
