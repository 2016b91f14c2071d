package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// Option keys accepted by FromOptions and FromViper. They match the data
// source settings object of the ORM.
const (
	KeyName              = "name"
	KeyBackend           = "backend"
	KeyHost              = "host"
	KeyPort              = "port"
	KeyUseSSL            = "useSSL"
	KeyDatabase          = "database"
	KeyUser              = "user"
	KeyPassword          = "password"
	KeyDebug             = "debug"
	KeyConnectPoolSize   = "connectPoolSize"
	KeyConnectTimeout    = "connectTimeout"
	KeyHighWaterRatio    = "poolHighWaterRatio"
	KeyMinAvailable      = "poolMinAvailable"
	KeyDiscoveryCache    = "discoveryCache"
	KeyDiscoveryCacheTTL = "discoveryCacheTTL"
	KeyLogLevel          = "logLevel"
	KeyEnableMetrics     = "enableMetrics"
	KeyEnableTracing     = "enableTracing"
)

// FromOptions builds a configuration from a settings map. Durations given as
// numbers are milliseconds; strings such as "5s" are parsed as Go durations.
func FromOptions(name string, settings map[string]interface{}) (*ConnectorConfig, error) {
	v := viper.New()
	if err := v.MergeConfigMap(settings); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid settings")
	}
	return FromViper(name, v)
}

// FromViper builds a configuration from defaults overlaid with every key set
// in v
func FromViper(name string, v *viper.Viper) (*ConnectorConfig, error) {
	cfg := NewConnectorConfig(name)
	if err := Apply(cfg, v); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply overlays the keys set in v onto cfg. Unset keys leave cfg untouched,
// so a file loaded with Load can be refined by flags and environment.
func Apply(cfg *ConnectorConfig, v *viper.Viper) error {
	var err error

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if err == nil && v.IsSet(key) {
			var b bool
			if b, err = cast.ToBoolE(v.Get(key)); err != nil {
				err = errors.Wrap(err, errors.ErrorTypeConfig, "invalid "+key)
				return
			}
			*dst = b
		}
	}
	setInt := func(key string, dst *int) {
		if err == nil && v.IsSet(key) {
			var n int
			if n, err = cast.ToIntE(v.Get(key)); err != nil {
				err = errors.Wrap(err, errors.ErrorTypeConfig, "invalid "+key)
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if err == nil && v.IsSet(key) {
			var d time.Duration
			if d, err = millis(v.Get(key)); err != nil {
				err = errors.Wrap(err, errors.ErrorTypeConfig, "invalid "+key)
				return
			}
			*dst = d
		}
	}

	setString(KeyName, &cfg.Name)
	setString(KeyBackend, &cfg.Backend)
	setString(KeyHost, &cfg.Connection.Host)
	setInt(KeyPort, &cfg.Connection.Port)
	setBool(KeyUseSSL, &cfg.Connection.UseSSL)
	setString(KeyDatabase, &cfg.Connection.Database)
	setString(KeyUser, &cfg.Connection.User)
	setString(KeyPassword, &cfg.Connection.Password)

	setInt(KeyConnectPoolSize, &cfg.Pool.ConnectPoolSize)
	setDuration(KeyConnectTimeout, &cfg.Pool.ConnectTimeout)
	if err == nil && v.IsSet(KeyHighWaterRatio) {
		ratio, castErr := cast.ToFloat64E(v.Get(KeyHighWaterRatio))
		if castErr != nil {
			return errors.Wrap(castErr, errors.ErrorTypeConfig, "invalid "+KeyHighWaterRatio)
		}
		cfg.Pool.HighWaterRatio = ratio
	}
	setInt(KeyMinAvailable, &cfg.Pool.MinAvailable)

	setBool(KeyDiscoveryCache, &cfg.Discovery.Cache)
	setDuration(KeyDiscoveryCacheTTL, &cfg.Discovery.CacheTTL)

	setBool(KeyDebug, &cfg.Observability.Debug)
	setString(KeyLogLevel, &cfg.Observability.LogLevel)
	setBool(KeyEnableMetrics, &cfg.Observability.EnableMetrics)
	setBool(KeyEnableTracing, &cfg.Observability.EnableTracing)

	return err
}

// millis converts a duration setting. Numbers and numeric strings are
// milliseconds.
func millis(raw interface{}) (time.Duration, error) {
	switch val := raw.(type) {
	case time.Duration:
		return val, nil
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(time.Millisecond)), nil
		}
		return time.ParseDuration(s)
	default:
		n, err := cast.ToFloat64E(raw)
		if err != nil {
			return 0, err
		}
		return time.Duration(n * float64(time.Millisecond)), nil
	}
}
