package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/denniscarrazeiro/php-curl-module/curl"
)

// EnvPrefix prefixes every environment override, e.g. GOCURL_TIMEOUT.
const EnvPrefix = "GOCURL"

// Defaults are the settings applied when a command line flag or request
// file leaves them unset. Headers are sent before any per-request header.
// LogLevel and LogFormat stay empty unless configured, so GOCURL_DEBUG
// keeps working.
type Defaults struct {
	UserAgent       string   `mapstructure:"user_agent"`
	Timeout         int      `mapstructure:"timeout"`
	VerifyHost      bool     `mapstructure:"verify_host"`
	VerifyPeer      bool     `mapstructure:"verify_peer"`
	FollowRedirects bool     `mapstructure:"follow_redirects"`
	MaxRedirects    int      `mapstructure:"max_redirects"`
	Headers         []string `mapstructure:"headers"`
	NoColor         bool     `mapstructure:"no_color"`
	Format          string   `mapstructure:"format"`
	LogLevel        string   `mapstructure:"log_level"`
	LogFormat       string   `mapstructure:"log_format"`
}

// SetDefaults registers the built-in values on v and enables GOCURL_*
// environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("user_agent", curl.DefaultUserAgent)
	v.SetDefault("timeout", curl.DefaultTimeout)
	v.SetDefault("verify_host", false)
	v.SetDefault("verify_peer", false)
	v.SetDefault("follow_redirects", false)
	v.SetDefault("max_redirects", curl.DefaultMaxRedirects)
	v.SetDefault("headers", []string{})
	v.SetDefault("no_color", false)
	v.SetDefault("format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// ReadConfigFile loads path into v. An empty path looks for .gocurl.yaml in
// the home directory and silently skips it when absent.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", path, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	candidate := filepath.Join(home, ".gocurl.yaml")
	if _, err := os.Stat(candidate); err != nil {
		return nil
	}
	v.SetConfigFile(candidate)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", candidate, err)
	}
	return nil
}

// DefaultsFrom decodes the resolved settings out of v. Environment values
// arrive as strings and are converted to the field types; a single header
// string becomes a one-element list.
func DefaultsFrom(v *viper.Viper) (Defaults, error) {
	var d Defaults
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Defaults{}, err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return Defaults{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return d, nil
}
