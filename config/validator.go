package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads driftlens.yaml (or the file at path, if non-empty) and overlays
// DRIFTLENS_* environment variables, validating the result before returning.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("driftlens")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/driftlens")
	}

	v.SetEnvPrefix("DRIFTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
