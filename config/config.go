package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host     string `mapstructure:"host"`
			Password string `mapstructure:"password"`
			Port     string `mapstructure:"port"`
			Username string `mapstructure:"username"`
			DB       string `mapstructure:"db"`
			SSLMode  string `mapstructure:"sslmode"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Auth struct {
		// TokenTTL is the lifetime of a freshly issued bearer token.
		TokenTTL time.Duration `mapstructure:"tokenTTL"`
		// TokenReuseMargin is the safety buffer below which an existing
		// token is rotated instead of reused. Do not shrink it: it is what
		// keeps a just-issued token from expiring in the client's hands.
		TokenReuseMargin time.Duration `mapstructure:"tokenReuseMargin"`
		BcryptCost       int           `mapstructure:"bcryptCost"`
	} `mapstructure:"auth"`
	Kafka struct {
		// Address enables the event publisher when non-empty.
		Address string `mapstructure:"address"`
		Topic   string `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Try file-based config first, fall back to the embedded copy so the
	// binary runs standalone.
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	return config, nil
}
