// Package config layers the process configuration: built-in defaults,
// then an optional TOML file, then environment variables. Later layers
// only touch keys they actually define.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	BrokerURL    string `toml:"broker_url" env:"PONG_BROKER_URL"`
	ClientID     string `toml:"client_id" env:"PONG_CLIENT_ID"`
	Username     string `toml:"username" env:"PONG_USERNAME"`
	Password     string `toml:"password" env:"PONG_PASSWORD"`
	QoS          int    `toml:"qos" env:"PONG_QOS"`
	KeepAliveSec int    `toml:"keepalive_sec" env:"PONG_KEEPALIVE_SEC"`

	GameID         string `toml:"game_id" env:"PONG_GAME_ID"`
	WinningScore   int    `toml:"winning_score" env:"PONG_WINNING_SCORE"`
	TickRate       int    `toml:"tick_rate" env:"PONG_TICK_RATE"`
	IdleTimeoutSec int    `toml:"idle_timeout_sec" env:"PONG_IDLE_TIMEOUT_SEC"`
	MsgRate        int    `toml:"msg_rate" env:"PONG_MSG_RATE"`
	MsgBurst       int    `toml:"msg_burst" env:"PONG_MSG_BURST"`

	LogLevel string `toml:"log_level" env:"PONG_LOG_LEVEL"`
}

// Default returns the baked-in configuration.
func Default() Config {
	return Config{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "pong",
		QoS:            1,
		KeepAliveSec:   5,
		WinningScore:   5,
		TickRate:       60,
		IdleTimeoutSec: 300,
		MsgRate:        120,
		MsgBurst:       240,
		LogLevel:       "info",
	}
}

// Load builds the configuration. path may be empty to skip the file
// layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if un := meta.Undecoded(); len(un) > 0 {
			return Config{}, fmt.Errorf("load config: unknown keys %v", un)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.BrokerURL) == "" {
		return errors.New("config: broker_url is required")
	}
	if c.QoS < 0 || c.QoS > 2 {
		return fmt.Errorf("config: qos %d out of range", c.QoS)
	}
	if c.TickRate <= 0 || c.TickRate > 240 {
		return fmt.Errorf("config: tick_rate %d out of range", c.TickRate)
	}
	if c.KeepAliveSec <= 0 {
		return fmt.Errorf("config: keepalive_sec %d out of range", c.KeepAliveSec)
	}
	if c.IdleTimeoutSec <= 0 {
		return fmt.Errorf("config: idle_timeout_sec %d out of range", c.IdleTimeoutSec)
	}
	if c.WinningScore <= 0 {
		return fmt.Errorf("config: winning_score %d out of range", c.WinningScore)
	}
	return nil
}

func (c Config) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSec) * time.Second
}

func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}
