// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env is the environment surface of cachekit.
type Env struct {
	App          string        `env:"CACHEKIT_APP"`
	Title        string        `env:"CACHEKIT_TITLE"`
	Root         string        `env:"CACHEKIT_ROOT"`
	Log          string        `env:"CACHEKIT_LOG" envDefault:"ERROR"`
	BuildTimeout time.Duration `env:"CACHEKIT_BUILD_TIMEOUT"`
	Bucket       string        `env:"CACHEKIT_BUCKET"`
	Prefix       string        `env:"CACHEKIT_PREFIX"`
	Region       string        `env:"CACHEKIT_REGION"`
	Profile      string        `env:"CACHEKIT_PROFILE"`
	NoStats      bool          `env:"CACHEKIT_NO_STATS"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv parses the cachekit environment.
func LoadEnv() (Env, error) {
	var e Env
	err := ParseEnv(&e)
	return e, err
}
