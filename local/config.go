/*
 * Copyright 2024 The Ember Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package local

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Below are the values of the default configuration.
const (
	DefaultGCMode   = "eager"
	DefaultLogLevel = "info"

	DefaultLruMinBytesThreshold   = 100 * 1024 * 1024
	DefaultLruPercentileToCollect = 10
	DefaultLruMaxSequenceNumbers  = 1000
)

// GCConfig tunes cache garbage collection.
type GCConfig struct {
	// Mode selects the collection strategy, "eager" or "lru".
	Mode string `yaml:"Mode" validate:"omitempty,oneof=eager lru"`

	// LruMinBytesThreshold is the cache size below which LRU collection is
	// skipped.
	LruMinBytesThreshold int64 `yaml:"LruMinBytesThreshold" validate:"omitempty,min=0"`

	// LruPercentileToCollect is the share of sequence numbers each LRU run
	// may collect, in percent.
	LruPercentileToCollect int `yaml:"LruPercentileToCollect" validate:"omitempty,min=1,max=100"`

	// LruMaxSequenceNumbers caps a single LRU run.
	LruMaxSequenceNumbers int `yaml:"LruMaxSequenceNumbers" validate:"omitempty,min=1"`
}

// Config is the configuration of the local store.
type Config struct {
	// LogLevel is the minimum log level to emit.
	LogLevel string `yaml:"LogLevel" validate:"omitempty,oneof=debug info warn error panic fatal"`

	GC *GCConfig `yaml:"GC"`
}

// NewConfig returns a config with default values.
func NewConfig() *Config {
	return newConfig()
}

// NewConfigFromFile returns a config loaded from the given yaml file.
func NewConfigFromFile(path string) (*Config, error) {
	conf := &Config{}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err = yaml.Unmarshal(bytes, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config file %q: %w", path, err)
	}

	conf.ensureDefaultValue()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate returns an error if the config has invalid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config is invalid: %w", err)
	}
	return nil
}

// LruParams returns the LRU tuning carried by this config.
func (c *Config) LruParams() LruParams {
	return LruParams{
		MinBytesThreshold:               c.GC.LruMinBytesThreshold,
		PercentileToCollect:             c.GC.LruPercentileToCollect,
		MaximumSequenceNumbersToCollect: c.GC.LruMaxSequenceNumbers,
	}
}

// ensureDefaultValue sets the value of the option to which the default value
// should be applied when the user does not input it.
func (c *Config) ensureDefaultValue() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.GC == nil {
		c.GC = &GCConfig{}
	}
	if c.GC.Mode == "" {
		c.GC.Mode = DefaultGCMode
	}
	if c.GC.LruMinBytesThreshold == 0 {
		c.GC.LruMinBytesThreshold = DefaultLruMinBytesThreshold
	}
	if c.GC.LruPercentileToCollect == 0 {
		c.GC.LruPercentileToCollect = DefaultLruPercentileToCollect
	}
	if c.GC.LruMaxSequenceNumbers == 0 {
		c.GC.LruMaxSequenceNumbers = DefaultLruMaxSequenceNumbers
	}
}

func newConfig() *Config {
	conf := &Config{}
	conf.ensureDefaultValue()
	return conf
}
