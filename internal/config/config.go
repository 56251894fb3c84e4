// Copyright 2025 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the settings of the nodpi-proxy command and loads them from a
// YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	MinBufferSize = 64
	MaxBufferSize = 65535
)

// Config is the process configuration. The zero value is not valid; start from
// [Default].
type Config struct {
	// BindHost is the address to listen on. Empty means all interfaces.
	BindHost string `yaml:"bind_host"`
	BindPort int    `yaml:"bind_port"`
	// Blacklist is the path of the file with the blocked patterns, one per line.
	Blacklist  string `yaml:"blacklist"`
	BufferSize int    `yaml:"buffer_size"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatsInterval    time.Duration `yaml:"stats_interval"`
	MaxConnections   int           `yaml:"max_connections"`

	Debug     bool `yaml:"debug"`
	ShowLogs  bool `yaml:"show_logs"`
	ShowStats bool `yaml:"show_stats"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		BindPort:         8881,
		Blacklist:        "blacklist.txt",
		BufferSize:       4096,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Load reads the YAML file at path on top of [Default]. Fields missing from the file
// keep their default value, and unknown fields are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.DisallowUnknownField()); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %v: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.BindPort < 0 || c.BindPort > 65535 {
		errs = append(errs, fmt.Errorf("bind_port %v is out of range [0, 65535]", c.BindPort))
	}
	if c.Blacklist == "" {
		errs = append(errs, errors.New("blacklist path is empty"))
	}
	if c.BufferSize < MinBufferSize || c.BufferSize > MaxBufferSize {
		errs = append(errs, fmt.Errorf("buffer_size %v is out of range [%v, %v]", c.BufferSize, MinBufferSize, MaxBufferSize))
	}
	if c.HandshakeTimeout < 0 {
		errs = append(errs, fmt.Errorf("handshake_timeout %v is negative", c.HandshakeTimeout))
	}
	if c.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("dial_timeout %v is negative", c.DialTimeout))
	}
	if c.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("stats_interval %v is negative", c.StatsInterval))
	}
	if c.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("max_connections %v is negative", c.MaxConnections))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.BindPort))
}
