/*
Copyright 2024 The Nuclio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rpcconfig

import (
	"io"
	"os"

	"github.com/nuclio/errors"
	"sigs.k8s.io/yaml"
)

var ErrInvalidConfiguration = errors.New("Invalid configuration")

type Reader struct{}

func NewReader() (*Reader, error) {
	return &Reader{}, nil
}

// Read parses a YAML (or JSON) configuration and fills in defaults for anything left out
func (r *Reader) Read(reader io.Reader, config *Config) error {
	configBytes, err := io.ReadAll(reader)
	if err != nil {
		return errors.Wrap(err, "Failed to read rpc runtime configuration")
	}

	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return errors.Wrap(err, "Failed to unmarshal rpc runtime configuration")
	}

	r.enrichDefaults(config)

	return r.Validate(config)
}

// ReadFileOrDefault reads the configuration at path. a missing file yields the default configuration
func (r *Reader) ReadFileOrDefault(configurationPath string) (*Config, error) {
	var config Config

	if configurationPath == "" {
		return r.GetDefaultConfiguration(), nil
	}

	// if there's no configuration file, return a default configuration. otherwise try to parse it
	configurationFile, err := os.Open(configurationPath)
	if err != nil {
		return r.GetDefaultConfiguration(), nil
	}

	// close after
	defer configurationFile.Close() // nolint: errcheck

	if err := r.Read(configurationFile, &config); err != nil {
		return nil, errors.Wrap(err, "Failed to read configuration file")
	}

	return &config, nil
}

func (r *Reader) GetDefaultConfiguration() *Config {
	config := &Config{}
	r.enrichDefaults(config)

	return config
}

func (r *Reader) enrichDefaults(config *Config) {
	if config.Channel.Kind == "" {
		config.Channel.Kind = DefaultChannelKind
	}

	if config.Channel.MaxSize == 0 {
		config.Channel.MaxSize = DefaultChannelMaxSize
	}

	if config.Runtime.NumChannels == 0 {
		config.Runtime.NumChannels = DefaultNumChannels
	}

	if config.Runtime.Codec == "" {
		config.Runtime.Codec = DefaultCodec
	}

	if config.Runtime.TickIntervalMilliseconds == 0 {
		config.Runtime.TickIntervalMilliseconds = DefaultTickIntervalMilliseconds
	}

	if config.Runtime.MaxPopsPerTick == 0 {
		config.Runtime.MaxPopsPerTick = DefaultMaxPopsPerTick
	}

	if config.Metrics.Enabled == nil {
		falseValue := false
		config.Metrics.Enabled = &falseValue
	}

	if config.Metrics.ListenAddress == "" {
		config.Metrics.ListenAddress = DefaultMetricsListenAddress
	}

	if config.Metrics.InstanceName == "" {
		config.Metrics.InstanceName = os.Getenv("RPCRUNTIME_INSTANCE")
	}

	if config.Logger.Level == "" {
		config.Logger.Level = DefaultLoggerLevel
	}

	if config.Logger.Encoding == "" {
		config.Logger.Encoding = DefaultLoggerEncoding
	}
}

// Validate rejects values no runtime can work with
func (r *Reader) Validate(config *Config) error {
	if config.Channel.MaxSize <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "Channel max size must be positive, got %d", config.Channel.MaxSize)
	}

	if config.Runtime.NumChannels < 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "Number of channels can't be negative, got %d",
			config.Runtime.NumChannels)
	}

	if config.Runtime.MaxFrameSize < 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "Max frame size can't be negative, got %d",
			config.Runtime.MaxFrameSize)
	}

	return nil
}
