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
	"time"
)

// Config is the root configuration of an rpc runtime process
type Config struct {
	Channel Channel `json:"channel,omitempty"`
	Runtime Runtime `json:"runtime,omitempty"`
	Metrics Metrics `json:"metrics,omitempty"`
	Logger  Logger  `json:"logger,omitempty"`
}

// Channel configures the byte pipe both runtimes talk over
type Channel struct {

	// memory, unix or tcp
	Kind string `json:"kind,omitempty"`

	// socket path (unix) or host:port (tcp). empty means "pick one"
	Address string `json:"address,omitempty"`

	// maximum number of bytes a single send / receive may carry
	MaxSize int `json:"maxSize,omitempty"`

	// kind specific attributes, decoded by the channel factory
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Runtime configures the rpc runtime
type Runtime struct {
	NumChannels              int    `json:"numChannels,omitempty"`
	Codec                    string `json:"codec,omitempty"`
	TickIntervalMilliseconds int    `json:"tickIntervalMilliseconds,omitempty"`
	MaxPopsPerTick           int    `json:"maxPopsPerTick,omitempty"`
	MaxFrameSize             int    `json:"maxFrameSize,omitempty"`
}

// GetTickInterval returns the tick interval as a duration
func (r *Runtime) GetTickInterval() time.Duration {
	return time.Duration(r.TickIntervalMilliseconds) * time.Millisecond
}

// Metrics configures the prometheus endpoint
type Metrics struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	ListenAddress string `json:"listenAddress,omitempty"`
	InstanceName  string `json:"instanceName,omitempty"`
}

// IsEnabled returns whether metrics should be served
func (m *Metrics) IsEnabled() bool {
	return m.Enabled != nil && *m.Enabled
}

// Logger configures the process logger
type Logger struct {
	Level    string `json:"level,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

const (
	DefaultChannelKind              = "unix"
	DefaultChannelMaxSize           = 64 * 1024
	DefaultNumChannels              = 1
	DefaultCodec                    = "msgpack"
	DefaultTickIntervalMilliseconds = 1
	DefaultMaxPopsPerTick           = 64
	DefaultMetricsListenAddress     = ":8090"
	DefaultLoggerLevel              = "info"
	DefaultLoggerEncoding           = "console"
)
