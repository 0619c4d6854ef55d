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

package rpc

import (
	"time"

	"github.com/nuclio/rpcruntime/pkg/codec"
	"github.com/nuclio/rpcruntime/pkg/rpcconfig"

	"github.com/nuclio/errors"
)

// MaxChannels is the number of logical channels an 8 bit frame id can address (two ids each)
const MaxChannels = 128

const (
	DefaultTickInterval   = time.Millisecond
	DefaultMaxPopsPerTick = 64
)

// Configuration holds the resolved runtime settings
type Configuration struct {

	// number of logical channels, each with its own worker
	NumChannels int

	// serializes handles, call ids, arguments and results
	Codec codec.Codec

	// how long the tick loop sleeps between ticks
	TickInterval time.Duration

	// maximum number of cursor steps per tick
	MaxPopsPerTick int

	// largest frame payload accepted on receive (0 means the wire maximum)
	MaxFrameSize int
}

// NewConfiguration resolves a runtime configuration section, filling in defaults
func NewConfiguration(runtimeConfiguration *rpcconfig.Runtime) (*Configuration, error) {
	codecInstance, err := codec.ByName(runtimeConfiguration.Codec)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to resolve codec")
	}

	configuration := &Configuration{
		NumChannels:    runtimeConfiguration.NumChannels,
		Codec:          codecInstance,
		TickInterval:   runtimeConfiguration.GetTickInterval(),
		MaxPopsPerTick: runtimeConfiguration.MaxPopsPerTick,
		MaxFrameSize:   runtimeConfiguration.MaxFrameSize,
	}

	if err := configuration.enrichAndValidate(); err != nil {
		return nil, err
	}

	return configuration, nil
}

func (c *Configuration) enrichAndValidate() error {
	if c.NumChannels == 0 {
		c.NumChannels = 1
	}

	if c.NumChannels < 0 || c.NumChannels > MaxChannels {
		return errors.Wrapf(ErrInvalidChannel,
			"Number of channels must be between 1 and %d, got %d",
			MaxChannels,
			c.NumChannels)
	}

	if c.Codec == nil {
		c.Codec = &codec.MsgPack{}
	}

	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}

	if c.MaxPopsPerTick <= 0 {
		c.MaxPopsPerTick = DefaultMaxPopsPerTick
	}

	return nil
}
