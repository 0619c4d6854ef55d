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

package builtin

import (
	"github.com/nuclio/rpcruntime/pkg/callregistry"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// Calls is the call set served by rpcruntime processes
type Calls struct {
	Double *callregistry.Call[int64, int64]
	Sum    *callregistry.Call[[]int64, int64]
	Echo   *callregistry.Call[string, string]
	Log    *callregistry.Call[string, struct{}]
	Fail   *callregistry.Call[string, string]
}

// NewCalls creates the builtin calls. Log writes through parentLogger
func NewCalls(parentLogger logger.Logger) *Calls {
	callLogger := parentLogger.GetChild("calls")

	return &Calls{
		Double: callregistry.NewCall("math.double", func(self uint64, value int64) (int64, error) {
			return value * 2, nil
		}),
		Sum: callregistry.NewCall("math.sum", func(self uint64, values []int64) (int64, error) {
			var sum int64
			for _, value := range values {
				sum += value
			}

			return sum, nil
		}),
		Echo: callregistry.NewCall("echo", func(self uint64, message string) (string, error) {
			return message, nil
		}),
		Log: callregistry.NewVoidCall("log", func(self uint64, message string) error {
			callLogger.InfoWith("Peer says", "self", self, "message", message)
			return nil
		}),
		Fail: callregistry.NewCall("fail", func(self uint64, reason string) (string, error) {
			if reason == "" {
				reason = "Failed on request"
			}

			return "", errors.New(reason)
		}),
	}
}

// GetAll returns every builtin call
func (c *Calls) GetAll() []callregistry.CallMeta {
	return []callregistry.CallMeta{c.Double, c.Sum, c.Echo, c.Log, c.Fail}
}

// Register creates the builtin calls and registers them
func Register(registry *callregistry.Registry, parentLogger logger.Logger) (*Calls, error) {
	calls := NewCalls(parentLogger)

	for _, callMeta := range calls.GetAll() {
		if err := registry.Register(callMeta); err != nil {
			return nil, errors.Wrapf(err, "Failed to register %s", callMeta.Name())
		}
	}

	return calls, nil
}
