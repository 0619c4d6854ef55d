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

package callregistry

import (
	"github.com/nuclio/rpcruntime/pkg/codec"

	"github.com/nuclio/errors"
)

// Call is a CallMeta over a typed go function
type Call[A any, R any] struct {
	id        CallID
	name      string
	hasReturn bool
	function  func(self uint64, args A) (R, error)
}

// NewCall creates a call returning a value of type R
func NewCall[A any, R any](name string, function func(self uint64, args A) (R, error)) *Call[A, R] {
	return &Call[A, R]{
		id:        NewCallID(name),
		name:      name,
		hasReturn: true,
		function:  function,
	}
}

// NewVoidCall creates a call with no return value. no result entry is produced for it
func NewVoidCall[A any](name string, function func(self uint64, args A) error) *Call[A, struct{}] {
	return &Call[A, struct{}]{
		id:   NewCallID(name),
		name: name,
		function: func(self uint64, args A) (struct{}, error) {
			return struct{}{}, function(self, args)
		},
	}
}

func (c *Call[A, R]) ID() CallID {
	return c.id
}

func (c *Call[A, R]) Name() string {
	return c.name
}

func (c *Call[A, R]) NewArgs() interface{} {
	var args A
	return args
}

func (c *Call[A, R]) WriteArgs(encoder codec.Encoder, args interface{}) error {
	if args == nil {
		return encoder.Encode(false)
	}

	typedArgs, err := c.castArgs(args)
	if err != nil {
		return err
	}

	if err := encoder.Encode(true); err != nil {
		return errors.Wrap(err, "Failed to encode argument presence")
	}

	if err := encoder.Encode(typedArgs); err != nil {
		return errors.Wrapf(err, "Failed to encode arguments of %s", c.name)
	}

	return nil
}

func (c *Call[A, R]) ReadArgs(decoder codec.Decoder) (interface{}, error) {
	var present bool
	if err := decoder.Decode(&present); err != nil {
		return nil, errors.Wrap(err, "Failed to decode argument presence")
	}

	var args A
	if !present {
		return args, nil
	}

	if err := decoder.Decode(&args); err != nil {
		return nil, errors.Wrapf(err, "Failed to decode arguments of %s", c.name)
	}

	return args, nil
}

func (c *Call[A, R]) HasReturn() bool {
	return c.hasReturn
}

func (c *Call[A, R]) WriteReturn(encoder codec.Encoder, value interface{}) error {
	typedValue, ok := value.(R)
	if !ok {
		return errors.Wrapf(ErrReturnValueType, "Call %s returned %T", c.name, value)
	}

	if err := encoder.Encode(typedValue); err != nil {
		return errors.Wrapf(err, "Failed to encode return value of %s", c.name)
	}

	return nil
}

func (c *Call[A, R]) ReadReturn(decoder codec.Decoder) (interface{}, error) {
	var value R
	if err := decoder.Decode(&value); err != nil {
		return nil, errors.Wrapf(err, "Failed to decode return value of %s", c.name)
	}

	return value, nil
}

func (c *Call[A, R]) Invoke(self uint64, args interface{}) (interface{}, error) {
	typedArgs, err := c.castArgs(args)
	if err != nil {
		return nil, err
	}

	return c.function(self, typedArgs)
}

func (c *Call[A, R]) castArgs(args interface{}) (A, error) {
	switch typedArgs := args.(type) {
	case A:
		return typedArgs, nil
	case *A:
		if typedArgs != nil {
			return *typedArgs, nil
		}
	}

	var zero A
	return zero, errors.Wrapf(ErrArgumentType, "Call %s got arguments of type %T", c.name, args)
}
