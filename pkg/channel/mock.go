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

package channel

import (
	"github.com/stretchr/testify/mock"
)

// MockChannel is a testify mock of Channel
type MockChannel struct {
	mock.Mock
}

func (mc *MockChannel) MaxSize() int {
	args := mc.Called()
	return args.Int(0)
}

func (mc *MockChannel) Send(payload []byte) error {
	args := mc.Called(append([]byte(nil), payload...))
	return args.Error(0)
}

func (mc *MockChannel) TryReceive() ([]byte, error) {
	args := mc.Called()

	var payload []byte
	if args.Get(0) != nil {
		payload = args.Get(0).([]byte)
	}

	return payload, args.Error(1)
}

func (mc *MockChannel) Close() error {
	args := mc.Called()
	return args.Error(0)
}
