//go:build test_unit

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
	"fmt"
	"testing"

	"github.com/nuclio/rpcruntime/pkg/codec"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

type pair struct {
	Left  int64
	Right int64
}

type CallRegistryTestSuite struct {
	suite.Suite
	logger   logger.Logger
	registry *Registry
	sum      *Call[pair, int64]
	touch    *Call[string, struct{}]
	touched  []string
}

func (suite *CallRegistryTestSuite) SetupTest() {
	suite.logger, _ = nucliozap.NewNuclioZapTest("test")
	suite.registry = NewRegistry(suite.logger)
	suite.touched = nil

	suite.sum = NewCall("test.sum", func(self uint64, args pair) (int64, error) {
		return args.Left + args.Right + int64(self), nil
	})

	suite.touch = NewVoidCall("test.touch", func(self uint64, args string) error {
		suite.touched = append(suite.touched, args)
		return nil
	})

	suite.registry.MustRegister(suite.sum, suite.touch)
}

func (suite *CallRegistryTestSuite) TestCallIDIsStable() {
	suite.Require().Equal(NewCallID("test.sum"), suite.sum.ID())
	suite.Require().NotEqual(NewCallID("test.sum"), NewCallID("test.touch"))

	decoded, err := CallIDFromBytes(suite.sum.ID().Bytes())
	suite.Require().NoError(err)
	suite.Require().Equal(suite.sum.ID(), decoded)

	_, err = CallIDFromBytes([]byte{1, 2, 3})
	suite.Require().Equal(ErrInvalidCallID, errors.RootCause(err))
}

func (suite *CallRegistryTestSuite) TestRegisterDuplicate() {
	err := suite.registry.Register(NewCall("test.sum", func(self uint64, args int64) (int64, error) {
		return args, nil
	}))
	suite.Require().Equal(ErrDuplicateCall, errors.RootCause(err))

	suite.Require().Panics(func() {
		suite.registry.MustRegister(suite.touch)
	})
}

func (suite *CallRegistryTestSuite) TestLookup() {
	callMeta, found := suite.registry.Lookup(NewCallID("test.sum"))
	suite.Require().True(found)
	suite.Require().Equal("test.sum", callMeta.Name())
	suite.Require().True(callMeta.HasReturn())

	callMeta, found = suite.registry.LookupByName("test.touch")
	suite.Require().True(found)
	suite.Require().False(callMeta.HasReturn())

	_, found = suite.registry.Lookup(NewCallID("test.missing"))
	suite.Require().False(found)

	suite.Require().Equal([]string{"test.sum", "test.touch"}, suite.registry.GetNames())
}

func (suite *CallRegistryTestSuite) TestArgumentsRoundTrip() {
	for _, codecInstance := range []codec.Codec{&codec.MsgPack{}, &codec.JSON{}} {
		suite.Run(codecInstance.GetName(), func() {
			encoder := codecInstance.NewEncoder()
			suite.Require().NoError(suite.sum.WriteArgs(encoder, pair{Left: 1, Right: 2}))
			suite.Require().NoError(suite.sum.WriteArgs(encoder, &pair{Left: 3, Right: 4}))

			// absent arguments arrive default constructed
			suite.Require().NoError(suite.sum.WriteArgs(encoder, nil))

			decoder := codecInstance.NewDecoder(encoder.Bytes())
			for _, expected := range []pair{{1, 2}, {3, 4}, {}} {
				args, err := suite.sum.ReadArgs(decoder)
				suite.Require().NoError(err)
				suite.Require().Equal(expected, args)
			}

			suite.Require().False(decoder.More())
		})
	}
}

func (suite *CallRegistryTestSuite) TestInvokeAndReturn() {
	result, err := suite.sum.Invoke(10, pair{Left: 1, Right: 2})
	suite.Require().NoError(err)
	suite.Require().Equal(int64(13), result)

	codecInstance := &codec.MsgPack{}
	encoder := codecInstance.NewEncoder()
	suite.Require().NoError(suite.sum.WriteReturn(encoder, result))

	decoded, err := suite.sum.ReadReturn(codecInstance.NewDecoder(encoder.Bytes()))
	suite.Require().NoError(err)
	suite.Require().Equal(int64(13), decoded)

	err = suite.sum.WriteReturn(encoder, "not an int")
	suite.Require().Equal(ErrReturnValueType, errors.RootCause(err))

	_, err = suite.touch.Invoke(0, "hello")
	suite.Require().NoError(err)
	suite.Require().Equal([]string{"hello"}, suite.touched)
}

func (suite *CallRegistryTestSuite) TestArgumentTypeMismatch() {
	err := suite.sum.WriteArgs((&codec.MsgPack{}).NewEncoder(), "wrong")
	suite.Require().Equal(ErrArgumentType, errors.RootCause(err))

	_, err = suite.sum.Invoke(0, 42)
	suite.Require().Equal(ErrArgumentType, errors.RootCause(err))
}

func (suite *CallRegistryTestSuite) TestNativeErrorIsReturned() {
	failing := NewCall("test.fail", func(self uint64, args int64) (int64, error) {
		return 0, fmt.Errorf("value %d rejected", args)
	})

	_, err := failing.Invoke(0, int64(5))
	suite.Require().EqualError(err, "value 5 rejected")
}

func TestCallRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(CallRegistryTestSuite))
}
