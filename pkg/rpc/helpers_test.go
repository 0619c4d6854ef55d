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

package rpc

import (
	"sync"
	"sync/atomic"

	"github.com/nuclio/rpcruntime/pkg/callregistry"
	"github.com/nuclio/rpcruntime/pkg/channel"
	"github.com/nuclio/rpcruntime/pkg/codec"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// testCalls is the call set both ends of a test agree on
type testCalls struct {
	registry     *callregistry.Registry
	double       *callregistry.Call[int64, int64]
	echo         *callregistry.Call[string, string]
	fail         *callregistry.Call[string, int64]
	explode      *callregistry.Call[int64, int64]
	record       *callregistry.Call[string, struct{}]
	recordedLock sync.Mutex
	recorded     []string
}

func newTestCalls(loggerInstance logger.Logger) *testCalls {
	calls := &testCalls{
		registry: callregistry.NewRegistry(loggerInstance),
	}

	calls.double = callregistry.NewCall("test.double", func(self uint64, value int64) (int64, error) {
		return value * 2, nil
	})

	calls.echo = callregistry.NewCall("test.echo", func(self uint64, value string) (string, error) {
		return value, nil
	})

	calls.fail = callregistry.NewCall("test.fail", func(self uint64, reason string) (int64, error) {
		return 0, errors.New(reason)
	})

	calls.explode = callregistry.NewCall("test.explode", func(self uint64, value int64) (int64, error) {
		panic("exploded")
	})

	calls.record = callregistry.NewVoidCall("test.record", func(self uint64, value string) error {
		calls.recordedLock.Lock()
		defer calls.recordedLock.Unlock()

		calls.recorded = append(calls.recorded, value)
		return nil
	})

	calls.registry.MustRegister(calls.double, calls.echo, calls.fail, calls.explode, calls.record)

	return calls
}

func (tc *testCalls) getRecorded() []string {
	tc.recordedLock.Lock()
	defer tc.recordedLock.Unlock()

	return append([]string(nil), tc.recorded...)
}

type batchCall struct {
	callMeta callregistry.CallMeta
	self     uint64
	args     interface{}
}

// encodeBatch encodes a batch the way a command list does, without consulting a registry
func encodeBatch(codecInstance codec.Codec, handle uint64, calls ...batchCall) []byte {
	encoder := codecInstance.NewEncoder()
	_ = encoder.Encode(handle)

	for _, call := range calls {
		_ = encoder.Encode(call.callMeta.ID().Bytes())
		_ = encoder.Encode(call.self)
		_ = call.callMeta.WriteArgs(encoder, call.args)
	}

	return encoder.Bytes()
}

func pendingReturnsOf(calls ...callregistry.CallMeta) []*PendingReturn {
	var pendingReturns []*PendingReturn

	for _, call := range calls {
		pendingReturns = append(pendingReturns, &PendingReturn{
			CallMeta: call,
			Future:   newFuture(call.Name()),
		})
	}

	return pendingReturns
}

// countingChannel counts the sends its underlying channel accepted
type countingChannel struct {
	channel.Channel
	numSends uint64
}

func (cc *countingChannel) Send(payload []byte) error {
	if err := cc.Channel.Send(payload); err != nil {
		return err
	}

	atomic.AddUint64(&cc.numSends, 1)
	return nil
}

func (cc *countingChannel) getNumSends() uint64 {
	return atomic.LoadUint64(&cc.numSends)
}
