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
	"context"
	"sync"

	"github.com/nuclio/rpcruntime/pkg/callregistry"

	"github.com/nuclio/errors"
)

// Future is the eventual return value of a committed call
type Future struct {
	done    chan struct{}
	once    sync.Once
	value   interface{}
	err     error
	callTag string
}

func newFuture(callTag string) *Future {
	return &Future{
		done:    make(chan struct{}),
		callTag: callTag,
	}
}

// Done is closed once the future is resolved
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is resolved or ctx is done
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "Gave up waiting for %s", f.callTag)
	}
}

// Result returns the resolved value without blocking. ErrNotResolved until the result arrives
func (f *Future) Result() (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		return nil, ErrNotResolved
	}
}

// resolve stores the outcome. only the first resolution counts
func (f *Future) resolve(value interface{}, err error) bool {
	resolved := false

	f.once.Do(func() {
		f.value = value
		f.err = err
		resolved = true
		close(f.done)
	})

	return resolved
}

// TypedFuture is a Future whose value is known to be an R
type TypedFuture[R any] struct {
	*Future
}

// Wait blocks until the future is resolved or ctx is done
func (tf *TypedFuture[R]) Wait(ctx context.Context) (R, error) {
	return castValue[R](tf.Future.Wait(ctx))
}

// Result returns the resolved value without blocking
func (tf *TypedFuture[R]) Result() (R, error) {
	return castValue[R](tf.Future.Result())
}

func castValue[R any](value interface{}, err error) (R, error) {
	var zero R
	if err != nil {
		return zero, err
	}

	typedValue, ok := value.(R)
	if !ok {
		return zero, errors.Wrapf(callregistry.ErrReturnValueType, "Expected %T, got %T", zero, value)
	}

	return typedValue, nil
}

// PendingReturn ties a call that produces a value to the future awaiting it
type PendingReturn struct {
	CallMeta callregistry.CallMeta
	Future   *Future
}

func failPendingReturns(pendingReturns []*PendingReturn, err error) {
	for _, pendingReturn := range pendingReturns {
		pendingReturn.Future.resolve(nil, err)
	}
}
