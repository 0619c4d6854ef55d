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
	"github.com/nuclio/rpcruntime/pkg/channel"
	"github.com/nuclio/rpcruntime/pkg/framing"

	"github.com/nuclio/errors"
)

var (
	ErrUnknownCall           = errors.New("Unknown call")
	ErrHandleNotFound        = errors.New("Handle not found")
	ErrResultCountMismatch   = errors.New("Result count mismatch")
	ErrMalformedBatch        = errors.New("Malformed batch")
	ErrNonEmptyListDestroyed = errors.New("Command list destroyed with uncommitted calls")
	ErrDoubleCommit          = errors.New("Command list already committed")
	ErrEmptyCommit           = errors.New("Command list has no calls")
	ErrListClosed            = errors.New("Command list is closed")
	ErrListDiscarded         = errors.New("Command list discarded")
	ErrForeignList           = errors.New("Command list belongs to another runtime")
	ErrInvalidChannel        = errors.New("Invalid channel")
	ErrBatchAborted          = errors.New("Batch aborted")
	ErrCallFailed            = errors.New("Call failed")
	ErrAbandoned             = errors.New("Batch abandoned")
	ErrRuntimeStopped        = errors.New("Runtime stopped")
	ErrRuntimeStarted        = errors.New("Runtime already started")
	ErrNotResolved           = errors.New("Future not resolved")
)

// isFatal returns true for errors after which the tick loop can't continue
func isFatal(err error) bool {
	switch errors.RootCause(err) {
	case channel.ErrChannelClosed, framing.ErrMalformedFrame, framing.ErrInvalidMaxSize:
		return true
	default:
		return false
	}
}
