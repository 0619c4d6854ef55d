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
	"fmt"
	"runtime/debug"

	"github.com/nuclio/rpcruntime/pkg/callregistry"
	"github.com/nuclio/rpcruntime/pkg/codec"
	"github.com/nuclio/rpcruntime/pkg/common"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// ResultStatus prefixes every entry of a result batch
type ResultStatus uint8

const (

	// the entry carries the return value
	ResultStatusOK ResultStatus = iota

	// the call returned an error. the entry carries its message
	ResultStatusCallFailed

	// the batch stopped executing. the entry carries the reason and is the last one
	ResultStatusBatchAborted
)

// BatchResult describes the execution of a single batch
type BatchResult struct {

	// handle the batch was committed with. 0 means the caller expects no results
	Handle uint64

	// encoded result batch. nil when there's nothing to send back
	Payload []byte

	CallsExecuted int
	CallsFailed   int
	NumEntries    int
	AbortReason   error
}

// Aborted returns true if the batch didn't run to completion
func (br *BatchResult) Aborted() bool {
	return br.AbortReason != nil
}

// ExecuteBatch runs the calls of a batch in order and encodes their results. a call that fails
// produces an error entry and execution continues. an undecodable or unknown call aborts the rest
// of the batch, leaving the results gathered so far followed by an abort entry
func ExecuteBatch(parentLogger logger.Logger,
	registry callregistry.CallRegistry,
	codecInstance codec.Codec,
	payload []byte) *BatchResult {

	result := &BatchResult{}
	decoder := codecInstance.NewDecoder(payload)

	if err := decoder.Decode(&result.Handle); err != nil {

		// without a handle there's no one to report to
		result.AbortReason = errors.Wrap(ErrMalformedBatch, "Failed to decode batch handle")
		parentLogger.WarnWith("Dropping batch without handle", "size", len(payload), "err", err.Error())

		return result
	}

	encoder := codecInstance.NewEncoder()
	if err := encoder.Encode(result.Handle); err != nil {
		result.AbortReason = err
		return result
	}

	for decoder.More() {
		callMeta, self, args, err := readCall(registry, decoder)
		if err != nil {
			result.AbortReason = err
			break
		}

		returnValue, err := invokeCall(parentLogger, callMeta, self, args)
		result.CallsExecuted++

		if err != nil {
			result.CallsFailed++
		}

		if !callMeta.HasReturn() {
			if err != nil {
				parentLogger.WarnWith("Void call failed",
					"call", callMeta.Name(),
					"self", self,
					"err", err.Error())
			}

			continue
		}

		if err := writeResultEntry(encoder, callMeta, returnValue, err); err != nil {
			result.AbortReason = err
			break
		}

		result.NumEntries++
	}

	if result.AbortReason != nil {
		parentLogger.WarnWith("Batch aborted",
			"handle", result.Handle,
			"callsExecuted", result.CallsExecuted,
			"reason", result.AbortReason.Error())

		if err := writeStatusEntry(encoder, ResultStatusBatchAborted, result.AbortReason.Error()); err != nil {
			parentLogger.WarnWith("Failed to encode abort entry", "err", err.Error())
		}
	}

	if result.Handle != 0 {
		result.Payload = append([]byte(nil), encoder.Bytes()...)
	}

	return result
}

// Readback resolves the pending returns of a result batch in addition order. resolve maps the
// batch handle to its chain of pending returns. returns the number of futures resolved with a
// value or a call error
func Readback(parentLogger logger.Logger,
	codecInstance codec.Codec,
	payload []byte,
	resolve func(handle uint64) ([]*PendingReturn, error)) (int, error) {
	decoder := codecInstance.NewDecoder(payload)

	var handle uint64
	if err := decoder.Decode(&handle); err != nil {
		return 0, errors.Wrap(ErrMalformedBatch, "Failed to decode result handle")
	}

	pendingReturns, err := resolve(handle)
	if err != nil {
		return 0, errors.Wrapf(err, "Can't resolve results of handle %d", handle)
	}

	for entryIndex, pendingReturn := range pendingReturns {
		if !decoder.More() {
			err := errors.Wrapf(ErrResultCountMismatch,
				"Handle %d expected %d results, got %d",
				handle,
				len(pendingReturns),
				entryIndex)

			failPendingReturns(pendingReturns[entryIndex:], err)
			return entryIndex, err
		}

		status, message, value, err := readResultEntry(decoder, pendingReturn.CallMeta)
		if err != nil {
			err = errors.Wrapf(err, "Failed to read result %d of handle %d", entryIndex, handle)

			failPendingReturns(pendingReturns[entryIndex:], err)
			return entryIndex, err
		}

		switch status {
		case ResultStatusOK:
			pendingReturn.Future.resolve(value, nil)
		case ResultStatusCallFailed:
			pendingReturn.Future.resolve(nil, errors.Wrap(ErrCallFailed, message))
		case ResultStatusBatchAborted:
			failPendingReturns(pendingReturns[entryIndex:], errors.Wrap(ErrBatchAborted, message))
			return entryIndex, nil
		}
	}

	if err := readTrailingEntry(parentLogger, decoder, handle, len(pendingReturns)); err != nil {
		return len(pendingReturns), err
	}

	return len(pendingReturns), nil
}

// readTrailingEntry checks what follows the last expected result. a batch aborted by a call after
// its last returning call ends with a single abort entry; anything else is a count mismatch
func readTrailingEntry(parentLogger logger.Logger,
	decoder codec.Decoder,
	handle uint64,
	numExpected int) error {

	if !decoder.More() {
		return nil
	}

	mismatchErr := errors.Wrapf(ErrResultCountMismatch,
		"Handle %d expected %d results, got more",
		handle,
		numExpected)

	var status uint8
	if err := decoder.Decode(&status); err != nil {
		return errors.Wrap(ErrMalformedBatch, "Failed to decode result status")
	}

	if ResultStatus(status) != ResultStatusBatchAborted {
		return mismatchErr
	}

	var message string
	if err := decoder.Decode(&message); err != nil {
		return errors.Wrap(ErrMalformedBatch, "Failed to decode result message")
	}

	if decoder.More() {
		return mismatchErr
	}

	parentLogger.DebugWith("Batch aborted after its last returning call",
		"handle", handle,
		"reason", message)

	return nil
}

func readCall(registry callregistry.CallRegistry,
	decoder codec.Decoder) (callregistry.CallMeta, uint64, interface{}, error) {
	var encodedCallID []byte
	if err := decoder.Decode(&encodedCallID); err != nil {
		return nil, 0, nil, errors.Wrap(ErrMalformedBatch, "Failed to decode call id")
	}

	callID, err := callregistry.CallIDFromBytes(encodedCallID)
	if err != nil {
		return nil, 0, nil, errors.Wrap(ErrMalformedBatch, err.Error())
	}

	var self uint64
	if err := decoder.Decode(&self); err != nil {
		return nil, 0, nil, errors.Wrap(ErrMalformedBatch, "Failed to decode call target")
	}

	callMeta, found := registry.Lookup(callID)
	if !found {
		return nil, 0, nil, errors.Wrapf(ErrUnknownCall, "Call %s is not registered", callID)
	}

	args, err := callMeta.ReadArgs(decoder)
	if err != nil {
		return nil, 0, nil, errors.Wrapf(ErrMalformedBatch, "Failed to read arguments of %s", callMeta.Name())
	}

	return callMeta, self, args, nil
}

func invokeCall(parentLogger logger.Logger,
	callMeta callregistry.CallMeta,
	self uint64,
	args interface{}) (returnValue interface{}, err error) {

	defer func() {
		if recovered := recover(); recovered != nil {
			common.LogPanic(parentLogger, fmt.Sprintf("invoke %s", callMeta.Name()), debug.Stack(), recovered)
			err = errors.Wrapf(common.ErrorFromRecoveredError(recovered), "Call %s panicked", callMeta.Name())
		}
	}()

	return callMeta.Invoke(self, args)
}

func writeResultEntry(encoder codec.Encoder,
	callMeta callregistry.CallMeta,
	returnValue interface{},
	callErr error) error {

	if callErr != nil {
		return writeStatusEntry(encoder, ResultStatusCallFailed, callErr.Error())
	}

	entryStart := encoder.Len()

	if err := encoder.Encode(uint8(ResultStatusOK)); err != nil {
		return errors.Wrap(err, "Failed to encode result status")
	}

	if err := callMeta.WriteReturn(encoder, returnValue); err != nil {

		// the value can't travel, report it as a failure of the call
		encoder.Truncate(entryStart)
		return writeStatusEntry(encoder, ResultStatusCallFailed, err.Error())
	}

	return nil
}

func writeStatusEntry(encoder codec.Encoder, status ResultStatus, message string) error {
	if err := encoder.Encode(uint8(status)); err != nil {
		return errors.Wrap(err, "Failed to encode result status")
	}

	if err := encoder.Encode(message); err != nil {
		return errors.Wrap(err, "Failed to encode result message")
	}

	return nil
}

func readResultEntry(decoder codec.Decoder,
	callMeta callregistry.CallMeta) (ResultStatus, string, interface{}, error) {
	var status uint8
	if err := decoder.Decode(&status); err != nil {
		return 0, "", nil, errors.Wrap(ErrMalformedBatch, "Failed to decode result status")
	}

	switch ResultStatus(status) {
	case ResultStatusOK:
		value, err := callMeta.ReadReturn(decoder)
		if err != nil {
			return 0, "", nil, errors.Wrap(ErrMalformedBatch, err.Error())
		}

		return ResultStatusOK, "", value, nil

	case ResultStatusCallFailed, ResultStatusBatchAborted:
		var message string
		if err := decoder.Decode(&message); err != nil {
			return 0, "", nil, errors.Wrap(ErrMalformedBatch, "Failed to decode result message")
		}

		return ResultStatus(status), message, nil, nil

	default:
		return 0, "", nil, errors.Wrapf(ErrMalformedBatch, "Unknown result status %d", status)
	}
}

// encodeAbortResult builds a result batch consisting only of an abort entry
func encodeAbortResult(codecInstance codec.Codec, handle uint64, reason string) ([]byte, error) {
	encoder := codecInstance.NewEncoder()

	if err := encoder.Encode(handle); err != nil {
		return nil, errors.Wrap(err, "Failed to encode handle")
	}

	if err := writeStatusEntry(encoder, ResultStatusBatchAborted, reason); err != nil {
		return nil, err
	}

	return encoder.Bytes(), nil
}
