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

	"github.com/google/uuid"
	"github.com/nuclio/errors"
)

// CallIDSize is the size of an encoded call id
const CallIDSize = 16

var (
	ErrDuplicateCall   = errors.New("Call already registered")
	ErrInvalidCallID   = errors.New("Invalid call id")
	ErrArgumentType    = errors.New("Argument type mismatch")
	ErrReturnValueType = errors.New("Return value type mismatch")
)

// both peers derive ids from call names under this namespace, so no coordination is needed
var callNamespace = uuid.MustParse("6c3d2f0e-9a4b-5e71-8c12-4f0b7d9e3a25")

// CallID identifies a call across processes
type CallID uuid.UUID

// NewCallID returns the stable id of the call named name
func NewCallID(name string) CallID {
	return CallID(uuid.NewSHA1(callNamespace, []byte(name)))
}

// CallIDFromBytes decodes a call id from its wire encoding
func CallIDFromBytes(encoded []byte) (CallID, error) {
	if len(encoded) != CallIDSize {
		return CallID{}, errors.Wrapf(ErrInvalidCallID, "Expected %d bytes, got %d", CallIDSize, len(encoded))
	}

	var callID CallID
	copy(callID[:], encoded)

	return callID, nil
}

// Bytes returns the wire encoding of the id
func (id CallID) Bytes() []byte {
	return append([]byte(nil), id[:]...)
}

func (id CallID) String() string {
	return uuid.UUID(id).String()
}

// CallMeta describes how to serialize, invoke and return the result of a call
type CallMeta interface {

	// ID returns the call id
	ID() CallID

	// Name returns the name the id was derived from
	Name() string

	// NewArgs returns default constructed arguments
	NewArgs() interface{}

	// WriteArgs encodes args. nil args are encoded as absent
	WriteArgs(encoder codec.Encoder, args interface{}) error

	// ReadArgs decodes args written by WriteArgs. absent args are default constructed
	ReadArgs(decoder codec.Decoder) (interface{}, error)

	// HasReturn returns true if the call produces a value
	HasReturn() bool

	// WriteReturn encodes the value returned by Invoke
	WriteReturn(encoder codec.Encoder, value interface{}) error

	// ReadReturn decodes a value written by WriteReturn
	ReadReturn(decoder codec.Decoder) (interface{}, error)

	// Invoke runs the call on behalf of self
	Invoke(self uint64, args interface{}) (interface{}, error)
}

// CallRegistry resolves call ids to their metadata
type CallRegistry interface {
	Lookup(callID CallID) (CallMeta, bool)
}
