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

package codec

import (
	"github.com/nuclio/errors"
)

const (
	MsgPackName = "msgpack"
	JSONName    = "json"
	DefaultName = MsgPackName
)

var ErrUnknownCodec = errors.New("Unknown codec")

// Encoder appends encoded values to an in-memory buffer. values are concatenated with no
// length prefix, the codec itself delimits them
type Encoder interface {

	// Encode appends the encoding of value
	Encode(value interface{}) error

	// Bytes returns the encoded bytes. the slice is valid until the next mutation
	Bytes() []byte

	// Len returns the number of encoded bytes
	Len() int

	// Reset drops every encoded byte
	Reset()

	// Truncate drops every byte past length
	Truncate(length int)
}

// Decoder reads values encoded by the matching Encoder
type Decoder interface {

	// Decode reads the next value into target, which must be a pointer
	Decode(target interface{}) error

	// More returns true while undecoded bytes remain
	More() bool
}

// Codec creates encoders and decoders of one serialization format
type Codec interface {
	GetName() string
	NewEncoder() Encoder
	NewDecoder(payload []byte) Decoder
}

// ByName returns the codec registered under name. an empty name selects the default codec
func ByName(name string) (Codec, error) {
	switch name {
	case "", MsgPackName:
		return &MsgPack{}, nil
	case JSONName:
		return &JSON{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "Codec %s is not supported", name)
	}
}
