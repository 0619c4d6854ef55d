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
	"bytes"

	"github.com/nuclio/errors"
	"github.com/vmihailenco/msgpack/v4"
)

// MsgPack encodes values as a stream of msgpack objects
type MsgPack struct{}

func (mp *MsgPack) GetName() string {
	return MsgPackName
}

func (mp *MsgPack) NewEncoder() Encoder {
	msgPackEncoder := msgPackEncoder{}
	msgPackEncoder.encoder = msgpack.NewEncoder(&msgPackEncoder.buf)

	return &msgPackEncoder
}

func (mp *MsgPack) NewDecoder(payload []byte) Decoder {
	reader := bytes.NewReader(payload)

	// bytes.Reader is a ByteScanner, so the decoder reads it directly and Len stays exact
	return &msgPackDecoder{
		reader:  reader,
		decoder: msgpack.NewDecoder(reader),
	}
}

type msgPackEncoder struct {
	buf     bytes.Buffer
	encoder *msgpack.Encoder
}

func (e *msgPackEncoder) Encode(value interface{}) error {
	if err := e.encoder.Encode(value); err != nil {
		return errors.Wrap(err, "Failed to encode msgpack value")
	}

	return nil
}

func (e *msgPackEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *msgPackEncoder) Len() int {
	return e.buf.Len()
}

func (e *msgPackEncoder) Reset() {
	e.buf.Reset()
}

func (e *msgPackEncoder) Truncate(length int) {
	e.buf.Truncate(length)
}

type msgPackDecoder struct {
	reader  *bytes.Reader
	decoder *msgpack.Decoder
}

func (d *msgPackDecoder) Decode(target interface{}) error {
	if err := d.decoder.Decode(target); err != nil {
		return errors.Wrap(err, "Failed to decode msgpack value")
	}

	return nil
}

func (d *msgPackDecoder) More() bool {
	return d.reader.Len() > 0
}
