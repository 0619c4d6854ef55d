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
	"encoding/json"

	"github.com/nuclio/errors"
)

// JSON encodes values as a newline separated stream of JSON documents
type JSON struct{}

func (j *JSON) GetName() string {
	return JSONName
}

func (j *JSON) NewEncoder() Encoder {
	jsonEncoder := jsonEncoder{}
	jsonEncoder.encoder = json.NewEncoder(&jsonEncoder.buf)

	return &jsonEncoder
}

func (j *JSON) NewDecoder(payload []byte) Decoder {
	return &jsonDecoder{
		decoder: json.NewDecoder(bytes.NewReader(payload)),
	}
}

type jsonEncoder struct {
	buf     bytes.Buffer
	encoder *json.Encoder
}

func (e *jsonEncoder) Encode(value interface{}) error {
	if err := e.encoder.Encode(value); err != nil {
		return errors.Wrap(err, "Failed to encode JSON value")
	}

	return nil
}

func (e *jsonEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *jsonEncoder) Len() int {
	return e.buf.Len()
}

func (e *jsonEncoder) Reset() {
	e.buf.Reset()
}

func (e *jsonEncoder) Truncate(length int) {
	e.buf.Truncate(length)
}

type jsonDecoder struct {
	decoder *json.Decoder
}

func (d *jsonDecoder) Decode(target interface{}) error {
	if err := d.decoder.Decode(target); err != nil {
		return errors.Wrap(err, "Failed to decode JSON value")
	}

	return nil
}

func (d *jsonDecoder) More() bool {
	return d.decoder.More()
}
