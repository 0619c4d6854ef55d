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

package rpcconfig

import (
	"bytes"
	"testing"
	"time"

	"github.com/nuclio/errors"
	"github.com/stretchr/testify/suite"
)

type ReaderTestSuite struct {
	suite.Suite
	reader *Reader
}

func (suite *ReaderTestSuite) SetupTest() {
	suite.reader, _ = NewReader()
}

func (suite *ReaderTestSuite) TestRead() {
	configYAML := `
channel:
  kind: tcp
  address: 127.0.0.1:9000
  maxSize: 16
  attributes:
    inboxSize: 8
runtime:
  numChannels: 4
  codec: json
  tickIntervalMilliseconds: 5
metrics:
  enabled: true
  listenAddress: ":9100"
logger:
  level: debug
`

	config := Config{}
	err := suite.reader.Read(bytes.NewBufferString(configYAML), &config)
	suite.Require().NoError(err)

	suite.Require().Equal("tcp", config.Channel.Kind)
	suite.Require().Equal("127.0.0.1:9000", config.Channel.Address)
	suite.Require().Equal(16, config.Channel.MaxSize)
	suite.Require().EqualValues(8, config.Channel.Attributes["inboxSize"])
	suite.Require().Equal(4, config.Runtime.NumChannels)
	suite.Require().Equal("json", config.Runtime.Codec)
	suite.Require().Equal(5*time.Millisecond, config.Runtime.GetTickInterval())
	suite.Require().True(config.Metrics.IsEnabled())
	suite.Require().Equal(":9100", config.Metrics.ListenAddress)
	suite.Require().Equal("debug", config.Logger.Level)

	// untouched fields get defaults
	suite.Require().Equal(DefaultMaxPopsPerTick, config.Runtime.MaxPopsPerTick)
	suite.Require().Equal(DefaultLoggerEncoding, config.Logger.Encoding)
}

func (suite *ReaderTestSuite) TestReadFileOrDefaultMissingFile() {
	config, err := suite.reader.ReadFileOrDefault("/does/not/exist.yaml")
	suite.Require().NoError(err)

	suite.Require().Equal(DefaultChannelKind, config.Channel.Kind)
	suite.Require().Equal(DefaultChannelMaxSize, config.Channel.MaxSize)
	suite.Require().Equal(DefaultNumChannels, config.Runtime.NumChannels)
	suite.Require().Equal(DefaultCodec, config.Runtime.Codec)
	suite.Require().False(config.Metrics.IsEnabled())
}

func (suite *ReaderTestSuite) TestReadInvalid() {
	config := Config{}
	err := suite.reader.Read(bytes.NewBufferString("channel: [unterminated"), &config)
	suite.Require().Error(err)
}

func (suite *ReaderTestSuite) TestReadRejectsNonPositiveMaxSize() {
	config := Config{}
	err := suite.reader.Read(bytes.NewBufferString("channel:\n  maxSize: -1\n"), &config)
	suite.Require().Equal(ErrInvalidConfiguration, errors.RootCause(err))

	// zero means "use the default"
	config = Config{}
	err = suite.reader.Read(bytes.NewBufferString("channel:\n  maxSize: 0\n"), &config)
	suite.Require().NoError(err)
	suite.Require().Equal(DefaultChannelMaxSize, config.Channel.MaxSize)

	config.Channel.MaxSize = 0
	suite.Require().Equal(ErrInvalidConfiguration, errors.RootCause(suite.reader.Validate(&config)))
}

func TestReaderTestSuite(t *testing.T) {
	suite.Run(t, new(ReaderTestSuite))
}
