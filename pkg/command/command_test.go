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

package command

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nuclio/rpcruntime/pkg/callregistry"
	"github.com/nuclio/rpcruntime/pkg/calls/builtin"
	"github.com/nuclio/rpcruntime/pkg/channel"
	"github.com/nuclio/rpcruntime/pkg/rpc"
	"github.com/nuclio/rpcruntime/pkg/rpcconfig"

	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

type CommandTestSuite struct {
	suite.Suite
	logger logger.Logger
}

func (suite *CommandTestSuite) SetupSuite() {
	suite.logger, _ = nucliozap.NewNuclioZapTest("test")
}

func (suite *CommandTestSuite) TestConfig() {
	output, err := suite.execute("config", "--codec", "json", "--channels", "4", "-o", "json")
	suite.Require().NoError(err)

	var config rpcconfig.Config
	suite.Require().NoError(json.Unmarshal([]byte(output), &config))
	suite.Require().Equal("json", config.Runtime.Codec)
	suite.Require().Equal(4, config.Runtime.NumChannels)
	suite.Require().Equal(rpcconfig.DefaultChannelMaxSize, config.Channel.MaxSize)
}

func (suite *CommandTestSuite) TestCalls() {
	output, err := suite.execute("calls", "-o", "json")
	suite.Require().NoError(err)

	var infos []callInfo
	suite.Require().NoError(json.Unmarshal([]byte(output), &infos))
	suite.Require().Len(infos, 5)
	suite.Require().Equal("math.double", infos[0].Name)
	suite.Require().Equal(callregistry.NewCallID("math.double").String(), infos[0].ID)
	suite.Require().True(infos[0].HasReturn)
	suite.Require().False(infos[3].HasReturn)
}

func (suite *CommandTestSuite) TestInvokeAgainstPeer() {
	server, err := channel.NewServer(suite.logger, &rpcconfig.Channel{
		Kind:    string(channel.TCPKind),
		MaxSize: 16,
	})
	suite.Require().NoError(err)

	defer server.Close() // nolint: errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	peerErr := make(chan error, 1)
	go func() {
		peerErr <- suite.servePeer(ctx, server)
	}()

	output, err := suite.execute("invoke",
		"--kind", "tcp",
		"--address", server.GetAddress(),
		"--max-size", "16",
		"--value", "21",
		"--values", "4,5,6",
		"--message", "over tcp",
		"-o", "json")
	suite.Require().NoError(err)

	var invocations []map[string]interface{}
	suite.Require().NoError(json.Unmarshal([]byte(output), &invocations))
	suite.Require().Len(invocations, 4)

	// json numbers decode as float64
	suite.Require().Equal(float64(42), invocations[0]["result"])
	suite.Require().Equal(float64(15), invocations[1]["result"])
	suite.Require().Equal("over tcp", invocations[2]["result"])
	suite.Require().NotContains(invocations[3], "result")

	cancel()
	suite.Require().NoError(<-peerErr)
}

func (suite *CommandTestSuite) TestInvokeRequiresAddress() {
	_, err := suite.execute("invoke", "--kind", "tcp")
	suite.Require().Error(err)
}

func (suite *CommandTestSuite) servePeer(ctx context.Context, server *channel.Server) error {
	channelInstance, err := server.Accept()
	if err != nil {
		return err
	}

	defer channelInstance.Close() // nolint: errcheck

	registry := callregistry.NewRegistry(suite.logger)
	if _, err := builtin.Register(registry, suite.logger); err != nil {
		return err
	}

	peerRuntime, err := rpc.NewRuntime(suite.logger, channelInstance, registry, nil)
	if err != nil {
		return err
	}

	if err := peerRuntime.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	// the invoking side hangs up first, which may surface as a closed channel
	peerRuntime.Shutdown() // nolint: errcheck

	return nil
}

func (suite *CommandTestSuite) execute(args ...string) (string, error) {
	var output bytes.Buffer

	rootCommandeer := NewRootCommandeer()
	rootCommandeer.GetCmd().SetOut(&output)
	rootCommandeer.GetCmd().SetArgs(args)

	err := rootCommandeer.Execute()

	return output.String(), err
}

func TestCommandTestSuite(t *testing.T) {
	suite.Run(t, new(CommandTestSuite))
}
