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

package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/nuclio/rpcruntime/pkg/rpc"
	"github.com/nuclio/rpcruntime/pkg/rpcconfig"

	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

type staticProvider struct {
	statistics rpc.Statistics
}

func (sp *staticProvider) GetStatistics() *rpc.Statistics {
	return &sp.statistics
}

type MetricsTestSuite struct {
	suite.Suite
	logger   logger.Logger
	provider *staticProvider
}

func (suite *MetricsTestSuite) SetupTest() {
	suite.logger, _ = nucliozap.NewNuclioZapTest("test")
	suite.provider = &staticProvider{}
}

func (suite *MetricsTestSuite) TestGatherAddsDiffs() {
	registry := prometheus.NewRegistry()

	gatherer, err := NewRuntimeGatherer(suite.logger, "test", suite.provider, registry)
	suite.Require().NoError(err)

	atomic.AddUint64(&suite.provider.statistics.CallsExecuted, 3)
	suite.Require().NoError(gatherer.Gather())

	atomic.AddUint64(&suite.provider.statistics.CallsExecuted, 2)
	suite.Require().NoError(gatherer.Gather())

	// a gather with nothing new changes nothing
	suite.Require().NoError(gatherer.Gather())

	callsExecutedIdx := -1
	for specIdx, spec := range counterSpecs {
		if spec.name == "rpcruntime_calls_executed_total" {
			callsExecutedIdx = specIdx
		}
	}

	suite.Require().NotEqual(-1, callsExecutedIdx)
	suite.Require().Equal(float64(5), testutil.ToFloat64(gatherer.counters[callsExecutedIdx]))
}

func (suite *MetricsTestSuite) TestDuplicateRegistration() {
	registry := prometheus.NewRegistry()

	_, err := NewRuntimeGatherer(suite.logger, "test", suite.provider, registry)
	suite.Require().NoError(err)

	_, err = NewRuntimeGatherer(suite.logger, "test", suite.provider, registry)
	suite.Require().Error(err)
}

func (suite *MetricsTestSuite) TestHandler() {
	metricSink, err := NewMetricSink(suite.logger, &rpcconfig.Metrics{InstanceName: "handler"}, suite.provider)
	suite.Require().NoError(err)

	atomic.AddUint64(&suite.provider.statistics.FramesSent, 7)

	server := httptest.NewServer(metricSink.Handler())
	defer server.Close()

	body := suite.scrape(server.URL)
	suite.Require().Contains(body, `rpcruntime_frames_sent_total{instance="handler"} 7`)
}

func (suite *MetricsTestSuite) TestStart() {
	enabled := true
	metricSink, err := NewMetricSink(suite.logger, &rpcconfig.Metrics{
		Enabled:       &enabled,
		ListenAddress: "127.0.0.1:0",
		InstanceName:  "started",
	}, suite.provider)
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite.Require().NoError(metricSink.Start(ctx))

	body := suite.scrape(fmt.Sprintf("http://%s", metricSink.GetAddress()))
	suite.Require().Contains(body, `rpcruntime_protocol_errors_total{instance="started"} 0`)
}

func (suite *MetricsTestSuite) TestStartDisabled() {
	metricSink, err := NewMetricSink(suite.logger, &rpcconfig.Metrics{}, suite.provider)
	suite.Require().NoError(err)

	suite.Require().NoError(metricSink.Start(context.Background()))
	suite.Require().Empty(metricSink.GetAddress())
}

func (suite *MetricsTestSuite) scrape(baseURL string) string {
	response, err := http.Get(baseURL + "/metrics")
	suite.Require().NoError(err)

	defer response.Body.Close() // nolint: errcheck

	body, err := io.ReadAll(response.Body)
	suite.Require().NoError(err)

	return string(body)
}

func TestMetricsTestSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}
