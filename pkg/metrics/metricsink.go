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
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nuclio/rpcruntime/pkg/rpcconfig"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// MetricSink serves runtime statistics for prometheus to pull
type MetricSink struct {
	logger         logger.Logger
	configuration  *rpcconfig.Metrics
	metricRegistry *prometheus.Registry
	gatherer       *RuntimeGatherer
	gatherLock     sync.Mutex
	listener       net.Listener
}

func NewMetricSink(parentLogger logger.Logger,
	configuration *rpcconfig.Metrics,
	statisticsProvider StatisticsProvider) (*MetricSink, error) {
	loggerInstance := parentLogger.GetChild("metrics")

	newMetricSink := &MetricSink{
		logger:         loggerInstance,
		configuration:  configuration,
		metricRegistry: prometheus.NewRegistry(),
	}

	gatherer, err := NewRuntimeGatherer(loggerInstance,
		configuration.InstanceName,
		statisticsProvider,
		newMetricSink.metricRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create runtime gatherer")
	}

	newMetricSink.gatherer = gatherer

	return newMetricSink, nil
}

// Handler returns the /metrics handler. counters are brought up to date on every scrape
func (ms *MetricSink) Handler() http.Handler {
	metricsHandler := promhttp.HandlerFor(ms.metricRegistry, promhttp.HandlerOpts{})

	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if err := ms.gather(); err != nil {
			ms.logger.WarnWith("Failed to gather statistics", "err", err.Error())
		}

		metricsHandler.ServeHTTP(responseWriter, request)
	})
}

// Start listens on the configured address and serves until ctx is done
func (ms *MetricSink) Start(ctx context.Context) error {
	if !ms.configuration.IsEnabled() {
		ms.logger.DebugWith("Disabled, not starting")
		return nil
	}

	listener, err := net.Listen("tcp", ms.configuration.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "Failed to listen on %s", ms.configuration.ListenAddress)
	}

	ms.listener = listener

	serveMux := http.NewServeMux()
	serveMux.Handle("/metrics", ms.Handler())

	server := &http.Server{
		Handler:           serveMux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			ms.logger.WarnWith("Failed to shut down metrics server", "err", err.Error())
		}
	}()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			ms.logger.ErrorWith("Metrics server failed", "err", err.Error())
		}
	}()

	ms.logger.InfoWith("Serving metrics", "address", listener.Addr().String())

	return nil
}

// GetAddress returns the address the sink listens on, once started
func (ms *MetricSink) GetAddress() string {
	if ms.listener == nil {
		return ""
	}

	return ms.listener.Addr().String()
}

func (ms *MetricSink) gather() error {
	ms.gatherLock.Lock()
	defer ms.gatherLock.Unlock()

	return ms.gatherer.Gather()
}
