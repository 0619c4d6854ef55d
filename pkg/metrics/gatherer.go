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
	"github.com/nuclio/rpcruntime/pkg/rpc"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// StatisticsProvider exposes runtime counters
type StatisticsProvider interface {
	GetStatistics() *rpc.Statistics
}

type counterSpec struct {
	name  string
	help  string
	value func(statistics *rpc.Statistics) uint64
}

var counterSpecs = []counterSpec{
	{"rpcruntime_frames_sent_total", "Frames written to the channel",
		func(s *rpc.Statistics) uint64 { return s.FramesSent }},
	{"rpcruntime_frames_received_total", "Frames read from the channel",
		func(s *rpc.Statistics) uint64 { return s.FramesReceived }},
	{"rpcruntime_batches_committed_total", "Command lists committed",
		func(s *rpc.Statistics) uint64 { return s.BatchesCommitted }},
	{"rpcruntime_batches_executed_total", "Incoming batches executed",
		func(s *rpc.Statistics) uint64 { return s.BatchesExecuted }},
	{"rpcruntime_batches_aborted_total", "Incoming batches aborted before completion",
		func(s *rpc.Statistics) uint64 { return s.BatchesAborted }},
	{"rpcruntime_batches_dropped_total", "Batches dropped without execution",
		func(s *rpc.Statistics) uint64 { return s.BatchesDropped }},
	{"rpcruntime_calls_executed_total", "Calls executed on behalf of the peer",
		func(s *rpc.Statistics) uint64 { return s.CallsExecuted }},
	{"rpcruntime_calls_failed_total", "Calls that returned an error or panicked",
		func(s *rpc.Statistics) uint64 { return s.CallsFailed }},
	{"rpcruntime_results_resolved_total", "Futures resolved from result batches",
		func(s *rpc.Statistics) uint64 { return s.ResultsResolved }},
	{"rpcruntime_results_dropped_total", "Result batches of abandoned handles",
		func(s *rpc.Statistics) uint64 { return s.ResultsDropped }},
	{"rpcruntime_push_failures_total", "Pushes that couldn't flush everything",
		func(s *rpc.Statistics) uint64 { return s.PushFailures }},
	{"rpcruntime_protocol_errors_total", "Malformed or misrouted frames and result batches",
		func(s *rpc.Statistics) uint64 { return s.ProtocolErrors }},
}

// RuntimeGatherer feeds runtime statistics into prometheus counters
type RuntimeGatherer struct {
	logger             logger.Logger
	statisticsProvider StatisticsProvider
	prevStatistics     rpc.Statistics
	counters           []prometheus.Counter
}

func NewRuntimeGatherer(parentLogger logger.Logger,
	instanceName string,
	statisticsProvider StatisticsProvider,
	metricRegistry *prometheus.Registry) (*RuntimeGatherer, error) {

	newRuntimeGatherer := &RuntimeGatherer{
		logger:             parentLogger.GetChild("gatherer"),
		statisticsProvider: statisticsProvider,
	}

	labels := prometheus.Labels{
		"instance": instanceName,
	}

	for _, spec := range counterSpecs {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name:        spec.name,
			Help:        spec.help,
			ConstLabels: labels,
		})

		if err := metricRegistry.Register(counter); err != nil {
			return nil, errors.Wrapf(err, "Failed to register %s", spec.name)
		}

		newRuntimeGatherer.counters = append(newRuntimeGatherer.counters, counter)
	}

	newRuntimeGatherer.logger.DebugWith("Runtime gatherer created",
		"instanceName", instanceName,
		"numCounters", len(newRuntimeGatherer.counters))

	return newRuntimeGatherer, nil
}

// Gather adds whatever accumulated since the previous gather
func (rg *RuntimeGatherer) Gather() error {
	currentStatistics := rg.statisticsProvider.GetStatistics().Snapshot()
	diffStatistics := currentStatistics.DiffFrom(&rg.prevStatistics)

	for counterIdx, spec := range counterSpecs {
		rg.counters[counterIdx].Add(float64(spec.value(&diffStatistics)))
	}

	rg.prevStatistics = currentStatistics

	return nil
}
